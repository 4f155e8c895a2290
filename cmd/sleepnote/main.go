package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/weilao/sleepnote/internal/cli"
)

func main() {
	// Cancel the context on SIGINT/SIGTERM so in-flight HTTP calls stop
	// instead of finishing behind a dead terminal.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := cli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
