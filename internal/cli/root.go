package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weilao/sleepnote/internal/logging"
	"github.com/weilao/sleepnote/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sleepnote",
	Short: "Sleepnote - Daily sleep entries and quick notes on a GitHub issue",
	Long: `Sleepnote fetches sleep data from Garmin Connect and posts it as a
formatted comment on a tracked GitHub issue, one entry per wake-up date.

Entries look like "2026-01-06: 昨日睡觉 23:30 今天起床 07:00". A date that
already has a comment on the issue is skipped, so scheduled reruns are safe.
The note subcommand posts timestamped freeform notes to the same issue.

Example:
  sleepnote post --date 2026-01-06
  sleepnote note "第一次翻身" --issue 1 --child`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set version for --version flag
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sleepnote.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	// Local runs keep credentials in a .env file. A missing file is fine;
	// scheduled runs inject everything through the environment.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sleepnote")
	}

	viper.SetEnvPrefix("SLEEPNOTE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// newRunLogger builds the logger for one command invocation.
func newRunLogger() logging.Logger {
	runID := fmt.Sprintf("sleepnote-%s", uuid.New().String()[:8])
	return logging.NewLogger(runID, logging.WithDebug(viper.GetBool("verbose")))
}
