// Package gitrepo detects the GitHub repository behind the working
// directory's git remote.
package gitrepo

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// detectTimeout bounds the git subprocess.
const detectTimeout = 5 * time.Second

// Detector reads the origin remote from the local git configuration.
type Detector struct {
	cmdRunner func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithCmdRunner overrides the command constructor (useful for testing).
func WithCmdRunner(runner func(ctx context.Context, name string, args ...string) *exec.Cmd) DetectorOption {
	return func(d *Detector) {
		d.cmdRunner = runner
	}
}

// NewDetector creates a Detector.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		cmdRunner: exec.CommandContext,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Detect returns the owner/repo of the origin remote.
func (d *Detector) Detect(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	cmd := d.cmdRunner(ctx, "git", "config", "--get", "remote.origin.url")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to read git remote: %w", err)
	}

	url := strings.TrimSpace(string(output))
	repo, ok := ParseRemoteURL(url)
	if !ok {
		return "", fmt.Errorf("remote origin %q is not a GitHub repository", url)
	}
	return repo, nil
}

// Detect reads the origin remote with a default Detector.
func Detect(ctx context.Context) (string, error) {
	return NewDetector().Detect(ctx)
}

// ParseRemoteURL converts a git remote URL into owner/repo form.
// Supports git@github.com:owner/repo.git and
// https://github.com/owner/repo[.git].
func ParseRemoteURL(url string) (string, bool) {
	var repo string
	switch {
	case strings.HasPrefix(url, "git@github.com:"):
		repo = strings.TrimPrefix(url, "git@github.com:")
	case strings.HasPrefix(url, "https://github.com/"):
		repo = strings.TrimPrefix(url, "https://github.com/")
	default:
		return "", false
	}

	repo = strings.TrimSuffix(repo, ".git")
	if repo == "" || !strings.Contains(repo, "/") {
		return "", false
	}
	return repo, true
}
