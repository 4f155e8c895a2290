package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weilao/sleepnote/internal/config"
	"github.com/weilao/sleepnote/internal/garmin"
	"github.com/weilao/sleepnote/internal/github"
	"github.com/weilao/sleepnote/internal/journal"
	"github.com/weilao/sleepnote/internal/secrets"
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Fetch sleep data from Garmin and post it to the tracked issue",
	Long: `Fetch one day's sleep data from Garmin Connect and post it as a
formatted comment on the tracked GitHub issue.

The entry is attributed to the wake-up date. A date that already has a
comment on the issue is skipped. Days without usable sleep data log a
warning and exit cleanly so scheduled runs stay green.

Example:
  sleepnote post --date 2026-01-06 --issue 1
  sleepnote post --dry-run`,
	RunE: runPost,
}

func init() {
	rootCmd.AddCommand(postCmd)

	postCmd.Flags().String("date", "", "Target date in ISO format (YYYY-MM-DD). Defaults to yesterday.")
	postCmd.Flags().Int("issue", 1, "Issue number to comment on")
	postCmd.Flags().String("repo", "", "Repository in owner/name format (defaults to GITHUB_REPOSITORY)")
	postCmd.Flags().Bool("dry-run", false, "Fetch and format without posting to GitHub")
}

func runPost(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	logger := newRunLogger()
	defer func() { _ = logger.Close() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dateStr, _ := cmd.Flags().GetString("date")
	targetDate, err := resolveTargetDate(dateStr, time.Now())
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Fetching sleep data for %s", targetDate))

	issue := cfg.Issue
	if cmd.Flags().Changed("issue") {
		issue, _ = cmd.Flags().GetInt("issue")
	}

	repoFlag, _ := cmd.Flags().GetString("repo")
	repo, err := resolveRepository(ctx, repoFlag, cfg)
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Using repository: %s", repo))

	resolver := secrets.NewResolver()
	defer func() { _ = resolver.Close() }()

	garminToken, err := resolveGarminToken(ctx, cfg, resolver)
	if err != nil {
		return err
	}

	source := garmin.NewClient(garmin.Config{
		Domain:             cfg.Garmin.Domain,
		TokenString:        garminToken,
		InsecureSkipVerify: !*cfg.Garmin.SSLVerify,
	}, garmin.WithLogger(logger))

	opts := []journal.Option{
		journal.WithSleepSource(source),
		journal.WithLogger(logger),
	}

	// The tracker needs a GitHub token, which a dry run should not
	// require. Without a tracker the journal stops after formatting.
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if !dryRun {
		token, err := resolveGitHubToken(ctx, cfg, resolver)
		if err != nil {
			return err
		}
		tracker, err := github.NewClient(token, repo, github.WithLogger(logger))
		if err != nil {
			return err
		}
		opts = append(opts, journal.WithIssueTracker(tracker))
	}

	result, err := journal.New(opts...).PostDaily(ctx, targetDate, issue, dryRun)
	if err != nil {
		return err
	}

	if result.Outcome == journal.OutcomeDryRun {
		fmt.Printf("\n%s\n", result.Entry)
	}

	return nil
}
