package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weilao/sleepnote/internal/config"
	"github.com/weilao/sleepnote/internal/github"
	"github.com/weilao/sleepnote/internal/journal"
	"github.com/weilao/sleepnote/internal/secrets"
)

var noteCmd = &cobra.Command{
	Use:   "note <text>",
	Short: "Post a timestamped freeform note to the tracked issue",
	Long: `Post a freeform note as a timestamped comment on the tracked GitHub
issue. If the issue does not exist yet, it is created with the note as
its title.

Notes are prefixed with the current time and optionally the child's age,
e.g. "2026-01-06 21:00:00 - 第一次翻身 - 7个月27天". Posting the exact
same note twice is skipped.

Example:
  sleepnote note "第一次翻身" --issue 1 --child
  sleepnote note "fever 38.2, gave medicine" --issue 1`,
	Args: cobra.ExactArgs(1),
	RunE: runNote,
}

func init() {
	rootCmd.AddCommand(noteCmd)

	noteCmd.Flags().Int("issue", 0, "Issue number to comment on")
	noteCmd.Flags().String("repo", "", "Repository in owner/name format (defaults to GITHUB_REPOSITORY)")
	noteCmd.Flags().Bool("dry-run", false, "Preview the note without posting to GitHub")
	noteCmd.Flags().Bool("child", false, "Append the child's age to the note")
	_ = noteCmd.MarkFlagRequired("issue")
}

func runNote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	logger := newRunLogger()
	defer func() { _ = logger.Close() }()

	note := strings.TrimSpace(args[0])
	if note == "" {
		return errors.New("note content cannot be empty")
	}
	logger.Debug(fmt.Sprintf("Note content: %s", note))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	issue, _ := cmd.Flags().GetInt("issue")
	repoFlag, _ := cmd.Flags().GetString("repo")
	repo, err := resolveRepository(ctx, repoFlag, cfg)
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Using repository: %s", repo))

	resolver := secrets.NewResolver()
	defer func() { _ = resolver.Close() }()

	// Unlike the daily flow, even a dry run verifies the target issue,
	// so a GitHub token is always required here.
	token, err := resolveGitHubToken(ctx, cfg, resolver)
	if err != nil {
		return noteError(err)
	}
	tracker, err := github.NewClient(token, repo, github.WithLogger(logger))
	if err != nil {
		return noteError(err)
	}

	includeChild, _ := cmd.Flags().GetBool("child")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	j := journal.New(
		journal.WithIssueTracker(tracker),
		journal.WithLogger(logger),
		journal.WithChildBirthday(resolveChildBirthday(cfg, logger)),
	)

	result, err := j.QuickNote(ctx, journal.NoteRequest{
		Note:            note,
		IssueNumber:     issue,
		IncludeChildAge: includeChild,
		DryRun:          dryRun,
	})
	if err != nil {
		return noteError(err)
	}

	switch result.Outcome {
	case journal.OutcomeWouldCreateIssue:
		fmt.Println("\n[DRY RUN] Would create issue with title:")
		fmt.Println(result.Body)
	case journal.OutcomeIssueCreated:
		fmt.Printf("✓ Created issue #%d\n", result.IssueNumber)
	case journal.OutcomeDryRun:
		fmt.Printf("\nNote to post to issue #%d:\n", result.IssueNumber)
		fmt.Println(result.Body)
	case journal.OutcomeDuplicate:
		fmt.Printf("ℹ Note already exists on issue #%d (skipped)\n", result.IssueNumber)
	case journal.OutcomePosted:
		fmt.Printf("✓ Successfully posted note to issue #%d\n", result.IssueNumber)
	}

	return nil
}

// noteError prints the console glyph line for a failed note and passes
// the error through for the exit code.
func noteError(err error) error {
	var authErr *github.AuthError
	if errors.As(err, &authErr) {
		fmt.Println("✗ Error: Invalid GitHub token")
	} else {
		fmt.Printf("✗ Error: %v\n", err)
	}
	return err
}
