package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/weilao/sleepnote/internal/garmin"
	"github.com/weilao/sleepnote/internal/logging"
)

// SleepSource is the slice of the sleep-service client the journal
// needs. Satisfied by *garmin.Client; tests substitute a fake.
type SleepSource interface {
	// Authenticate restores a saved session if one was supplied. It
	// never fails; an unusable session surfaces on the first fetch.
	Authenticate()
	// GetSleepData returns the record for one calendar date, or nil
	// when the service has no usable data for that day.
	GetSleepData(ctx context.Context, date civil.Date) (*garmin.SleepRecord, error)
}

// IssueTracker is the slice of the issue-tracker client the journal
// needs. Satisfied by *github.Client; tests substitute a fake.
type IssueTracker interface {
	// Repo returns the owner/name the tracker is bound to.
	Repo() string
	// VerifyIssueExists returns false, not an error, for an absent issue.
	VerifyIssueExists(ctx context.Context, issueNumber int) (bool, error)
	// PostComment returns true if the comment was created, false if it
	// was skipped as a duplicate.
	PostComment(ctx context.Context, issueNumber int, body string, metadata map[string]string, exactMatch bool) (bool, error)
	// CreateIssue returns the number assigned to the new issue.
	CreateIssue(ctx context.Context, title, body string) (int, error)
}

// Outcome classifies how a journal operation ended. Every outcome is a
// success; failures are returned as errors instead.
type Outcome string

const (
	// OutcomePosted means a comment was created on the issue.
	OutcomePosted Outcome = "posted"
	// OutcomeDuplicate means the post was skipped as a duplicate.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeNoData means the sleep service had nothing for the date.
	OutcomeNoData Outcome = "no_data"
	// OutcomeDryRun means the entry was formatted but not posted.
	OutcomeDryRun Outcome = "dry_run"
	// OutcomeIssueCreated means a new issue was opened for the note.
	OutcomeIssueCreated Outcome = "issue_created"
	// OutcomeWouldCreateIssue is the dry-run form of OutcomeIssueCreated.
	OutcomeWouldCreateIssue Outcome = "would_create_issue"
)

// PostResult reports what the daily sleep flow did.
type PostResult struct {
	Outcome   Outcome
	Entry     string
	EntryDate civil.Date
}

// NoteRequest describes one freeform note post.
type NoteRequest struct {
	// Note is the freeform text, already trimmed by the caller.
	Note string
	// IssueNumber is the target issue.
	IssueNumber int
	// IncludeChildAge appends the configured child's age to the note.
	IncludeChildAge bool
	// DryRun renders the note without posting it.
	DryRun bool
}

// NoteResult reports what the freeform note flow did. IssueNumber is
// the created issue's number for OutcomeIssueCreated, otherwise the
// requested one. Body is the rendered comment (or the would-be issue
// title for the create outcomes).
type NoteResult struct {
	Outcome     Outcome
	IssueNumber int
	Body        string
}

// Journal drives the fetch-format-post flow against injected service
// adapters.
type Journal struct {
	source   SleepSource
	tracker  IssueTracker
	logger   logging.Logger
	nowFunc  func() time.Time
	birthday civil.Date
}

// Option configures a Journal.
type Option func(*Journal)

// WithSleepSource attaches the sleep-service adapter. Only the daily
// sleep flow needs one.
func WithSleepSource(source SleepSource) Option {
	return func(j *Journal) {
		j.source = source
	}
}

// WithIssueTracker attaches the issue-tracker adapter. The daily flow
// can run without one in dry-run mode; everything else requires it.
func WithIssueTracker(tracker IssueTracker) Option {
	return func(j *Journal) {
		j.tracker = tracker
	}
}

// WithLogger attaches a logger for progress output.
func WithLogger(logger logging.Logger) Option {
	return func(j *Journal) {
		j.logger = logger
	}
}

// WithNowFunc overrides the clock (useful for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(j *Journal) {
		j.nowFunc = now
	}
}

// WithChildBirthday sets the birthday used for age annotations.
func WithChildBirthday(birthday civil.Date) Option {
	return func(j *Journal) {
		j.birthday = birthday
	}
}

// New creates a Journal. Attach adapters via options.
func New(opts ...Option) *Journal {
	j := &Journal{
		nowFunc:  time.Now,
		birthday: DefaultChildBirthday,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// PostDaily fetches one day's sleep record, formats it, and posts it as
// a comment on the tracking issue. Missing data is a success with
// OutcomeNoData, not an error. In dry-run mode the issue tracker is
// never touched, so the daily flow can preview without credentials.
func (j *Journal) PostDaily(ctx context.Context, date civil.Date, issueNumber int, dryRun bool) (PostResult, error) {
	if j.source == nil {
		return PostResult{}, errors.New("no sleep source configured")
	}

	j.source.Authenticate()

	j.logInfo("Fetching sleep data for %s...", date)
	record, err := j.source.GetSleepData(ctx, date)
	if err != nil {
		return PostResult{}, fmt.Errorf("fetch sleep data: %w", err)
	}
	if record == nil {
		j.logWarning("No sleep data available for %s", date)
		return PostResult{Outcome: OutcomeNoData}, nil
	}

	j.logInfo("Formatting sleep data...")
	entryDate := DetermineEntryDate(record.Start, record.End)
	entry := FormatEntry(entryDate, &record.Start, &record.End)
	j.logInfo("Formatted entry: %s", entry)

	if dryRun {
		j.logInfo("DRY RUN MODE - Skipping GitHub post")
		return PostResult{Outcome: OutcomeDryRun, Entry: entry, EntryDate: entryDate}, nil
	}

	if j.tracker == nil {
		return PostResult{}, errors.New("no issue tracker configured")
	}

	j.logInfo("Posting to issue #%d...", issueNumber)
	exists, err := j.tracker.VerifyIssueExists(ctx, issueNumber)
	if err != nil {
		return PostResult{}, fmt.Errorf("verify issue #%d: %w", issueNumber, err)
	}
	if !exists {
		return PostResult{}, fmt.Errorf("issue #%d does not exist in repository %s", issueNumber, j.tracker.Repo())
	}

	posted, err := j.tracker.PostComment(ctx, issueNumber, entry, nil, false)
	if err != nil {
		return PostResult{}, fmt.Errorf("post comment: %w", err)
	}
	if !posted {
		j.logInfo("Comment was not posted (likely a duplicate)")
		return PostResult{Outcome: OutcomeDuplicate, Entry: entry, EntryDate: entryDate}, nil
	}

	j.logInfo("Successfully posted comment to issue #%d", issueNumber)
	return PostResult{Outcome: OutcomePosted, Entry: entry, EntryDate: entryDate}, nil
}

// QuickNote posts a timestamped freeform note as a comment on the
// target issue. If the issue does not exist it is created instead, with
// the note text as its title. Exact-match duplicate suppression applies
// to the comment path only.
func (j *Journal) QuickNote(ctx context.Context, req NoteRequest) (NoteResult, error) {
	if j.tracker == nil {
		return NoteResult{}, errors.New("no issue tracker configured")
	}

	note := strings.TrimSpace(req.Note)
	if note == "" {
		return NoteResult{}, errors.New("note content cannot be empty")
	}

	j.logInfo("Preparing to post note to issue #%d", req.IssueNumber)

	exists, err := j.tracker.VerifyIssueExists(ctx, req.IssueNumber)
	if err != nil {
		return NoteResult{}, fmt.Errorf("verify issue #%d: %w", req.IssueNumber, err)
	}

	if !exists {
		j.logInfo("Issue #%d does not exist. Creating new issue...", req.IssueNumber)
		if req.DryRun {
			return NoteResult{Outcome: OutcomeWouldCreateIssue, IssueNumber: req.IssueNumber, Body: note}, nil
		}
		newNumber, err := j.tracker.CreateIssue(ctx, note, "")
		if err != nil {
			return NoteResult{}, fmt.Errorf("create issue: %w", err)
		}
		j.logInfo("Created issue #%d", newNumber)
		return NoteResult{Outcome: OutcomeIssueCreated, IssueNumber: newNumber, Body: note}, nil
	}

	now := j.nowFunc()
	body := fmt.Sprintf("%s - %s", now.Format("2006-01-02 15:04:05"), note)
	if req.IncludeChildAge {
		body = fmt.Sprintf("%s - %s", body, ChildAge(j.birthday, civil.DateOf(now)))
	}

	if req.DryRun {
		j.logInfo("DRY RUN MODE - Skipping GitHub post")
		return NoteResult{Outcome: OutcomeDryRun, IssueNumber: req.IssueNumber, Body: body}, nil
	}

	metadata := map[string]string{
		"data-source": "quick-note",
		"posted-at":   now.Format("2006-01-02T15:04:05"),
	}

	posted, err := j.tracker.PostComment(ctx, req.IssueNumber, body, metadata, true)
	if err != nil {
		return NoteResult{}, fmt.Errorf("post note: %w", err)
	}
	if !posted {
		j.logInfo("Note already exists on issue #%d, skipped", req.IssueNumber)
		return NoteResult{Outcome: OutcomeDuplicate, IssueNumber: req.IssueNumber, Body: body}, nil
	}

	j.logInfo("Successfully posted note to issue #%d", req.IssueNumber)
	return NoteResult{Outcome: OutcomePosted, IssueNumber: req.IssueNumber, Body: body}, nil
}

func (j *Journal) logInfo(format string, args ...interface{}) {
	if j.logger == nil {
		return
	}
	j.logger.Info(fmt.Sprintf(format, args...))
}

func (j *Journal) logWarning(format string, args ...interface{}) {
	if j.logger == nil {
		return
	}
	j.logger.Warning(fmt.Sprintf(format, args...))
}
