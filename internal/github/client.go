// Package github provides an issues API client with duplicate-aware
// comment posting, plus GitHub App installation authentication.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/weilao/sleepnote/internal/logging"
)

// entryDatePattern extracts the date token a daily entry starts with,
// e.g. "2026-01-06:". Bodies carrying the same token are duplicates in
// the default detection mode.
var entryDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}:`)

// commentWindow bounds how many recent comments the duplicate check
// inspects. Older duplicates slip through; the check trades precision
// for a single cheap listing call.
const commentWindow = 10

const (
	acceptHeader = "application/vnd.github+json"
	apiVersion   = "2022-11-28"
)

// Comment is one existing issue comment, as returned by the API.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Client talks to the issues API of a single repository.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	owner      string
	name       string
	logger     logging.Logger
	nowFunc    func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL sets a custom base URL for the GitHub API (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithLogger attaches a logger for progress and warning output.
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithNowFunc overrides the clock used for footer timestamps (useful for testing).
func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowFunc = now
	}
}

// NewClient creates a client bound to one repository. The repository
// may be given as "owner/repo", "github.com/owner/repo", or a full URL.
func NewClient(token, repository string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, errors.New("GitHub token cannot be empty")
	}
	owner, name, err := ParseRepository(repository)
	if err != nil {
		return nil, err
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.github.com",
		token:      token,
		owner:      owner,
		name:       name,
		nowFunc:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ParseRepository extracts owner and name from a repository string.
// Supports formats: "owner/repo", "github.com/owner/repo", "https://github.com/owner/repo".
func ParseRepository(repo string) (owner, name string, err error) {
	repo = strings.TrimPrefix(repo, "https://")
	repo = strings.TrimPrefix(repo, "http://")
	repo = strings.TrimPrefix(repo, "github.com/")
	repo = strings.TrimSuffix(repo, ".git")

	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format: %q", repo)
	}
	return parts[0], parts[1], nil
}

// Repo returns the owner/name the client is bound to.
func (c *Client) Repo() string {
	return c.owner + "/" + c.name
}

// VerifyIssueExists reports whether the issue exists and is accessible.
// An absent issue is a normal false, not an error.
func (c *Client) VerifyIssueExists(ctx context.Context, issueNumber int) (bool, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, c.name, issueNumber)
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}

	switch status {
	case http.StatusOK:
		c.logInfo("Issue #%d exists and is accessible", issueNumber)
		return true, nil
	case http.StatusNotFound:
		c.logWarning("Issue #%d not found", issueNumber)
		return false, nil
	case http.StatusUnauthorized:
		return false, &AuthError{StatusCode: status, Repo: c.Repo()}
	default:
		return false, &ClientError{
			StatusCode:  status,
			Repo:        c.Repo(),
			IssueNumber: issueNumber,
			Message:     fmt.Sprintf("failed to verify issue #%d: %s", issueNumber, parseErrorMessage(status, body)),
		}
	}
}

// PostComment posts a comment on the issue with duplicate suppression.
// The metadata footer is always appended before posting; caller keys
// override the defaults. Returns true if the comment was created and
// false if an equivalent one was already present in the recent window.
//
// In the default mode, any recent comment containing the candidate's
// date token is a duplicate. With exactMatch, only a comment whose
// stored body equals the candidate byte for byte (footer included)
// counts, so a day can carry several distinct notes.
func (c *Client) PostComment(ctx context.Context, issueNumber int, body string, metadata map[string]string, exactMatch bool) (bool, error) {
	candidate := c.appendMetadataFooter(body, metadata)

	if c.isDuplicate(ctx, issueNumber, body, candidate, exactMatch) {
		c.logInfo("Skipped posting duplicate comment to issue #%d", issueNumber)
		return false, nil
	}

	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.owner, c.name, issueNumber)
	status, respBody, err := c.do(ctx, http.MethodPost, path, map[string]string{"body": candidate})
	if err != nil {
		return false, err
	}

	switch status {
	case http.StatusCreated:
		c.logInfo("Successfully posted comment to issue #%d", issueNumber)
		return true, nil
	case http.StatusNotFound:
		return false, &ClientError{
			StatusCode:  status,
			Repo:        c.Repo(),
			IssueNumber: issueNumber,
			Message:     fmt.Sprintf("issue #%d or repository %s not found", issueNumber, c.Repo()),
		}
	case http.StatusUnauthorized:
		return false, &AuthError{StatusCode: status, Repo: c.Repo()}
	default:
		return false, &ClientError{
			StatusCode:  status,
			Repo:        c.Repo(),
			IssueNumber: issueNumber,
			Message:     fmt.Sprintf("failed to post comment: %s", parseErrorMessage(status, respBody)),
		}
	}
}

// CreateIssue opens a new issue and returns its assigned number. No
// duplicate detection: callers have already established the target is
// absent.
func (c *Client) CreateIssue(ctx context.Context, title, body string) (int, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues", c.owner, c.name)
	status, respBody, err := c.do(ctx, http.MethodPost, path, map[string]string{
		"title": title,
		"body":  body,
	})
	if err != nil {
		return 0, err
	}

	switch status {
	case http.StatusCreated:
		var issue struct {
			Number int `json:"number"`
		}
		if err := json.Unmarshal(respBody, &issue); err != nil {
			return 0, fmt.Errorf("failed to parse issue response: %w", err)
		}
		c.logInfo("Created issue #%d in %s", issue.Number, c.Repo())
		return issue.Number, nil
	case http.StatusUnauthorized:
		return 0, &AuthError{StatusCode: status, Repo: c.Repo()}
	default:
		return 0, &ClientError{
			StatusCode: status,
			Repo:       c.Repo(),
			Message:    fmt.Sprintf("failed to create issue: %s", parseErrorMessage(status, respBody)),
		}
	}
}

// ListRecentComments returns the newest comments on the issue, bounded
// by the duplicate-check window.
func (c *Client) ListRecentComments(ctx context.Context, issueNumber int) ([]Comment, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments?direction=desc&per_page=%d",
		c.owner, c.name, issueNumber, commentWindow)
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var comments []Comment
		if err := json.Unmarshal(body, &comments); err != nil {
			return nil, fmt.Errorf("failed to parse comments: %w", err)
		}
		return comments, nil
	case http.StatusUnauthorized:
		return nil, &AuthError{StatusCode: status, Repo: c.Repo()}
	default:
		return nil, &ClientError{
			StatusCode:  status,
			Repo:        c.Repo(),
			IssueNumber: issueNumber,
			Message:     fmt.Sprintf("failed to list comments: %s", parseErrorMessage(status, body)),
		}
	}
}

// isDuplicate reports whether an equivalent comment already sits in the
// recent window. Lookup failures count as "no duplicate": posting wins
// over strict dedup.
func (c *Client) isDuplicate(ctx context.Context, issueNumber int, body, candidate string, exactMatch bool) bool {
	comments, err := c.ListRecentComments(ctx, issueNumber)
	if err != nil {
		c.logWarning("Failed to check for duplicates: %v", err)
		return false
	}

	if exactMatch {
		for _, comment := range comments {
			if comment.Body == candidate {
				c.logDebug("Found identical comment %d", comment.ID)
				return true
			}
		}
		return false
	}

	dateToken := entryDatePattern.FindString(body)
	if dateToken == "" {
		return false
	}
	for _, comment := range comments {
		if strings.Contains(comment.Body, dateToken) {
			c.logDebug("Found duplicate comment with date %s", dateToken)
			return true
		}
	}
	return false
}

// appendMetadataFooter renders the audit footer as an HTML comment so
// it never shows up in the rendered issue. Default keys come first and
// caller values replace them in place; extra caller keys follow in
// sorted order for a stable wire format.
func (c *Client) appendMetadataFooter(body string, metadata map[string]string) string {
	defaults := []struct{ key, value string }{
		{"data-source", "garmin"},
		{"fetched-at", c.nowFunc().UTC().Format(time.RFC3339)},
	}

	pairs := make([]string, 0, len(defaults)+len(metadata))
	seen := make(map[string]bool, len(defaults))
	for _, kv := range defaults {
		value := kv.value
		if override, ok := metadata[kv.key]; ok {
			value = override
		}
		seen[kv.key] = true
		pairs = append(pairs, kv.key+": "+value)
	}

	extras := make([]string, 0, len(metadata))
	for key := range metadata {
		if !seen[key] {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		pairs = append(pairs, key+": "+metadata[key])
	}

	return fmt.Sprintf("%s\n\n<!-- %s -->", body, strings.Join(pairs, ", "))
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) logDebug(format string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.Debug(fmt.Sprintf(format, args...))
}

func (c *Client) logInfo(format string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.Info(fmt.Sprintf(format, args...))
}

func (c *Client) logWarning(format string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.Warning(fmt.Sprintf(format, args...))
}
