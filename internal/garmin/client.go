// Package garmin fetches daily sleep summaries from the Garmin Connect
// API using a restored token session. Login itself is out of scope: a
// session token produced by an interactive login elsewhere is supplied
// via configuration and restored here.
package garmin

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/civil"

	"github.com/weilao/sleepnote/internal/logging"
)

// Supported Garmin Connect domains.
const (
	DomainCN  = "garmin.cn"
	DomainCOM = "garmin.com"
)

// userAgent mirrors the Connect mobile client; the API rejects unknown
// agents on some endpoints.
const userAgent = "GCM-iOS-5.7.2.1"

// nonSleepBufferMinutes widens the sleep window the service considers,
// matching the Connect web client's query.
const nonSleepBufferMinutes = "60"

// ErrNotAuthenticated is returned by data fetches when no session has
// been restored.
var ErrNotAuthenticated = errors.New("not authenticated with Garmin Connect, restore a session token first")

// AuthError indicates the Connect API rejected the session credential.
type AuthError struct {
	StatusCode int
	Path       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("garmin credentials rejected (status %d) on %s", e.StatusCode, e.Path)
}

// APIError is any other non-success response from the Connect API.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("garmin API error (status %d) on %s: %s", e.StatusCode, e.Path, e.Message)
}

// SleepRecord is one night's sleep interval. Start and End are UTC
// instants; rendering in the display timezone is the formatter's job.
type SleepRecord struct {
	// Date is the calendar date the record was requested for.
	Date civil.Date
	// Start is the moment the user fell asleep.
	Start time.Time
	// End is the wake moment.
	End time.Time
	// Scores carries the raw sleep score payload for debug output.
	Scores map[string]interface{}
}

// Config holds the externally supplied client settings.
type Config struct {
	// Domain selects the Connect region, garmin.cn or garmin.com.
	// Empty defaults to garmin.cn.
	Domain string
	// TokenString is an exported session to restore, if available.
	TokenString string
	// InsecureSkipVerify disables TLS verification. The garmin.cn
	// endpoints have historically served certificates that fail strict
	// verification.
	InsecureSkipVerify bool
}

// Client talks to the Garmin Connect wellness API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	domain        string
	tokenString   string
	session       *Session
	authenticated bool
	exported      string
	displayName   string
	logger        logging.Logger
	nowFunc       func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL sets a custom base URL for the Connect API (useful for testing).
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

// WithNowFunc overrides the clock used for token expiry checks (useful for testing).
func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowFunc = now
	}
}

// NewClient creates a Connect API client for the configured domain.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	domain := cfg.Domain
	if domain == "" {
		domain = DomainCN
	}

	c := &Client{
		baseURL:     "https://connectapi." + domain,
		domain:      domain,
		tokenString: cfg.TokenString,
		nowFunc:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
		if cfg.InsecureSkipVerify {
			c.httpClient.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}

	c.logInfo("Configured Garmin Connect client for domain %s", domain)
	return c
}

// Authenticated reports whether a session was restored.
func (c *Client) Authenticated() bool {
	return c.authenticated
}

// ExportedSession returns the session string exported by Authenticate
// when no token was supplied, for callers that want to persist it.
func (c *Client) ExportedSession() string {
	return c.exported
}

// Authenticate restores the configured session token. It never fails:
// a token that cannot be restored leaves the client unauthenticated and
// the first data fetch reports the problem instead. When no token was
// supplied on the CN domain, the current (empty) session is exported so
// the caller can persist one for later runs.
func (c *Client) Authenticate() {
	if c.tokenString != "" {
		c.logInfo("Attempting to restore saved Garmin session")
		session, err := RestoreSession(c.tokenString)
		if err == nil {
			c.session = session
			c.authenticated = true
			if session.OAuth2.Expired(c.nowFunc()) {
				c.logWarning("Restored Garmin session is expired, requests may be rejected")
			}
			c.logInfo("Authenticated with Garmin Connect using saved session token")
			return
		}
		c.logWarning("Failed to restore saved session token: %v", err)
	}

	if c.domain == DomainCN {
		exported, err := (&Session{}).Export()
		if err == nil {
			c.exported = exported
			c.logInfo("Session token exported for reuse (CN domain, %d bytes)", len(exported))
		}
	}
}

// GetSleepData fetches the sleep summary for one calendar date. A nil
// record with nil error means the service has no usable data for that
// day, which a daily run treats as nothing to report.
func (c *Client) GetSleepData(ctx context.Context, targetDate civil.Date) (*SleepRecord, error) {
	if !c.authenticated {
		return nil, ErrNotAuthenticated
	}

	displayName, err := c.profileDisplayName(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve profile display name: %w", err)
	}

	query := url.Values{}
	query.Set("date", targetDate.String())
	query.Set("nonSleepBufferMinutes", nonSleepBufferMinutes)
	path := fmt.Sprintf("/wellness-service/wellness/dailySleepData/%s?%s",
		url.PathEscape(displayName), query.Encode())

	var payload dailySleepResponse
	if err := c.getJSON(ctx, path, &payload); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			c.logWarning("No sleep data available for %s", targetDate)
			return nil, nil
		}
		return nil, fmt.Errorf("fetch sleep data for %s: %w", targetDate, err)
	}

	dto := payload.DailySleepDTO
	if dto == nil {
		c.logWarning("Empty daily sleep summary for %s", targetDate)
		return nil, nil
	}
	if raw, err := json.Marshal(dto); err == nil {
		c.logDebug("Raw daily sleep summary: %s", raw)
	}
	if dto.SleepStartTimestampGMT == 0 || dto.SleepEndTimestampGMT == 0 {
		c.logWarning("Missing sleep timestamps for %s", targetDate)
		return nil, nil
	}

	start := time.UnixMilli(dto.SleepStartTimestampGMT).UTC()
	end := time.UnixMilli(dto.SleepEndTimestampGMT).UTC()
	c.logInfo("Retrieved sleep data for %s: sleep=%s, wake=%s",
		targetDate, start.Format(time.RFC3339), end.Format(time.RFC3339))

	return &SleepRecord{
		Date:   targetDate,
		Start:  start,
		End:    end,
		Scores: dto.SleepScores,
	}, nil
}

// profileDisplayName resolves and caches the display name the wellness
// endpoints key on. One extra round trip on the first fetch.
func (c *Client) profileDisplayName(ctx context.Context) (string, error) {
	if c.displayName != "" {
		return c.displayName, nil
	}

	var profile socialProfile
	if err := c.getJSON(ctx, "/userprofile-service/socialProfile", &profile); err != nil {
		return "", err
	}
	if profile.DisplayName == "" {
		return "", errors.New("social profile has no display name")
	}

	c.displayName = profile.DisplayName
	c.logDebug("Resolved Garmin display name: %s", profile.DisplayName)
	return profile.DisplayName, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", c.session.OAuth2.Authorization())
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.parseAPIError(resp.StatusCode, path, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response from %s: %w", path, err)
		}
	}
	return nil
}

// parseAPIError maps a non-success Connect response to an error type.
func (c *Client) parseAPIError(statusCode int, path string, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{StatusCode: statusCode, Path: path}
	default:
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &APIError{StatusCode: statusCode, Path: path, Message: msg}
	}
}

// dailySleepResponse is the wellness endpoint payload. Only the daily
// summary is consumed; movement and REM series are ignored.
type dailySleepResponse struct {
	DailySleepDTO *dailySleepDTO `json:"dailySleepDTO"`
}

type dailySleepDTO struct {
	ID                     int64                  `json:"id"`
	CalendarDate           string                 `json:"calendarDate"`
	SleepTimeSeconds       int64                  `json:"sleepTimeSeconds"`
	NapTimeSeconds         int64                  `json:"napTimeSeconds"`
	SleepStartTimestampGMT int64                  `json:"sleepStartTimestampGMT"`
	SleepEndTimestampGMT   int64                  `json:"sleepEndTimestampGMT"`
	SleepScores            map[string]interface{} `json:"sleepScores"`
}

type socialProfile struct {
	ID          int64  `json:"id"`
	ProfileID   int64  `json:"profileId"`
	DisplayName string `json:"displayName"`
	UserName    string `json:"userName"`
	FullName    string `json:"fullName"`
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
