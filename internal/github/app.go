package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// MaxJWTDuration is the longest lifetime GitHub accepts for an App JWT.
const MaxJWTDuration = 10 * time.Minute

// TokenRefreshBuffer is how long before expiry a cached installation
// token is treated as stale. Installation tokens live for an hour; the
// buffer keeps a token from expiring mid-request.
const TokenRefreshBuffer = 5 * time.Minute

// InstallationToken is a GitHub App installation access token.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AppAuth authenticates as a GitHub App installation. It signs App
// JWTs with the private key, exchanges them for installation tokens,
// and caches the current token until it nears expiry. Safe for
// concurrent use.
type AppAuth struct {
	mu sync.RWMutex

	appID          string
	installationID int64
	privateKey     *rsa.PrivateKey

	token     string
	expiresAt time.Time

	httpClient *http.Client
	baseURL    string
	nowFunc    func() time.Time
}

// AppAuthOption configures an AppAuth.
type AppAuthOption func(*AppAuth)

// WithAuthHTTPClient sets a custom HTTP client for token exchange.
func WithAuthHTTPClient(client *http.Client) AppAuthOption {
	return func(a *AppAuth) {
		a.httpClient = client
	}
}

// WithAuthBaseURL sets a custom base URL for the GitHub API (useful for testing).
func WithAuthBaseURL(url string) AppAuthOption {
	return func(a *AppAuth) {
		a.baseURL = url
	}
}

// WithAuthNowFunc sets a custom time function for testing.
func WithAuthNowFunc(fn func() time.Time) AppAuthOption {
	return func(a *AppAuth) {
		a.nowFunc = fn
	}
}

// NewAppAuth creates an AppAuth from App credentials. The private key
// is parsed eagerly so a bad key surfaces at startup rather than on the
// first request.
func NewAppAuth(appID string, installationID int64, privateKeyPEM []byte, opts ...AppAuthOption) (*AppAuth, error) {
	if appID == "" {
		return nil, fmt.Errorf("app ID cannot be empty")
	}
	if installationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}
	if len(privateKeyPEM) == 0 {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	privateKey, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	a := &AppAuth{
		appID:          appID,
		installationID: installationID,
		privateKey:     privateKey,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        "https://api.github.com",
		nowFunc:        time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// GenerateJWT creates a new App JWT valid for 10 minutes.
func (a *AppAuth) GenerateJWT() (string, error) {
	return a.GenerateJWTWithDuration(MaxJWTDuration)
}

// GenerateJWTWithDuration creates a new App JWT valid for the specified
// duration. GitHub rejects JWTs living longer than MaxJWTDuration.
func (a *AppAuth) GenerateJWTWithDuration(duration time.Duration) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("duration must be positive")
	}
	if duration > MaxJWTDuration {
		return "", fmt.Errorf("duration %v exceeds maximum allowed %v", duration, MaxJWTDuration)
	}

	now := a.nowFunc()

	claims := jwt.RegisteredClaims{
		Issuer:    a.appID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Token returns a valid installation token, refreshing if the cached
// one is missing or within the refresh buffer of expiry.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	a.mu.RLock()
	if a.isValidLocked() {
		token := a.token
		a.mu.RUnlock()
		return token, nil
	}
	a.mu.RUnlock()

	return a.Refresh(ctx)
}

// Refresh forces a token exchange regardless of the cached token's
// validity and returns the new token.
func (a *AppAuth) Refresh(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	appJWT, err := a.GenerateJWT()
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT: %w", err)
	}

	installToken, err := a.exchange(ctx, appJWT)
	if err != nil {
		return "", fmt.Errorf("failed to exchange token: %w", err)
	}

	a.token = installToken.Token
	a.expiresAt = installToken.ExpiresAt

	return a.token, nil
}

// NeedsRefresh returns true if the token is missing, expired, or will expire soon.
func (a *AppAuth) NeedsRefresh() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return !a.isValidLocked()
}

// ExpiresAt returns the expiration time of the current token.
// Returns zero time if no token has been fetched.
func (a *AppAuth) ExpiresAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.expiresAt
}

// isValidLocked checks if the current token is valid (must hold at least RLock).
func (a *AppAuth) isValidLocked() bool {
	if a.token == "" {
		return false
	}
	return a.expiresAt.After(a.nowFunc().Add(TokenRefreshBuffer))
}

// exchange trades an App JWT for an installation access token.
func (a *AppAuth) exchange(ctx context.Context, appJWT string) (*InstallationToken, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL, a.installationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, exchangeError(resp.StatusCode, body)
	}

	var token InstallationToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	return &token, nil
}

func exchangeError(statusCode int, body []byte) error {
	message := parseErrorMessage(statusCode, body)
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("unauthorized: %s (check JWT validity and expiration)", message)
	case http.StatusForbidden:
		return fmt.Errorf("forbidden: %s (check App permissions)", message)
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s (check installation ID)", message)
	default:
		return fmt.Errorf("token exchange failed (status %d): %s", statusCode, message)
	}
}

// parsePrivateKey parses a PEM-encoded RSA private key in PKCS#1 or
// PKCS#8 format.
func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}

	return rsaKey, nil
}
