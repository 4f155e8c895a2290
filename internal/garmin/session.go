package garmin

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// OAuth1Token is the consumer-signed token half of a Garmin Connect
// session. It is carried through restore/export round trips but never
// used directly by this client.
type OAuth1Token struct {
	OAuthToken       string `json:"oauth_token"`
	OAuthTokenSecret string `json:"oauth_token_secret"`
	MFAToken         string `json:"mfa_token,omitempty"`
	Domain           string `json:"domain,omitempty"`
}

// OAuth2Token is the bearer token used on Connect API requests.
type OAuth2Token struct {
	Scope                 string `json:"scope"`
	JTI                   string `json:"jti"`
	TokenType             string `json:"token_type"`
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	ExpiresAt             int64  `json:"expires_at"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in,omitempty"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at,omitempty"`
}

// Expired reports whether the access token's expiry has passed.
func (t OAuth2Token) Expired(now time.Time) bool {
	return t.ExpiresAt <= now.Unix()
}

// Authorization renders the token as an Authorization header value.
func (t OAuth2Token) Authorization() string {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return titleCase(tokenType) + " " + t.AccessToken
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Session is a restorable Garmin Connect login: the OAuth1/OAuth2 token
// pair the login flow produces. The serialized form is a base64-encoded
// JSON array of the two tokens, the same layout the garth tooling dumps,
// so a token exported there restores here unchanged.
type Session struct {
	OAuth1 OAuth1Token
	OAuth2 OAuth2Token
}

// RestoreSession decodes a previously exported session token string.
func RestoreSession(tokenString string) (*Session, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(tokenString))
	if err != nil {
		return nil, fmt.Errorf("decode session token: %w", err)
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if len(pair) != 2 {
		return nil, fmt.Errorf("parse session token: expected 2 token objects, got %d", len(pair))
	}

	var s Session
	if err := json.Unmarshal(pair[0], &s.OAuth1); err != nil {
		return nil, fmt.Errorf("parse oauth1 token: %w", err)
	}
	if err := json.Unmarshal(pair[1], &s.OAuth2); err != nil {
		return nil, fmt.Errorf("parse oauth2 token: %w", err)
	}
	if s.OAuth2.AccessToken == "" {
		return nil, errors.New("session token carries no access token")
	}
	return &s, nil
}

// Export serializes the session in the same format RestoreSession
// accepts.
func (s *Session) Export() (string, error) {
	raw, err := json.Marshal([]interface{}{s.OAuth1, s.OAuth2})
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
