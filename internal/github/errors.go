package github

import (
	"encoding/json"
	"fmt"
)

// AuthError indicates the GitHub API rejected the credential.
type AuthError struct {
	StatusCode int
	Repo       string
}

func (e *AuthError) Error() string {
	return "invalid GitHub token"
}

// ClientError is any other GitHub API failure, carrying issue and
// repository context for diagnostics.
type ClientError struct {
	StatusCode  int
	Repo        string
	IssueNumber int
	Message     string
}

func (e *ClientError) Error() string {
	return e.Message
}

// apiMessage is the error payload shape the GitHub API returns.
type apiMessage struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

func parseErrorMessage(statusCode int, body []byte) string {
	var m apiMessage
	if err := json.Unmarshal(body, &m); err != nil || m.Message == "" {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Sprintf("status %d: %s", statusCode, msg)
	}
	return m.Message
}
