package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testEntry = "2026-01-06: 昨日睡觉 23:30 今天起床 07:00"

// fixedNow freezes footer timestamps so comment bodies are deterministic.
var fixedNow = time.Date(2026, time.January, 6, 14, 33, 44, 0, time.UTC)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient("test-token", "owner/repo",
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithNowFunc(func() time.Time { return fixedNow }),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func checkRequestHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("Authorization header = %q, want %q", got, "Bearer test-token")
	}
	if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
		t.Errorf("Accept header = %q, want %q", got, "application/vnd.github+json")
	}
	if got := r.Header.Get("X-GitHub-Api-Version"); got != "2022-11-28" {
		t.Errorf("X-GitHub-Api-Version header = %q, want %q", got, "2022-11-28")
	}
}

func TestNewClient_EmptyToken(t *testing.T) {
	_, err := NewClient("", "owner/repo")
	if err == nil {
		t.Fatal("expected error for empty token")
	}
	if !strings.Contains(err.Error(), "token cannot be empty") {
		t.Errorf("error = %v, want token cannot be empty", err)
	}
}

func TestNewClient_InvalidRepository(t *testing.T) {
	_, err := NewClient("test-token", "not-a-repo")
	if err == nil {
		t.Fatal("expected error for invalid repository")
	}
	if !strings.Contains(err.Error(), "invalid repository format") {
		t.Errorf("error = %v, want invalid repository format", err)
	}
}

func TestParseRepository(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOwner string
		wantName  string
		wantErr   bool
	}{
		{name: "simple", input: "weilao/family-journal", wantOwner: "weilao", wantName: "family-journal"},
		{name: "host prefix", input: "github.com/weilao/family-journal", wantOwner: "weilao", wantName: "family-journal"},
		{name: "https URL", input: "https://github.com/weilao/family-journal", wantOwner: "weilao", wantName: "family-journal"},
		{name: "http URL", input: "http://github.com/weilao/family-journal", wantOwner: "weilao", wantName: "family-journal"},
		{name: "git suffix", input: "https://github.com/weilao/family-journal.git", wantOwner: "weilao", wantName: "family-journal"},
		{name: "missing name", input: "weilao", wantErr: true},
		{name: "empty owner", input: "/family-journal", wantErr: true},
		{name: "empty name", input: "weilao/", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, name, err := ParseRepository(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRepository(%q) expected error, got %s/%s", tt.input, owner, name)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRepository(%q) error = %v", tt.input, err)
			}
			if owner != tt.wantOwner || name != tt.wantName {
				t.Errorf("ParseRepository(%q) = %s/%s, want %s/%s", tt.input, owner, name, tt.wantOwner, tt.wantName)
			}
		})
	}
}

func TestVerifyIssueExists_Found(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkRequestHeaders(t, r)
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/repos/owner/repo/issues/42" {
			t.Errorf("path = %s, want /repos/owner/repo/issues/42", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"number": 42, "state": "open"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	exists, err := client.VerifyIssueExists(context.Background(), 42)
	if err != nil {
		t.Fatalf("VerifyIssueExists() error = %v", err)
	}
	if !exists {
		t.Error("expected issue to exist")
	}
}

func TestVerifyIssueExists_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	exists, err := client.VerifyIssueExists(context.Background(), 42)
	if err != nil {
		t.Fatalf("VerifyIssueExists() error = %v", err)
	}
	if exists {
		t.Error("expected missing issue to report false without error")
	}
}

func TestVerifyIssueExists_InvalidToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.VerifyIssueExists(context.Background(), 42)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Error() != "invalid GitHub token" {
		t.Errorf("error = %q, want %q", authErr.Error(), "invalid GitHub token")
	}
}

func TestVerifyIssueExists_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message": "Server Error"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.VerifyIssueExists(context.Background(), 42)
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if clientErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", clientErr.StatusCode)
	}
}

func TestPostComment_AppendsMetadataFooter(t *testing.T) {
	var postedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkRequestHeaders(t, r)
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `[]`)
			return
		}
		if r.URL.Path != "/repos/owner/repo/issues/42/comments" {
			t.Errorf("path = %s, want /repos/owner/repo/issues/42/comments", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		postedBody = payload["body"]
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	posted, err := client.PostComment(context.Background(), 42, testEntry, nil, false)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if !posted {
		t.Fatal("expected comment to be posted")
	}

	want := testEntry + "\n\n<!-- data-source: garmin, fetched-at: 2026-01-06T14:33:44Z -->"
	if postedBody != want {
		t.Errorf("posted body = %q, want %q", postedBody, want)
	}
}

func TestPostComment_SkipsSameDate(t *testing.T) {
	postCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if got := r.URL.Query().Get("per_page"); got != "10" {
				t.Errorf("per_page = %q, want 10", got)
			}
			if got := r.URL.Query().Get("direction"); got != "desc" {
				t.Errorf("direction = %q, want desc", got)
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `[{"id": 9, "body": "2026-01-06: 昨日睡觉 23:00 今天起床 06:45\n\n<!-- data-source: garmin, fetched-at: 2026-01-06T01:02:03Z -->"}]`)
			return
		}
		postCount++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	posted, err := client.PostComment(context.Background(), 42, testEntry, nil, false)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if posted {
		t.Error("expected same-date comment to be skipped")
	}
	if postCount != 0 {
		t.Errorf("POST count = %d, want 0", postCount)
	}
}

func TestPostComment_ExactMatchIgnoresDateOverlap(t *testing.T) {
	postCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `[{"id": 9, "body": "2026-01-06 08:00:00 - morning walk\n\n<!-- data-source: quick-note, fetched-at: 2026-01-06T00:00:00Z, posted-at: 2026-01-06T08:00:00 -->"}]`)
			return
		}
		postCount++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	posted, err := client.PostComment(context.Background(), 42, "2026-01-06 21:00:00 - evening walk", map[string]string{
		"data-source": "quick-note",
		"posted-at":   "2026-01-06T21:00:00",
	}, true)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if !posted {
		t.Error("expected distinct note on the same date to be posted")
	}
	if postCount != 1 {
		t.Errorf("POST count = %d, want 1", postCount)
	}
}

func TestPostComment_ExactMatchSkipsIdenticalBody(t *testing.T) {
	existing := "2026-01-06 21:00:00 - evening walk\n\n<!-- data-source: quick-note, fetched-at: 2026-01-06T14:33:44Z, posted-at: 2026-01-06T21:00:00 -->"
	postCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			if err := json.NewEncoder(w).Encode([]Comment{{ID: 9, Body: existing}}); err != nil {
				t.Fatalf("failed to encode comments: %v", err)
			}
			return
		}
		postCount++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	posted, err := client.PostComment(context.Background(), 42, "2026-01-06 21:00:00 - evening walk", map[string]string{
		"data-source": "quick-note",
		"posted-at":   "2026-01-06T21:00:00",
	}, true)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if posted {
		t.Error("expected identical note to be skipped")
	}
	if postCount != 0 {
		t.Errorf("POST count = %d, want 0", postCount)
	}
}

func TestPostComment_CallerMetadataOverridesDefaults(t *testing.T) {
	var postedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `[]`)
			return
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		postedBody = payload["body"]
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.PostComment(context.Background(), 42, "2026-01-06 21:00:00 - evening walk", map[string]string{
		"data-source": "quick-note",
		"posted-at":   "2026-01-06T21:00:00",
	}, true)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}

	want := "2026-01-06 21:00:00 - evening walk\n\n<!-- data-source: quick-note, fetched-at: 2026-01-06T14:33:44Z, posted-at: 2026-01-06T21:00:00 -->"
	if postedBody != want {
		t.Errorf("posted body = %q, want %q", postedBody, want)
	}
}

func TestPostComment_PostsWhenDuplicateCheckFails(t *testing.T) {
	postCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message": "Server Error"}`)
			return
		}
		postCount++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	posted, err := client.PostComment(context.Background(), 42, testEntry, nil, false)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if !posted {
		t.Error("expected comment to be posted when duplicate check fails")
	}
	if postCount != 1 {
		t.Errorf("POST count = %d, want 1", postCount)
	}
}

func TestPostComment_IssueNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `[]`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.PostComment(context.Background(), 42, testEntry, nil, false)
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	want := "issue #42 or repository owner/repo not found"
	if clientErr.Error() != want {
		t.Errorf("error = %q, want %q", clientErr.Error(), want)
	}
}

func TestPostComment_InvalidToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.PostComment(context.Background(), 42, testEntry, nil, false)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestCreateIssue_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkRequestHeaders(t, r)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/repos/owner/repo/issues" {
			t.Errorf("path = %s, want /repos/owner/repo/issues", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if payload["title"] != "remember to stretch" {
			t.Errorf("title = %q, want %q", payload["title"], "remember to stretch")
		}
		if payload["body"] != "" {
			t.Errorf("body = %q, want empty", payload["body"])
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number": 1001}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	number, err := client.CreateIssue(context.Background(), "remember to stretch", "")
	if err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}
	if number != 1001 {
		t.Errorf("issue number = %d, want 1001", number)
	}
}

func TestCreateIssue_InvalidToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.CreateIssue(context.Background(), "remember to stretch", "")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestListRecentComments_ParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `[
			{"id": 12, "body": "newest", "created_at": "2026-01-06T10:00:00Z"},
			{"id": 11, "body": "older", "created_at": "2026-01-05T10:00:00Z"}
		]`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	comments, err := client.ListRecentComments(context.Background(), 42)
	if err != nil {
		t.Fatalf("ListRecentComments() error = %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(comments))
	}
	if comments[0].ID != 12 || comments[0].Body != "newest" {
		t.Errorf("first comment = %+v, want id 12 body newest", comments[0])
	}
	if !comments[0].CreatedAt.Equal(time.Date(2026, time.January, 6, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v, want 2026-01-06T10:00:00Z", comments[0].CreatedAt)
	}
}
