// Package secrets resolves credential references used in configuration.
//
// A reference takes one of three forms: "env:NAME" reads an environment
// variable, "file:PATH" (or a bare absolute path) reads a file, and a
// "projects/" path reads a GCP Secret Manager secret version.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretFetcher fetches secret payloads from a secret store.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, name string) (string, error)
	Close() error
}

// Resolver resolves credential references. The Secret Manager client is
// created lazily on the first projects/ reference, so configurations
// using only env and file references never touch GCP.
type Resolver struct {
	mu         sync.Mutex
	fetcher    SecretFetcher
	newFetcher func(ctx context.Context) (SecretFetcher, error)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFetcher sets a pre-built secret fetcher (useful for testing).
func WithFetcher(fetcher SecretFetcher) ResolverOption {
	return func(r *Resolver) {
		r.fetcher = fetcher
	}
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		newFetcher: func(ctx context.Context) (SecretFetcher, error) {
			return NewGCPFetcher(ctx)
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the credential value a reference points at.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)

	switch {
	case ref == "":
		return "", errors.New("credential reference cannot be empty")

	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		value := os.Getenv(name)
		if value == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return value, nil

	case strings.HasPrefix(ref, "file:"):
		return readCredentialFile(strings.TrimPrefix(ref, "file:"))

	case strings.HasPrefix(ref, "projects/"):
		fetcher, err := r.secretFetcher(ctx)
		if err != nil {
			return "", err
		}
		name := ref
		if !strings.Contains(name, "/versions/") {
			name += "/versions/latest"
		}
		return fetcher.FetchSecret(ctx, name)

	case strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "./"):
		return readCredentialFile(ref)

	default:
		return "", fmt.Errorf("unrecognized credential reference %q (use env:NAME, file:PATH, or a projects/ secret path)", ref)
	}
}

// Close closes the Secret Manager client if one was created.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fetcher == nil {
		return nil
	}
	err := r.fetcher.Close()
	r.fetcher = nil
	return err
}

func (r *Resolver) secretFetcher(ctx context.Context) (SecretFetcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fetcher != nil {
		return r.fetcher, nil
	}

	fetcher, err := r.newFetcher(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	r.fetcher = fetcher
	return fetcher, nil
}

func readCredentialFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read credential file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// gcpFetcher wraps the GCP Secret Manager client.
type gcpFetcher struct {
	client *secretmanager.Client
}

// NewGCPFetcher creates a SecretFetcher backed by GCP Secret Manager.
func NewGCPFetcher(ctx context.Context, opts ...option.ClientOption) (SecretFetcher, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &gcpFetcher{client: client}, nil
}

// FetchSecret retrieves a secret version payload. The name must be a
// full projects/PROJECT/secrets/NAME/versions/VERSION path.
func (f *gcpFetcher) FetchSecret(ctx context.Context, name string) (string, error) {
	// Bound the call so a slow API cannot hang a scheduled run.
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return string(result.Payload.Data), nil
}

// Close closes the underlying client.
func (f *gcpFetcher) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
