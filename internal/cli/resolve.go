package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/civil"

	"github.com/weilao/sleepnote/internal/config"
	"github.com/weilao/sleepnote/internal/github"
	"github.com/weilao/sleepnote/internal/gitrepo"
	"github.com/weilao/sleepnote/internal/journal"
	"github.com/weilao/sleepnote/internal/logging"
	"github.com/weilao/sleepnote/internal/secrets"
)

// detectRepo is swapped in tests.
var detectRepo = gitrepo.Detect

// resolveTargetDate parses a --date value into a calendar date.
//
// TODO: the post --date help still promises yesterday as the fallback;
// pick one side (help text or this default) once the scheduler run time
// is settled.
func resolveTargetDate(dateStr string, now time.Time) (civil.Date, error) {
	if dateStr == "" {
		return civil.DateOf(now), nil
	}
	date, err := civil.ParseDate(dateStr)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date format: %q (use YYYY-MM-DD)", dateStr)
	}
	return date, nil
}

// resolveRepository picks the target repository: flag first, then the
// GITHUB_REPOSITORY environment variable, then the config file, then
// the git remote of the working directory.
func resolveRepository(ctx context.Context, flagValue string, cfg *config.Config) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if repo := os.Getenv("GITHUB_REPOSITORY"); repo != "" {
		return repo, nil
	}
	if cfg.Repository != "" {
		return cfg.Repository, nil
	}
	repo, err := detectRepo(ctx)
	if err != nil {
		return "", errors.New("could not determine repository: set GITHUB_REPOSITORY, add repository to .sleepnote.yaml, or run from a git repository with a GitHub remote")
	}
	return repo, nil
}

// resolveGarminToken returns the saved Garmin session blob, if any.
// GARTH_TOKEN_STRING wins over the configured secret reference. An
// empty result is not an error; the Garmin client then starts without
// a restored session.
func resolveGarminToken(ctx context.Context, cfg *config.Config, resolver *secrets.Resolver) (string, error) {
	if token := os.Getenv("GARTH_TOKEN_STRING"); token != "" {
		return token, nil
	}
	if cfg.Garmin.TokenSecret == "" {
		return "", nil
	}
	token, err := resolver.Resolve(ctx, cfg.Garmin.TokenSecret)
	if err != nil {
		return "", fmt.Errorf("failed to resolve Garmin session token: %w", err)
	}
	return token, nil
}

// resolveGitHubToken returns an installation token when GitHub App
// credentials are configured, otherwise the personal token from the
// environment.
func resolveGitHubToken(ctx context.Context, cfg *config.Config, resolver *secrets.Resolver) (string, error) {
	if cfg.UsesAppAuth() {
		key, err := resolver.Resolve(ctx, cfg.GitHub.PrivateKeySecret)
		if err != nil {
			return "", fmt.Errorf("failed to resolve GitHub App private key: %w", err)
		}
		auth, err := github.NewAppAuth(strconv.FormatInt(cfg.GitHub.AppID, 10), cfg.GitHub.InstallationID, []byte(key))
		if err != nil {
			return "", err
		}
		return auth.Token(ctx)
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}
	return "", errors.New("GITHUB_TOKEN environment variable is not set")
}

// resolveChildBirthday prefers the CHILD_BIRTHDAY environment variable
// over the config value. An unparseable override logs a warning and
// falls back to the default instead of failing the run.
func resolveChildBirthday(cfg *config.Config, logger logging.Logger) civil.Date {
	raw := os.Getenv("CHILD_BIRTHDAY")
	if raw == "" {
		raw = cfg.Child.Birthday
	}
	if raw == "" {
		return journal.DefaultChildBirthday
	}
	birthday, err := civil.ParseDate(raw)
	if err != nil {
		if logger != nil {
			logger.Warning(fmt.Sprintf("Invalid CHILD_BIRTHDAY format: %s, using default %s", raw, config.DefaultChildBirthday))
		}
		return journal.DefaultChildBirthday
	}
	return birthday
}
