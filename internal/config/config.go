// Package config loads and validates the sleepnote configuration.
package config

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/spf13/viper"

	"github.com/weilao/sleepnote/internal/garmin"
)

// DefaultChildBirthday is used when neither the config file nor the
// CHILD_BIRTHDAY environment variable provides a birthday.
const DefaultChildBirthday = "2025-05-10"

// Config represents the full sleepnote configuration.
type Config struct {
	Repository string       `mapstructure:"repository"`
	Issue      int          `mapstructure:"issue"`
	Garmin     GarminConfig `mapstructure:"garmin"`
	GitHub     GitHubConfig `mapstructure:"github"`
	Child      ChildConfig  `mapstructure:"child"`
}

// GarminConfig contains Garmin Connect settings.
type GarminConfig struct {
	Domain      string `mapstructure:"domain"`
	SSLVerify   *bool  `mapstructure:"ssl_verify"`
	TokenSecret string `mapstructure:"token_secret"`
}

// GitHubConfig contains GitHub App authentication settings. All three
// fields are optional as a group; a personal GITHUB_TOKEN is used when
// they are absent.
type GitHubConfig struct {
	AppID            int64  `mapstructure:"app_id"`
	InstallationID   int64  `mapstructure:"installation_id"`
	PrivateKeySecret string `mapstructure:"private_key_secret"`
}

// ChildConfig contains settings for the child age annotation.
type ChildConfig struct {
	Birthday string `mapstructure:"birthday"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Issue == 0 {
		cfg.Issue = 1
	}

	if cfg.Garmin.Domain == "" {
		cfg.Garmin.Domain = garmin.DomainCN
	}

	// Certificate checks stay on for the international domain; the CN
	// endpoints serve certificates that fail standard verification.
	if cfg.Garmin.SSLVerify == nil {
		verify := cfg.Garmin.Domain != garmin.DomainCN
		cfg.Garmin.SSLVerify = &verify
	}

	if cfg.Child.Birthday == "" {
		cfg.Child.Birthday = DefaultChildBirthday
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Issue <= 0 {
		return fmt.Errorf("issue number must be positive")
	}

	if c.Garmin.Domain != garmin.DomainCN && c.Garmin.Domain != garmin.DomainCOM {
		return fmt.Errorf("invalid garmin domain: %s (must be %s or %s)", c.Garmin.Domain, garmin.DomainCN, garmin.DomainCOM)
	}

	if c.Child.Birthday != "" {
		if _, err := civil.ParseDate(c.Child.Birthday); err != nil {
			return fmt.Errorf("invalid child birthday: %w", err)
		}
	}

	if c.GitHub.AppID != 0 || c.GitHub.InstallationID != 0 || c.GitHub.PrivateKeySecret != "" {
		if c.GitHub.AppID == 0 {
			return fmt.Errorf("GitHub App ID is required")
		}
		if c.GitHub.InstallationID == 0 {
			return fmt.Errorf("GitHub App Installation ID is required")
		}
		if c.GitHub.PrivateKeySecret == "" {
			return fmt.Errorf("GitHub App private key secret path is required")
		}
	}

	return nil
}

// UsesAppAuth reports whether GitHub App credentials are configured.
func (c *Config) UsesAppAuth() bool {
	return c.GitHub.AppID != 0
}
