package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/weilao/sleepnote/internal/config"
	"github.com/weilao/sleepnote/internal/garmin"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize sleepnote configuration",
	Long: `Initialize sleepnote configuration for the current directory.

This creates a .sleepnote.yaml file with sensible defaults that you can
customize.

Example:
  sleepnote init
  sleepnote init --repo weilao/family-journal --issue 1`,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("repo", "", "GitHub repository in owner/name format")
	initCmd.Flags().Int("issue", 1, "Issue number to post entries to")
	initCmd.Flags().String("domain", garmin.DomainCN, "Garmin Connect domain (garmin.cn, garmin.com)")
	initCmd.Flags().Int64("app-id", 0, "GitHub App ID")
	initCmd.Flags().Int64("installation-id", 0, "GitHub App Installation ID")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

type projectConfig struct {
	Repository string `yaml:"repository"`
	Issue      int    `yaml:"issue"`
	Garmin     struct {
		Domain      string `yaml:"domain"`
		SSLVerify   bool   `yaml:"ssl_verify"`
		TokenSecret string `yaml:"token_secret"`
	} `yaml:"garmin"`
	GitHub struct {
		AppID            int64  `yaml:"app_id,omitempty"`
		InstallationID   int64  `yaml:"installation_id,omitempty"`
		PrivateKeySecret string `yaml:"private_key_secret"`
	} `yaml:"github"`
	Child struct {
		Birthday string `yaml:"birthday"`
	} `yaml:"child"`
}

func initProject(cmd *cobra.Command, args []string) error {
	configPath := filepath.Join(".", ".sleepnote.yaml")

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := projectConfig{}

	// Get values from flags or defaults
	cfg.Repository, _ = cmd.Flags().GetString("repo")
	cfg.Issue, _ = cmd.Flags().GetInt("issue")
	cfg.Garmin.Domain, _ = cmd.Flags().GetString("domain")
	cfg.GitHub.AppID, _ = cmd.Flags().GetInt64("app-id")
	cfg.GitHub.InstallationID, _ = cmd.Flags().GetInt64("installation-id")

	// The CN endpoints serve certificates that fail standard checks, so
	// verification is only on for the international domain.
	cfg.Garmin.SSLVerify = cfg.Garmin.Domain != garmin.DomainCN
	cfg.Child.Birthday = config.DefaultChildBirthday

	// The private key path placeholder only makes sense alongside App
	// credentials; an empty github section keeps the file valid for
	// personal-token use.
	if cfg.GitHub.AppID != 0 {
		cfg.GitHub.PrivateKeySecret = "projects/YOUR_PROJECT/secrets/sleepnote-github-key"
	}

	// Write config file
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# Sleepnote Configuration
# See https://github.com/weilao/sleepnote for documentation

`

	if err := os.WriteFile(configPath, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n\n", configPath)
	fmt.Println("Next steps:")
	fmt.Println("  1. Set the repository to your journal repo (owner/name)")
	fmt.Println("  2. Export GARTH_TOKEN_STRING with your Garmin session, or set garmin.token_secret")
	fmt.Println("  3. Export GITHUB_TOKEN, or set the GitHub App credentials")
	fmt.Println("  4. Run 'sleepnote post --dry-run' to preview an entry")

	return nil
}
