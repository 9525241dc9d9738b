package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog"
)

// DefaultConfigFile is the default name of the config file
const DefaultConfigFile = "config.yaml"

// TokenEnvVar overrides the configured token when set. It is also picked up
// from a .env file in the working directory.
const TokenEnvVar = "DKANCTL_TOKEN"

// Config represents the configuration for dkanctl. It carries the catalog
// service URL and optional authentication.
type Config struct {
	// Version of the configuration file format
	Version string `yaml:"version"`
	// CatalogURL is the root URL of the catalog service
	CatalogURL string `yaml:"catalog_url"`
	// Token is the bearer token for authenticated operations
	Token string `yaml:"token,omitempty"`
	// RetryAttempts opts in to retrying transient failures
	RetryAttempts int `yaml:"retry_attempts,omitempty"`
	// TimeoutSeconds bounds each request
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

var config *Config

// GetDefaultConfigPath returns the default path for the config file.
// It uses the OS-specific config directory (e.g., ~/.config/dkanctl on Linux).
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "dkanctl", DefaultConfigFile), nil
}

// LoadConfig loads the configuration from the specified file.
// If no file is specified, it uses the default config location.
func LoadConfig(file string) error {
	if file == "" {
		var err error
		file, err = GetDefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get default config path: %w", err)
		}
	}

	yamlStr, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}

	var c Config
	if err = yaml.Unmarshal(yamlStr, &c); err != nil {
		return fmt.Errorf("unable to parse config file: %w", err)
	}

	if c.CatalogURL == "" {
		return errors.New("catalog_url is required")
	}
	c.CatalogURL = NormalizeServerURL(c.CatalogURL)

	config = &c
	return nil
}

// GetConfig returns the current configuration
func GetConfig() *Config {
	return config
}

// WriteConfig writes the configuration to the specified file
func (cfg *Config) WriteConfig(file string) error {
	if file == "" {
		return errors.New("file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(file), os.ModePerm); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}

	yamlStr, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("unable to generate configuration: %w", err)
	}

	if err := os.WriteFile(file, yamlStr, os.FileMode(0600)); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}

// NormalizeServerURL ensures the catalog URL is properly formatted:
// trailing slashes are removed and https:// is assumed when no scheme is given.
func NormalizeServerURL(server string) string {
	if server == "" {
		return server
	}
	server = strings.TrimRight(server, "/")
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "https://" + server
	}
	return server
}

// token returns the effective bearer token: environment first, config second.
func (cfg *Config) token() string {
	if t := os.Getenv(TokenEnvVar); t != "" {
		return t
	}
	return cfg.Token
}

// newClient builds a catalog client from the loaded configuration.
func newClient() (*catalog.Client, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	ccfg := catalog.Config{
		BaseURL: cfg.CatalogURL,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	if t := cfg.token(); t != "" {
		ccfg.Auth = catalog.NewStaticTokenProvider(t)
	}
	if cfg.RetryAttempts > 1 {
		ccfg.Retry.Attempts = uint(cfg.RetryAttempts)
		ccfg.Retry.Delay = 500 * time.Millisecond
	}
	return catalog.New(ccfg)
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `Manage CLI configuration settings like the catalog service URL and authentication.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogFlag, _ := cmd.Flags().GetString("catalog")
		if catalogFlag != "" {
			return setCatalogConfig(cmd, catalogFlag)
		}
		cmd.Help()
		return nil
	},
}

// configShowCmd prints the active configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := LoadConfig(configFile); err != nil {
			return err
		}
		cfg := GetConfig()
		if jsonOutput {
			printJSON(map[string]any{
				"catalog_url":    cfg.CatalogURL,
				"has_token":      cfg.token() != "",
				"retry_attempts": cfg.RetryAttempts,
			})
		} else {
			fmt.Printf("Catalog: %s\n", cfg.CatalogURL)
			if cfg.token() != "" {
				fmt.Println("Token: configured")
			}
		}
		return nil
	},
}

func init() {
	configCmd.Flags().String("catalog", "", "Set the catalog service URL (e.g., https://demo.getdkan.org)")
	configCmd.Flags().String("token", "", "Set the bearer token for authenticated operations")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// setCatalogConfig writes a fresh configuration pointing at the given catalog
func setCatalogConfig(cmd *cobra.Command, server string) error {
	configPath := configFile
	if configPath == "" {
		var err error
		configPath, err = GetDefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get default config path: %w", err)
		}
	}

	token, _ := cmd.Flags().GetString("token")
	cfg := &Config{
		Version:    "0.1.0",
		CatalogURL: NormalizeServerURL(server),
		Token:      token,
	}

	if err := cfg.WriteConfig(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]string{
			"catalog":     cfg.CatalogURL,
			"config_file": configPath,
		})
	} else {
		fmt.Printf("Catalog configured: %s\n", cfg.CatalogURL)
		fmt.Printf("Config file: %s\n", configPath)
	}
	return nil
}
