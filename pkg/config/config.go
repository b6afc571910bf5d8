package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full run configuration: the YAML file enumerates the
// scan targets and tuning knobs, credentials come from the environment
// and stay opaque to the rest of the code.
type Config struct {
	LookbackDays       int    `mapstructure:"lookback_days"`
	RetentionDays      int    `mapstructure:"retention_days"`
	Concurrency        int    `mapstructure:"concurrency"`
	StateDir           string `mapstructure:"state_dir"`
	HTTPTimeoutSeconds int    `mapstructure:"http_timeout_seconds"`

	GitHub GitHubConfig `mapstructure:"github"`
	GitLab GitLabConfig `mapstructure:"gitlab"`
	Push   PushConfig   `mapstructure:"push"`
}

type GitHubConfig struct {
	Repositories []string `mapstructure:"repositories"`
	Token        string   `mapstructure:"-"`
}

type GitLabConfig struct {
	BaseURL  string   `mapstructure:"base_url"`
	Projects []string `mapstructure:"projects"`
	Token    string   `mapstructure:"-"`
}

type PushConfig struct {
	URL      string `mapstructure:"url"`
	Job      string `mapstructure:"job"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"-"`
}

// Load reads the YAML configuration file and overlays environment
// variables (.env is honored when present).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	v := viper.New()
	v.SetDefault("lookback_days", 1)
	v.SetDefault("retention_days", 90)
	v.SetDefault("concurrency", 4)
	v.SetDefault("state_dir", "./data")
	v.SetDefault("http_timeout_seconds", 30)
	v.SetDefault("push.job", "flakewatch")

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", "")
	cfg.GitLab.Token = getEnv("GITLAB_TOKEN", "")
	if username := getEnv("PUSH_USERNAME", ""); username != "" {
		cfg.Push.Username = username
	}
	cfg.Push.Password = getEnv("PUSH_PASSWORD", "")

	// DAYS_BACK widens the scan window for backfilling.
	cfg.LookbackDays = getEnvAsInt("DAYS_BACK", cfg.LookbackDays)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookback_days must be positive, got %d", c.LookbackDays)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", c.RetentionDays)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("http_timeout_seconds must be positive, got %d", c.HTTPTimeoutSeconds)
	}
	return nil
}

// HTTPTimeout returns the bounded per-call timeout for outbound HTTP.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
