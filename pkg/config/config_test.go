package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
github:
  repositories:
    - acme/widgets
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.LookbackDays)
	assert.Equal(t, 90, cfg.RetentionDays)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "./data", cfg.StateDir)
	assert.Equal(t, "flakewatch", cfg.Push.Job)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, []string{"acme/widgets"}, cfg.GitHub.Repositories)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
lookback_days: 7
retention_days: 30
concurrency: 8
state_dir: /var/lib/flakewatch
github:
  repositories:
    - acme/widgets
    - acme/gadgets
gitlab:
  base_url: https://gitlab.example.com
  projects:
    - platform/ci-tools
push:
  url: https://pushgateway.example.com
  job: ci-flakiness
  username: instance-123
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.LookbackDays)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "/var/lib/flakewatch", cfg.StateDir)
	assert.Equal(t, []string{"acme/widgets", "acme/gadgets"}, cfg.GitHub.Repositories)
	assert.Equal(t, "https://gitlab.example.com", cfg.GitLab.BaseURL)
	assert.Equal(t, []string{"platform/ci-tools"}, cfg.GitLab.Projects)
	assert.Equal(t, "https://pushgateway.example.com", cfg.Push.URL)
	assert.Equal(t, "ci-flakiness", cfg.Push.Job)
	assert.Equal(t, "instance-123", cfg.Push.Username)
}

func TestLoadTokensFromEnvironment(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "gh-token")
	t.Setenv("GITLAB_TOKEN", "gl-token")
	t.Setenv("PUSH_USERNAME", "env-user")
	t.Setenv("PUSH_PASSWORD", "env-pass")

	path := writeConfig(t, `
github:
  repositories: [acme/widgets]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gh-token", cfg.GitHub.Token)
	assert.Equal(t, "gl-token", cfg.GitLab.Token)
	assert.Equal(t, "env-user", cfg.Push.Username)
	assert.Equal(t, "env-pass", cfg.Push.Password)
}

func TestLoadDaysBackOverridesLookback(t *testing.T) {
	t.Setenv("DAYS_BACK", "90")

	path := writeConfig(t, `
lookback_days: 1
github:
  repositories: [acme/widgets]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.LookbackDays)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
retention_days: -1
github:
  repositories: [acme/widgets]
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
