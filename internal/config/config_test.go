package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "memory-bank", cfg.Bank.Dir)
	assert.Equal(t, "memory-bank/.audit.jsonl", cfg.Bank.AuditPath)
	assert.Equal(t, "Status", cfg.Tracker.StatusField)
	assert.Equal(t, 4, cfg.Tracker.SnapshotWorkers)
	assert.Equal(t, 3, cfg.Tracker.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Tracker.Retry.InitialBackoff.Duration())
	assert.Equal(t, 30*time.Second, cfg.Tracker.Retry.MaxBackoff.Duration())
	assert.Equal(t, 2.0, cfg.Tracker.Retry.BackoffMultiplier)
	assert.Equal(t, "uv", cfg.Tools.UVBin)
	assert.Equal(t, "ruff", cfg.Tools.RuffBin)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
bank:
  dir: /tmp/bank
tracker:
  repo: acme/app
  project_url: https://github.com/orgs/acme/projects/1
  token: ghp_test
  retry:
    max_retries: 5
logging:
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/bank", cfg.Bank.Dir)
	assert.Equal(t, "acme/app", cfg.Tracker.Repo)
	assert.Equal(t, 5, cfg.Tracker.Retry.MaxRetries)
	assert.Equal(t, "ghp_test", cfg.Tracker.Token.Value())
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tracker:\n  repo: acme/app\n"), 0o600))

	t.Setenv("MEMBANK_TRACKER_REPO", "acme/other")
	t.Setenv("MEMBANK_BANK_DIR", "/tmp/env-bank")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "acme/other", cfg.Tracker.Repo)
	assert.Equal(t, "/tmp/env-bank", cfg.Bank.Dir)
}

func TestValidate_BadRepo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tracker:\n  repo: not-a-full-name\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker.repo")
}

func TestValidate_BadProjectURL(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Tracker.ProjectURL = "https://example.com/projects/1"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_url")
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("ghp_supersecret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "ghp_supersecret", s.Value())
	assert.True(t, s.IsSet())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("bogus")))
}
