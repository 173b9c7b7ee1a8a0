// Package config provides configuration loading for membankd.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root membankd configuration.
type Config struct {
	Bank    BankConfig    `koanf:"bank"`
	Tracker TrackerConfig `koanf:"tracker"`
	Tools   ToolsConfig   `koanf:"tools"`
	HTTP    HTTPConfig    `koanf:"http"`
	Logging LoggingConfig `koanf:"logging"`
}

// BankConfig configures the local memory bank.
type BankConfig struct {
	// Dir is the memory bank directory (default: "memory-bank").
	Dir string `koanf:"dir"`

	// AuditPath is the append-only audit trail file
	// (default: <dir>/.audit.jsonl).
	AuditPath string `koanf:"audit_path"`

	// Watch enables the fsnotify watcher for external edits.
	Watch bool `koanf:"watch"`
}

// TrackerConfig configures the remote tracker (GitHub).
type TrackerConfig struct {
	// Repo is the full repository name, e.g. "acme/app".
	Repo string `koanf:"repo"`

	// ProjectURL is the optional Projects V2 board URL, e.g.
	// "https://github.com/orgs/acme/projects/1".
	ProjectURL string `koanf:"project_url"`

	// Token is the GitHub API token.
	Token Secret `koanf:"token"`

	// StatusField is the project board field carrying task status
	// (default: "Status").
	StatusField string `koanf:"status_field"`

	// Retry controls backoff on RateLimited/Transient failures.
	Retry RetryConfig `koanf:"retry"`

	// RequestsPerSecond bounds outbound API call rate (default: 5).
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// SnapshotWorkers bounds concurrent issue lookups during
	// snapshotting (default: 4).
	SnapshotWorkers int `koanf:"snapshot_workers"`
}

// RetryConfig controls retry behavior for tracker API calls.
type RetryConfig struct {
	MaxRetries        int      `koanf:"max_retries"`
	InitialBackoff    Duration `koanf:"initial_backoff"`
	MaxBackoff        Duration `koanf:"max_backoff"`
	BackoffMultiplier float64  `koanf:"backoff_multiplier"`
}

// ToolsConfig configures the side-effect tool adapter.
type ToolsConfig struct {
	// BasePath confines filesystem tools (default: ".").
	BasePath string `koanf:"base_path"`

	// UVBin and RuffBin override tool binaries on PATH.
	UVBin   string `koanf:"uv_bin"`
	RuffBin string `koanf:"ruff_bin"`

	// Timeout applies per tool invocation (default: 2m).
	Timeout Duration `koanf:"timeout"`
}

// HTTPConfig configures the optional health/metrics endpoint.
type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Bank.Dir == "" {
		return fmt.Errorf("bank.dir is required")
	}
	if c.Tracker.Repo != "" && !strings.Contains(c.Tracker.Repo, "/") {
		return fmt.Errorf("tracker.repo must be a full name (owner/repo), got %q", c.Tracker.Repo)
	}
	if c.Tracker.ProjectURL != "" && !strings.HasPrefix(c.Tracker.ProjectURL, "https://github.com/") {
		return fmt.Errorf("tracker.project_url must be a github.com project URL")
	}
	if c.Tracker.Retry.MaxRetries < 0 {
		return fmt.Errorf("tracker.retry.max_retries cannot be negative")
	}
	if c.Tracker.SnapshotWorkers < 0 {
		return fmt.Errorf("tracker.snapshot_workers cannot be negative")
	}
	if c.HTTP.Enabled && (c.HTTP.Port < 1 || c.HTTP.Port > 65535) {
		return fmt.Errorf("http.port must be in 1-65535, got %d", c.HTTP.Port)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Bank.Dir == "" {
		cfg.Bank.Dir = "memory-bank"
	}
	if cfg.Bank.AuditPath == "" {
		cfg.Bank.AuditPath = cfg.Bank.Dir + "/.audit.jsonl"
	}

	if cfg.Tracker.StatusField == "" {
		cfg.Tracker.StatusField = "Status"
	}
	if cfg.Tracker.RequestsPerSecond == 0 {
		cfg.Tracker.RequestsPerSecond = 5
	}
	if cfg.Tracker.SnapshotWorkers == 0 {
		cfg.Tracker.SnapshotWorkers = 4
	}
	if cfg.Tracker.Retry.MaxRetries == 0 {
		cfg.Tracker.Retry.MaxRetries = 3
	}
	if cfg.Tracker.Retry.InitialBackoff == 0 {
		cfg.Tracker.Retry.InitialBackoff = Duration(time.Second)
	}
	if cfg.Tracker.Retry.MaxBackoff == 0 {
		cfg.Tracker.Retry.MaxBackoff = Duration(30 * time.Second)
	}
	if cfg.Tracker.Retry.BackoffMultiplier == 0 {
		cfg.Tracker.Retry.BackoffMultiplier = 2.0
	}

	if cfg.Tools.BasePath == "" {
		cfg.Tools.BasePath = "."
	}
	if cfg.Tools.UVBin == "" {
		cfg.Tools.UVBin = "uv"
	}
	if cfg.Tools.RuffBin == "" {
		cfg.Tools.RuffBin = "ruff"
	}
	if cfg.Tools.Timeout == 0 {
		cfg.Tools.Timeout = Duration(2 * time.Minute)
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "localhost"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9823
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
