package config

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"backupnow/internal/sysdirs"
)

// Config holds all configuration for the backupnow application.
// Values are loaded from environment variables; flags may override a
// few of them at the CLI layer.
type Config struct {
	// SettingsPath, when set, skips the settings-file search order.
	SettingsPath string `json:"settings_path,omitempty"`

	CheckInterval    time.Duration `json:"-"`
	CheckIntervalStr string        `json:"check_interval"`

	// Threaded runs each cycle's jobs on goroutines instead of
	// sequentially on the caller.
	Threaded bool `json:"threaded"`

	HistoryEnabled      bool          `json:"history_enabled"`
	HistoryPath         string        `json:"history_path"`
	HistoryRetention    time.Duration `json:"-"`
	HistoryRetentionStr string        `json:"history_retention"`

	StopMaxWait    time.Duration `json:"-"`
	StopMaxWaitStr string        `json:"stop_max_wait"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPort    int    `json:"metrics_port"`
	MetricsPath    string `json:"metrics_path"`

	// BackupRoot is the directory operations without an explicit
	// destination copy into. Empty means such operations fail.
	BackupRoot string `json:"backup_root,omitempty"`

	CopyWorkers int `json:"copy_workers"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		SettingsPath:              os.Getenv("BACKUPNOW_SETTINGS"),
		CheckIntervalStr:          os.Getenv("BACKUPNOW_CHECK_INTERVAL"),
		Threaded:                  os.Getenv("BACKUPNOW_THREADED") == "true",
		HistoryEnabled:            os.Getenv("BACKUPNOW_HISTORY") != "false",
		HistoryPath:               os.Getenv("BACKUPNOW_HISTORY_PATH"),
		HistoryRetentionStr:       os.Getenv("BACKUPNOW_HISTORY_RETENTION"),
		StopMaxWaitStr:            os.Getenv("BACKUPNOW_STOP_MAX_WAIT"),
		MetricsEnabled:            os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:               os.Getenv("METRICS_PATH"),
		BackupRoot:                os.Getenv("BACKUPNOW_BACKUP_ROOT"),
		CircuitBreakerCooldownStr: os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
	}

	if portStr := os.Getenv("METRICS_PORT"); portStr != "" {
		if n, err := parseInt(portStr); err == nil && n > 0 && n < 65536 {
			cfg.MetricsPort = n
		} else {
			log.Printf("config: invalid METRICS_PORT %q (must be 1-65535), using default 9105", portStr)
		}
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9105
	}

	if workersStr := os.Getenv("BACKUPNOW_COPY_WORKERS"); workersStr != "" {
		if n, err := parseInt(workersStr); err == nil && n > 0 {
			cfg.CopyWorkers = n
		} else {
			log.Printf("config: invalid BACKUPNOW_COPY_WORKERS %q (must be a positive integer), using default 4", workersStr)
		}
	}
	if cfg.CopyWorkers == 0 {
		cfg.CopyWorkers = 4
	}

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 3", cbThreshStr)
		}
	}
	if cfg.CircuitBreakerThreshold == 0 && os.Getenv("CIRCUIT_BREAKER_THRESHOLD") == "" {
		cfg.CircuitBreakerThreshold = 3
	}

	if cfg.CheckIntervalStr == "" {
		cfg.CheckIntervalStr = "1m"
	}
	if cfg.HistoryRetentionStr == "" {
		cfg.HistoryRetentionStr = "2160h"
	}
	if cfg.StopMaxWaitStr == "" {
		cfg.StopMaxWaitStr = "20s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "5m"
	}

	if cfg.HistoryEnabled && cfg.HistoryPath == "" {
		if p, err := sysdirs.AppData("history.db"); err == nil {
			cfg.HistoryPath = p
		} else {
			log.Printf("config: cannot resolve default history path: %v", err)
		}
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.CheckIntervalStr); err == nil {
		cfg.CheckInterval = d
	}
	if d, err := time.ParseDuration(cfg.HistoryRetentionStr); err == nil {
		cfg.HistoryRetention = d
	}
	if d, err := time.ParseDuration(cfg.StopMaxWaitStr); err == nil {
		cfg.StopMaxWait = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}

	return cfg
}

// parseInt parses a string as a base-10 unsigned integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON for startup logging.
// Paths under the user's home directory are masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		SettingsPath            string `json:"settings_path,omitempty"`
		CheckInterval           string `json:"check_interval"`
		Threaded                bool   `json:"threaded"`
		HistoryEnabled          bool   `json:"history_enabled"`
		HistoryPath             string `json:"history_path"`
		HistoryRetention        string `json:"history_retention"`
		StopMaxWait             string `json:"stop_max_wait"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPort             int    `json:"metrics_port"`
		MetricsPath             string `json:"metrics_path"`
		BackupRoot              string `json:"backup_root,omitempty"`
		CopyWorkers             int    `json:"copy_workers"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
	}{
		SettingsPath:            maskHome(c.SettingsPath),
		CheckInterval:           c.CheckIntervalStr,
		Threaded:                c.Threaded,
		HistoryEnabled:          c.HistoryEnabled,
		HistoryPath:             maskHome(c.HistoryPath),
		HistoryRetention:        c.HistoryRetentionStr,
		StopMaxWait:             c.StopMaxWaitStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPort:             c.MetricsPort,
		MetricsPath:             c.MetricsPath,
		BackupRoot:              maskHome(c.BackupRoot),
		CopyWorkers:             c.CopyWorkers,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskHome replaces the user's home directory prefix with "~" so logs
// do not leak the local username.
func maskHome(s string) string {
	if s == "" {
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return s
	}
	if len(s) >= len(home) && s[:len(home)] == home {
		return "~" + s[len(home):]
	}
	return s
}
