// Package config loads the FieldSync core configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the full core configuration.
type Config struct {
	API      APIConfig      `toml:"api"`
	Data     DataConfig     `toml:"data"`
	Sync     SyncConfig     `toml:"sync"`
	Location LocationConfig `toml:"location"`
	Logging  LoggingConfig  `toml:"logging"`
	Status   StatusConfig   `toml:"status"`
}

// APIConfig configures the remote authority client.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
	// StorageHosts lists object-storage host patterns. Requests addressed to
	// these hosts carry their own presigned signature and must never receive
	// a bearer header.
	StorageHosts   []string `toml:"storage_hosts"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	// RequestsPerSecond throttles outgoing calls during a drain so a large
	// backlog does not hammer the authority after a long offline stretch.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// DataConfig configures the local store.
type DataConfig struct {
	Dir string `toml:"dir"`
	// DeviceID, when set, derives the key that encrypts the stored token
	// pair at rest. The UI shell supplies an identifier backed by the
	// platform keystore.
	DeviceID string `toml:"device_id"`
}

// SyncConfig configures the orchestrator's retry policy.
type SyncConfig struct {
	BatchSize          int `toml:"batch_size"`
	MaxAttempts        int `toml:"max_attempts"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	BackoffCapSeconds  int `toml:"backoff_cap_seconds"`
	IntervalMinutes    int `toml:"interval_minutes"`
	GpsBatchSize       int `toml:"gps_batch_size"`
}

// LocationConfig configures GPS capture.
type LocationConfig struct {
	// MaxAccuracyMeters gates samples: a fix with a larger accuracy radius
	// is discarded, not stored.
	MaxAccuracyMeters float64 `toml:"max_accuracy_meters"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// StatusConfig configures the localhost status push endpoint.
type StatusConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		API: APIConfig{
			TimeoutSeconds:    30,
			RequestsPerSecond: 5,
		},
		Data: DataConfig{
			Dir: filepath.Join(home, ".fieldsync"),
		},
		Sync: SyncConfig{
			BatchSize:          20,
			MaxAttempts:        8,
			BackoffBaseSeconds: 5,
			BackoffCapSeconds:  900,
			IntervalMinutes:    15,
			GpsBatchSize:       200,
		},
		Location: LocationConfig{
			MaxAccuracyMeters: 25,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Status: StatusConfig{
			Addr: "localhost:8791",
		},
	}
}

// Load reads the configuration file at path, applying defaults for any
// missing section. A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("config: api.base_url is required")
	}

	return cfg, nil
}

// RequestTimeout returns the per-call timeout as a duration.
func (c *APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffBase returns the base retry delay as a duration.
func (c *SyncConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the maximum retry delay as a duration.
func (c *SyncConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

// SyncInterval returns the periodic sync interval as a duration.
func (c *SyncConfig) SyncInterval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
