// Package config provides unit tests for configuration loading.
package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadMissingFileReturnsDefaults tests that a missing config file is not
// an error and yields the built-in defaults.
func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sync.MaxAttempts != 8 {
		t.Errorf("Expected default max_attempts 8, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Location.MaxAccuracyMeters != 25 {
		t.Errorf("Expected default accuracy gate 25m, got %v", cfg.Location.MaxAccuracyMeters)
	}
}

// TestLoadParsesFile tests TOML parsing and default overlay.
func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "https://pmis.example.gov/api/v1"
storage_hosts = ["minio.example.gov", "*.s3.amazonaws.com"]

[sync]
max_attempts = 5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "https://pmis.example.gov/api/v1" {
		t.Errorf("Unexpected base_url: %s", cfg.API.BaseURL)
	}
	if len(cfg.API.StorageHosts) != 2 {
		t.Errorf("Expected 2 storage hosts, got %d", len(cfg.API.StorageHosts))
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("Expected max_attempts 5, got %d", cfg.Sync.MaxAttempts)
	}
	// Untouched sections keep defaults
	if cfg.Sync.BatchSize != 20 {
		t.Errorf("Expected default batch_size 20, got %d", cfg.Sync.BatchSize)
	}
}

// TestLoadRequiresBaseURL tests that an explicit config without a base URL
// is rejected.
func TestLoadRequiresBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[sync]\nbatch_size = 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for missing api.base_url")
	}
}
