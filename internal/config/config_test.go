package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "donedex.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cache.Path == "" {
		t.Error("Expected a default cache path")
	}
	if cfg.Sync.ConflictStrategy != "newest-wins" {
		t.Errorf("Expected default strategy newest-wins, got %s", cfg.Sync.ConflictStrategy)
	}
	if cfg.Sync.DrainInterval != 30*time.Second {
		t.Errorf("Expected default drain interval 30s, got %v", cfg.Sync.DrainInterval)
	}
	if cfg.Media.Backend != "filesystem" {
		t.Errorf("Expected default media backend filesystem, got %s", cfg.Media.Backend)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Dashboard.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
cache:
  path: /tmp/test-drafts.db
api:
  base_url: https://api.example.com
  token: secret
media:
  backend: s3
  bucket: inspections
  region: eu-west-1
sync:
  drain_interval: 5s
  conflict_strategy: local-wins
dashboard:
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cache.Path != "/tmp/test-drafts.db" {
		t.Errorf("Wrong cache path: %s", cfg.Cache.Path)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("Wrong base URL: %s", cfg.API.BaseURL)
	}
	if cfg.Media.Backend != "s3" || cfg.Media.Bucket != "inspections" {
		t.Errorf("Wrong media config: %+v", cfg.Media)
	}
	if cfg.Sync.DrainInterval != 5*time.Second {
		t.Errorf("Wrong drain interval: %v", cfg.Sync.DrainInterval)
	}
	if cfg.Sync.ConflictStrategy != "local-wins" {
		t.Errorf("Wrong strategy: %s", cfg.Sync.ConflictStrategy)
	}
	if cfg.Dashboard.Port != 9000 {
		t.Errorf("Wrong port: %d", cfg.Dashboard.Port)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
api:
  token: from-file
`)

	t.Setenv("DONEDEX_API_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.Token != "from-env" {
		t.Errorf("Expected env to win, got %s", cfg.API.Token)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad media backend", "media:\n  backend: ftp\n"},
		{"bad strategy", "sync:\n  conflict_strategy: coin-flip\n"},
		{"bad port", "dashboard:\n  port: 99999\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfigFile(t, tt.content)); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}
