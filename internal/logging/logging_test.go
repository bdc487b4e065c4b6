package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theonlywayisdigital/donedex-sub002/internal/config"
)

func TestSetupStderrOnly(t *testing.T) {
	w, closer, err := Setup(config.LogConfig{})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer closer.Close()

	if w != os.Stderr {
		t.Error("Expected stderr writer when no file is configured")
	}
}

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "donedex.log")

	w, closer, err := Setup(config.LogConfig{File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer closer.Close()

	logger := New(w, "test")
	logger.Println("hello from the test")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "[test] ") {
		t.Errorf("Expected component prefix in log output, got %q", string(data))
	}
	if !strings.Contains(string(data), "hello from the test") {
		t.Errorf("Expected message in log output, got %q", string(data))
	}
}
