package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFilesystemStoreUpload(t *testing.T) {
	tmpDir := t.TempDir()

	srcPath := filepath.Join(tmpDir, "photo.jpg")
	if err := os.WriteFile(srcPath, []byte("jpeg-bytes"), 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}

	store, err := NewFilesystemStore(filepath.Join(tmpDir, "media"))
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}

	key, err := store.UploadMediaFile(context.Background(), "rep-1", "item-1", srcPath, "photo")
	if err != nil {
		t.Fatalf("UploadMediaFile failed: %v", err)
	}

	if !strings.HasPrefix(key, "reports/rep-1/item-1/") {
		t.Errorf("unexpected key layout: %s", key)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Errorf("expected extension preserved, got %s", key)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "media", filepath.FromSlash(key)))
	if err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("file contents corrupted: %q", data)
	}
}

func TestFilesystemStoreMissingSource(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}

	_, err = store.UploadMediaFile(context.Background(), "rep-1", "item-1", "/nonexistent/file.jpg", "photo")
	if err == nil {
		t.Error("expected error for missing source file")
	}
}
