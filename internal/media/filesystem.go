package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FilesystemStore copies media files into a local directory tree using
// the same key layout as the S3 store. Useful for development and for
// tests that should not touch the network.
type FilesystemStore struct {
	basePath string
}

// NewFilesystemStore creates a filesystem-backed media store rooted at
// basePath.
func NewFilesystemStore(basePath string) (*FilesystemStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &FilesystemStore{basePath: basePath}, nil
}

// UploadMediaFile implements remote.MediaStore.
func (s *FilesystemStore) UploadMediaFile(ctx context.Context, reportID, templateItemID, localPath, kind string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open media file %s: %w", localPath, err)
	}
	defer src.Close()

	key := objectKey(reportID, templateItemID, localPath)
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create media folder: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to copy media file: %w", err)
	}

	return key, nil
}
