package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the attachment collaborator. Put persists bytes under a relative
// path and returns the path callers should record on the task row.
type Store interface {
	Put(ctx context.Context, path string, data []byte) (string, error)
}

// LocalStore writes attachments under a base directory, the same directory
// Fiber serves statically at /uploads.
type LocalStore struct {
	BaseDir string
}

func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{BaseDir: baseDir}
}

func (s *LocalStore) Put(ctx context.Context, path string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := filepath.Clean("/" + path) // strip any ../ the caller smuggled in
	full := filepath.Join(s.BaseDir, clean)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("mkdir for attachment: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- os.WriteFile(full, data, 0o644) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("write attachment: %w", err)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return "/uploads" + strings.ReplaceAll(clean, string(filepath.Separator), "/"), nil
}
