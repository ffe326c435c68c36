package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutWritesUnderBaseDir(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	got, err := s.Put(context.Background(), "tasks/abc/1_result.pdf", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/tasks/abc/1_result.pdf", got)

	data, err := os.ReadFile(filepath.Join(dir, "tasks", "abc", "1_result.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestPutStripsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	_, err := s.Put(context.Background(), "../../etc/passwd", []byte("nope"))
	require.NoError(t, err)

	// the file must land inside the base dir, not above it
	_, statErr := os.Stat(filepath.Join(dir, "etc", "passwd"))
	assert.NoError(t, statErr)
}

func TestPutHonorsCancelledContext(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "tasks/abc/file.txt", []byte("data"))
	assert.ErrorIs(t, err, context.Canceled)
}
