// Package local implements a filesystem blob store used to mirror result
// snapshots next to the working data.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where snapshots are written.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes snapshots below one directory. Keys are slash-separated
// and may not leave the directory.
type BlobStore struct {
	baseDir string
}

// New creates a filesystem-backed blob store, creating BaseDir if needed.
func New(cfg Config) (*BlobStore, error) {
	dir := strings.TrimSpace(cfg.BaseDir)
	if dir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	return &BlobStore{baseDir: abs}, nil
}

// PutObject replaces the snapshot at key and returns a file:// URI. The
// snapshot is written to a temporary file first so readers never observe a
// partial file.
func (s *BlobStore) PutObject(_ context.Context, key string, _ string, data []byte) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("object key is required")
	}
	clean := path.Clean(strings.TrimLeft(filepath.ToSlash(key), "/"))
	if clean == "." || !fs.ValidPath(clean) {
		return "", fmt.Errorf("path traversal detected in %q", key)
	}

	root, err := os.OpenRoot(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("open base directory: %w", err)
	}
	defer root.Close()

	if dir := path.Dir(clean); dir != "." {
		if err := root.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("create parent directories: %w", err)
		}
	}
	tmp := clean + ".tmp"
	if err := root.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := root.Rename(tmp, clean); err != nil {
		_ = root.Remove(tmp)
		return "", fmt.Errorf("replace %s: %w", clean, err)
	}
	return "file://" + filepath.Join(s.baseDir, filepath.FromSlash(clean)), nil
}
