// Package csvstore persists tabular resources as UTF-8 CSV files.
package csvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/storage/tabular"
)

const lockRetry = 25 * time.Millisecond

// Store is a crawler.TableStore where each resource name is a file path.
// Relative resources resolve against BaseDir.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

// Config captures the parameters for the CSV store.
type Config struct {
	BaseDir string `mapstructure:"base_dir"`
}

// New creates a CSV-backed table store.
func New(cfg Config) *Store {
	return &Store{baseDir: cfg.BaseDir}
}

// Path returns the file that backs resource.
func (s *Store) Path(resource string) string {
	if filepath.IsAbs(resource) || s.baseDir == "" {
		return filepath.Clean(resource)
	}
	return filepath.Join(s.baseDir, resource)
}

// Save overwrites resource with rows. The file is replaced atomically so a
// concurrent reader sees either the old or the new content.
func (s *Store) Save(ctx context.Context, resource string, rows []crawler.Record) error {
	if resource == "" {
		return fmt.Errorf("resource is required")
	}
	data, err := tabular.EncodeCSV(tabular.Normalize(rows))
	if err != nil {
		return fmt.Errorf("encode %s: %w", resource, err)
	}
	path := s.Path(resource)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}

	unlock, err := s.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Load reads resource. A missing file yields no rows.
func (s *Store) Load(ctx context.Context, resource string) ([]crawler.Record, error) {
	if resource == "" {
		return nil, fmt.Errorf("resource is required")
	}
	path := s.Path(resource)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return []crawler.Record{}, nil
	}

	unlock, err := s.lock(ctx, path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-configured
	if errors.Is(err, os.ErrNotExist) {
		return []crawler.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	table, err := tabular.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return table.Records(), nil
}

// lock serializes access within the process and across processes sharing
// the data directory.
func (s *Store) lock(ctx context.Context, path string) (func(), error) {
	s.mu.Lock()
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil || !ok {
		s.mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return func() {
		_ = fl.Unlock()
		s.mu.Unlock()
	}, nil
}
