// Package mirror copies every saved table to a blob store as a CSV snapshot.
package mirror

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/storage/tabular"
)

// Store wraps a TableStore. Snapshot uploads never fail a save.
type Store struct {
	next   crawler.TableStore
	blobs  crawler.BlobStore
	prefix string
	logger *zap.Logger
}

// New decorates next so successful saves are mirrored into blobs under prefix.
func New(next crawler.TableStore, blobs crawler.BlobStore, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		next:   next,
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("mirror"),
	}
}

// Save writes to the wrapped store and then uploads a snapshot.
func (s *Store) Save(ctx context.Context, resource string, rows []crawler.Record) error {
	if err := s.next.Save(ctx, resource, rows); err != nil {
		return err //nolint:wrapcheck // decorator is transparent
	}
	if s.blobs == nil {
		return nil
	}
	data, err := tabular.EncodeCSV(tabular.Normalize(rows))
	if err != nil {
		s.logger.Warn("encode snapshot failed", zap.String("resource", resource), zap.Error(err))
		return nil
	}
	key := s.objectKey(resource)
	uri, err := s.blobs.PutObject(ctx, key, "text/csv; charset=utf-8", data)
	if err != nil {
		s.logger.Warn("snapshot upload failed", zap.String("resource", resource), zap.String("key", key), zap.Error(err))
		return nil
	}
	s.logger.Debug("snapshot uploaded", zap.String("resource", resource), zap.String("uri", uri), zap.Int("rows", len(rows)))
	return nil
}

// Load reads from the wrapped store.
func (s *Store) Load(ctx context.Context, resource string) ([]crawler.Record, error) {
	return s.next.Load(ctx, resource) //nolint:wrapcheck // decorator is transparent
}

func (s *Store) objectKey(resource string) string {
	name := filepath.Base(filepath.ToSlash(resource))
	if !strings.HasSuffix(name, ".csv") {
		name += ".csv"
	}
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
