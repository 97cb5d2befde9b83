// Package gcs mirrors result snapshots into a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// snapshotCacheControl keeps readers from serving a stale copy after the
// next phase overwrites the object.
const snapshotCacheControl = "no-cache, max-age=0"

// Config names the destination bucket.
type Config struct {
	Bucket string
}

// BlobStore implements crawler.BlobStore over one bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	switch {
	case client == nil:
		return nil, errors.New("storage client is required")
	case strings.TrimSpace(cfg.Bucket) == "":
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// PutObject overwrites the object at key and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = snapshotCacheControl
	// Snapshots are small; a single request is cheaper than a resumable upload.
	w.ChunkSize = 0

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return "", errors.Join(fmt.Errorf("upload %s: %w", key, err), w.Close())
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}
