// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
	t.Run("CreatesBaseDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "snapshots")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesFile", func(t *testing.T) {
		uri, err := store.PutObject(ctx, "snapshots/links.csv", "text/csv", []byte("url,source\n"))
		require.NoError(t, err)
		expected := filepath.Join(dir, "snapshots", "links.csv")
		assert.Equal(t, "file://"+expected, uri)
		content, err := os.ReadFile(expected)
		require.NoError(t, err)
		assert.Equal(t, "url,source\n", string(content))
	})
	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, " ", "", nil)
		assert.Error(t, err)
	})
	t.Run("OverwritesFile", func(t *testing.T) {
		_, err := store.PutObject(ctx, "snapshots/links.csv", "text/csv", []byte("url,source\nhttps://a,A\n"))
		require.NoError(t, err)
		content, err := os.ReadFile(filepath.Join(dir, "snapshots", "links.csv"))
		require.NoError(t, err)
		assert.Equal(t, "url,source\nhttps://a,A\n", string(content))
		_, err = os.Stat(filepath.Join(dir, "snapshots", "links.csv.tmp"))
		assert.True(t, os.IsNotExist(err))
	})
	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.csv", "", []byte("x"))
		assert.ErrorContains(t, err, "path traversal")
	})
}
