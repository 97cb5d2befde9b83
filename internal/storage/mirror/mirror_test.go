package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/storage/memory"
)

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket gone")
}

type failingTables struct{}

func (failingTables) Save(context.Context, string, []crawler.Record) error {
	return errors.New("disk full")
}

func (failingTables) Load(context.Context, string) ([]crawler.Record, error) {
	return nil, errors.New("disk full")
}

func TestSaveMirrorsSnapshot(t *testing.T) {
	t.Parallel()

	tables := memory.NewTableStore()
	blobs := memory.NewBlobStore()
	store := New(tables, blobs, "/snapshots/", nil)
	ctx := context.Background()

	rows := []crawler.Record{crawler.RecordOf("url", "u1", "source", "A")}
	require.NoError(t, store.Save(ctx, "data/job_link_list.csv", rows))

	data, ok := blobs.Object("snapshots/job_link_list.csv")
	require.True(t, ok)
	require.Equal(t, "url,source\nu1,A\n", string(data))

	got, err := store.Load(ctx, "data/job_link_list.csv")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, store.Save(ctx, "details", rows))
	_, ok = blobs.Object("snapshots/details.csv")
	require.True(t, ok)
}

func TestSaveIgnoresUploadFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	tables := memory.NewTableStore()
	store := New(tables, failingBlobs{}, "", zap.New(core))

	require.NoError(t, store.Save(context.Background(), "links", []crawler.Record{crawler.RecordOf("url", "u1")}))
	require.Equal(t, 1, tables.Saves("links"))
	require.Equal(t, 1, logs.FilterMessage("snapshot upload failed").Len())
}

func TestSavePropagatesStoreFailure(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	store := New(failingTables{}, blobs, "", nil)

	err := store.Save(context.Background(), "links", nil)
	require.ErrorContains(t, err, "disk full")
	_, ok := blobs.Object("links.csv")
	require.False(t, ok)
}
