package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

func TestTableStoreSaveLoad(t *testing.T) {
	t.Parallel()

	store := NewTableStore()
	ctx := context.Background()

	got, err := store.Load(ctx, "links")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	rows := []crawler.Record{crawler.RecordOf("url", "u1", "source", "A")}
	require.NoError(t, store.Save(ctx, "links", rows))
	rows[0].Set("url", "mutated")

	got, err = store.Load(ctx, "links")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "u1", got[0].Get("url"))

	got[0].Set("url", "mutated again")
	again, err := store.Load(ctx, "links")
	require.NoError(t, err)
	require.Equal(t, "u1", again[0].Get("url"))
	require.Equal(t, 1, store.Saves("links"))

	require.Error(t, store.Save(ctx, "", rows))
}
