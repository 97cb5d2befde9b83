package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	run := crawler.Run{ID: "run-1", Submitted: time.Unix(100, 0)}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := store.CreateRun(ctx, run); err == nil {
		t.Fatal("expected duplicate run error")
	}
	queued, err := store.GetRun(ctx, run.ID)
	if err != nil || queued.Status != crawler.RunStatusQueued {
		t.Fatalf("expected queued run, got %+v err=%v", queued, err)
	}
	if err := store.UpdateRunStatus(ctx, run.ID, crawler.RunStatusRunning, "", crawler.RunCounters{}); err != nil {
		t.Fatalf("UpdateRunStatus running error = %v", err)
	}
	err = store.UpdateRunStatus(ctx, run.ID, crawler.RunStatusSucceeded, "", crawler.RunCounters{
		LinksFound:       3,
		DetailsProcessed: 2,
		DetailsFailed:    1,
	})
	if err != nil {
		t.Fatalf("UpdateRunStatus succeeded error = %v", err)
	}
	final, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if final.Status != crawler.RunStatusSucceeded || final.Started == nil || final.Finished == nil {
		t.Fatalf("expected timestamps set, got %+v", final)
	}
	if final.Counters.DetailsFailed != 1 {
		t.Fatalf("unexpected counters %+v", final.Counters)
	}
}

func TestRunStoreMissingRun(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	if _, err := store.GetRun(context.Background(), "nope"); !errors.Is(err, crawler.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	err := store.UpdateRunStatus(context.Background(), "nope", crawler.RunStatusFailed, "x", crawler.RunCounters{})
	if !errors.Is(err, crawler.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		if err := store.CreateRun(ctx, crawler.Run{ID: id, Submitted: time.Unix(int64(i), 0)}); err != nil {
			t.Fatalf("CreateRun(%s) error = %v", id, err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "c" || runs[2].ID != "a" {
		t.Fatalf("unexpected order %+v", runs)
	}
}
