package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/dispatcher"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

func TestCrawlJobDetails_EndToEndFromStore(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	e := New(store, Config{MaxThreads: 2})
	a, b := scenarioCrawlers()
	e.RegisterCrawler("A", a)
	e.RegisterCrawler("B", b)

	_, err := e.CrawlJobLinks(context.Background(), crawler.Query{}, 0)
	require.NoError(t, err)

	details, err := e.CrawlJobDetails(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, details, 2)

	titles := map[string]string{}
	for _, d := range details {
		titles[d.URL] = d.Get("title")
		require.Equal(t, map[string]string{"u1": "A", "u3": "B"}[d.URL], d.Source)
	}
	require.Equal(t, map[string]string{"u1": "X", "u3": "Y"}, titles)

	statuses := map[string]crawler.LinkStatus{}
	for _, l := range e.Links() {
		statuses[l.URL] = l.Status
	}
	require.Equal(t, crawler.LinkStatusDetailFetched, statuses["u1"])
	require.Equal(t, crawler.LinkStatusError, statuses["u2"])
	require.Equal(t, crawler.LinkStatusDetailFetched, statuses["u3"])

	require.InDelta(t, 100.0, e.Progress(progress.PhaseDetails), 1e-9)
	stats := e.Stats(progress.PhaseDetails)
	require.Equal(t, 2, stats.Processed)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, stats.Total-stats.Processed, stats.Failed)

	require.Len(t, store.Details(), 2)
	for _, l := range store.Links() {
		require.Equal(t, statuses[l.URL], l.Status)
	}
}

func TestCrawlJobDetails_UnknownSourceIsAFailure(t *testing.T) {
	t.Parallel()

	e := New(&fakeStore{}, Config{}, WithRunner(dispatcher.Inline{}))
	e.RegisterCrawler("A", &fakeCrawler{records: map[string]crawler.Record{"u1": crawler.RecordOf("title", "X")}})

	details, err := e.CrawlJobDetails(context.Background(), []crawler.LinkRecord{
		{URL: "u1", Source: "A"},
		{URL: "z1", Source: "Z"},
		{URL: "z2"},
	})
	require.NoError(t, err)
	require.Len(t, details, 1)

	links := e.Links()
	require.Equal(t, crawler.LinkStatusDetailFetched, links[0].Status)
	require.Equal(t, crawler.LinkStatusError, links[1].Status)
	require.Equal(t, crawler.LinkStatusError, links[2].Status)
	require.Equal(t, progress.Counters{Total: 3, Processed: 1, Failed: 2}, e.Stats(progress.PhaseDetails))
}

func TestCrawlJobDetails_EmptyAndPanickingExtractionsFail(t *testing.T) {
	t.Parallel()

	e := New(&fakeStore{}, Config{MaxThreads: 3})
	e.RegisterCrawler("A", &fakeCrawler{
		panicOn: "boom",
		records: map[string]crawler.Record{
			"blank": crawler.RecordOf("title", "   "),
			"ok":    crawler.RecordOf("title", "Go"),
		},
	})

	details, err := e.CrawlJobDetails(context.Background(), []crawler.LinkRecord{
		{URL: "blank", Source: "A"},
		{URL: "boom", Source: "A"},
		{URL: "missing", Source: "A"},
		{URL: "ok", Source: "A"},
	})
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, "ok", details[0].URL)
	require.Equal(t, 3, e.Stats(progress.PhaseDetails).Failed)
}

func TestCrawlJobDetails_PersistenceMiss(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	e := New(store, Config{})

	details, err := e.CrawlJobDetails(context.Background(), nil)
	require.ErrorIs(t, err, crawler.ErrNoLinks)
	require.NotNil(t, details)
	require.Empty(t, details)
	require.Zero(t, e.Progress(progress.PhaseDetails))
	require.Zero(t, store.detailSave)
}

func TestCrawlJobDetails_LoadFailure(t *testing.T) {
	t.Parallel()

	e := New(&fakeStore{loadErr: errors.New("permission denied")}, Config{})
	details, err := e.CrawlJobDetails(context.Background(), nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, crawler.ErrNoLinks)
	require.Empty(t, details)
}

func TestCrawlJobDetails_EmptyInputSavesEmptyResult(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	e := New(store, Config{})
	details, err := e.CrawlJobDetails(context.Background(), []crawler.LinkRecord{})
	require.NoError(t, err)
	require.Empty(t, details)
	require.Equal(t, 1, store.detailSave)
	require.Zero(t, e.Progress(progress.PhaseDetails))
}

func TestCrawlJobDetails_PersistenceFailureKeepsResults(t *testing.T) {
	t.Parallel()

	store := &fakeStore{saveErr: errors.New("read-only file system")}
	e := New(store, Config{})
	a, b := scenarioCrawlers()
	e.RegisterCrawler("A", a)
	e.RegisterCrawler("B", b)

	details, err := e.CrawlJobDetails(context.Background(), seedLinks())
	require.Error(t, err)
	require.Contains(t, err.Error(), "save details")
	require.Len(t, details, 2)
	require.Len(t, e.Details(), 2)
}

func TestCrawlJobDetails_IsIdempotent(t *testing.T) {
	t.Parallel()

	e := New(&fakeStore{}, Config{MaxThreads: 3})
	a, b := scenarioCrawlers()
	e.RegisterCrawler("A", a)
	e.RegisterCrawler("B", b)

	first, err := e.CrawlJobDetails(context.Background(), seedLinks())
	require.NoError(t, err)
	second, err := e.CrawlJobDetails(context.Background(), seedLinks())
	require.NoError(t, err)

	require.Equal(t, rowsOf(first), rowsOf(second))
}

func TestCrawlJobDetails_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	e := New(&fakeStore{}, Config{})
	a, b := scenarioCrawlers()
	e.RegisterCrawler("A", a)
	e.RegisterCrawler("B", b)

	input := seedLinks()
	_, err := e.CrawlJobDetails(context.Background(), input)
	require.NoError(t, err)
	for _, l := range input {
		require.Equal(t, crawler.LinkStatusPending, l.Status)
	}
}

func TestCrawlJobDetails_EnricherAndCallbacks(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	e := New(&fakeStore{}, Config{}, WithEnricher(distanceEnricher{}), WithEmitter(emitter), WithRunner(dispatcher.Inline{}))
	a, b := scenarioCrawlers()
	e.RegisterCrawler("A", a)
	e.RegisterCrawler("B", b)

	var got []crawler.DetailRecord
	var last float64
	e.SetCallbacks(Callbacks{
		OnDetail:   func(d crawler.DetailRecord) { got = append(got, d) },
		OnProgress: func(_ progress.Phase, pct float64) { last = pct },
	})

	_, err := e.CrawlJobDetails(context.Background(), seedLinks())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "2.5", got[0].Get(crawler.FieldDistance))
	require.Equal(t, "", got[1].Get(crawler.FieldDistance))
	require.InDelta(t, 100.0, last, 1e-9)

	require.Equal(t, []progress.Stage{
		progress.StageRunStart,
		progress.StageDetailDone,
		progress.StageDetailError,
		progress.StageDetailDone,
		progress.StageRunDone,
	}, emitter.Stages())
}

// TestCrawlJobDetails_PauseScenario pauses after three completions with a
// pool of two and checks nothing else commits until Resume.
func TestCrawlJobDetails_PauseScenario(t *testing.T) {
	t.Parallel()

	records := map[string]crawler.Record{}
	links := make([]crawler.LinkRecord, 0, 10)
	for i := 0; i < 10; i++ {
		u := fmt.Sprintf("https://jobs.example/%d", i)
		records[u] = crawler.RecordOf("title", fmt.Sprintf("job %d", i))
		links = append(links, crawler.LinkRecord{URL: u, Source: "A", Status: crawler.LinkStatusPending})
	}
	e := New(&fakeStore{}, Config{MaxThreads: 2})
	site := &fakeCrawler{records: records}
	e.RegisterCrawler("A", site)

	var completions atomic.Int32
	e.SetCallbacks(Callbacks{
		OnDetail: func(crawler.DetailRecord) {
			if completions.Add(1) == 3 {
				e.Pause()
			}
		},
	})

	type result struct {
		details []crawler.DetailRecord
		err     error
	}
	done := make(chan result, 1)
	go func() {
		details, err := e.CrawlJobDetails(context.Background(), links)
		done <- result{details, err}
	}()

	require.Eventually(t, func() bool {
		return e.Stats(progress.PhaseDetails).Processed == 3
	}, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool {
		return e.Stats(progress.PhaseDetails).Processed != 3
	}, 200*time.Millisecond, 10*time.Millisecond)
	require.True(t, e.Paused())
	require.LessOrEqual(t, len(site.Extracted()), 3+2)

	e.Resume()
	require.Eventually(t, func() bool {
		return e.Stats(progress.PhaseDetails).Processed == 10
	}, 2*time.Second, 5*time.Millisecond)
	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.details, 10)
}

func TestCrawlJobDetails_CancelLeavesRemainingPending(t *testing.T) {
	t.Parallel()

	records := map[string]crawler.Record{}
	links := make([]crawler.LinkRecord, 0, 6)
	for i := 0; i < 6; i++ {
		u := fmt.Sprintf("u%d", i)
		records[u] = crawler.RecordOf("title", u)
		links = append(links, crawler.LinkRecord{URL: u, Source: "A"})
	}
	store := &fakeStore{}
	e := New(store, Config{MaxThreads: 1})
	e.RegisterCrawler("A", &fakeCrawler{records: records})
	e.SetCallbacks(Callbacks{OnDetail: func(d crawler.DetailRecord) {
		if d.URL == "u1" {
			e.Pause()
		}
	}})

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		details []crawler.DetailRecord
		err     error
	}
	done := make(chan result, 1)
	go func() {
		d, err := e.CrawlJobDetails(ctx, links)
		done <- result{d, err}
	}()
	require.Eventually(t, e.Paused, time.Second, 5*time.Millisecond)
	cancel()

	res := <-done
	require.ErrorIs(t, res.err, context.Canceled)
	require.Len(t, res.details, 2)
	require.Len(t, store.Details(), 2)

	var pending int
	for _, l := range store.Links() {
		if l.Status == crawler.LinkStatusPending {
			pending++
		}
	}
	require.Equal(t, 4, pending)
	e.Resume()
}

func TestCrawlJobDetails_ConcurrentCountersStayConsistent(t *testing.T) {
	t.Parallel()

	const n = 200
	records := map[string]crawler.Record{}
	errs := map[string]error{}
	links := make([]crawler.LinkRecord, 0, n)
	for i := 0; i < n; i++ {
		u := fmt.Sprintf("u%03d", i)
		if i%4 == 0 {
			errs[u] = errors.New("timeout")
		} else {
			records[u] = crawler.RecordOf("title", u)
		}
		links = append(links, crawler.LinkRecord{URL: u, Source: "A"})
	}
	e := New(&fakeStore{}, Config{MaxThreads: 8})
	e.RegisterCrawler("A", &fakeCrawler{records: records, extractErrs: errs})

	var mu sync.Mutex
	var callbacks int
	e.SetCallbacks(Callbacks{OnDetail: func(crawler.DetailRecord) {
		mu.Lock()
		callbacks++
		mu.Unlock()
	}})

	details, err := e.CrawlJobDetails(context.Background(), links)
	require.NoError(t, err)
	require.Len(t, details, 150)
	require.Equal(t, 150, callbacks)
	require.Equal(t, progress.Counters{Total: n, Processed: 150, Failed: 50}, e.Stats(progress.PhaseDetails))
}

func rowsOf(details []crawler.DetailRecord) []string {
	out := make([]string, 0, len(details))
	for _, d := range details {
		data, err := d.MarshalJSON()
		if err != nil {
			panic(err)
		}
		out = append(out, string(data))
	}
	sort.Strings(out)
	return out
}

func TestCrawlJobDetails_PanickingCallbackStillCommits(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	e := New(store, Config{}, WithRunner(dispatcher.Inline{}))
	e.RegisterCrawler("A", &fakeCrawler{records: map[string]crawler.Record{
		"u1": crawler.RecordOf("title", "X"),
		"u2": crawler.RecordOf("title", "Y"),
	}})
	e.SetCallbacks(Callbacks{OnDetail: func(d crawler.DetailRecord) {
		if d.URL == "u1" {
			panic("observer exploded")
		}
	}})

	details, err := e.CrawlJobDetails(context.Background(), []crawler.LinkRecord{
		{URL: "u1", Source: "A"},
		{URL: "u2", Source: "A"},
	})
	require.NoError(t, err)
	require.Len(t, details, 2)
	require.Equal(t, progress.Counters{Total: 2, Processed: 2}, e.Stats(progress.PhaseDetails))
	for _, l := range store.Links() {
		require.Equal(t, crawler.LinkStatusDetailFetched, l.Status, l.URL)
	}
}

func TestCrawlJobDetails_PersistenceMissResetsPreviousRun(t *testing.T) {
	t.Parallel()

	// Saves fail, so the store never holds links for the second call.
	store := &fakeStore{saveErr: errors.New("read-only")}
	e := New(store, Config{}, WithRunner(dispatcher.Inline{}))
	e.RegisterCrawler("A", &fakeCrawler{records: map[string]crawler.Record{"u1": crawler.RecordOf("title", "X")}})

	_, err := e.CrawlJobDetails(context.Background(), []crawler.LinkRecord{{URL: "u1", Source: "A"}})
	require.Error(t, err)
	require.InDelta(t, 100.0, e.Progress(progress.PhaseDetails), 1e-9)
	require.Len(t, e.Details(), 1)

	_, err = e.CrawlJobDetails(context.Background(), nil)
	require.ErrorIs(t, err, crawler.ErrNoLinks)
	require.Zero(t, e.Progress(progress.PhaseDetails))
	require.Equal(t, progress.Counters{}, e.Stats(progress.PhaseDetails))
	require.NotNil(t, e.Details())
	require.Empty(t, e.Details())
}
