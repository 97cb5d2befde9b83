package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

type fakeCrawler struct {
	urls        []string
	discoverErr error
	panicOn     string
	records     map[string]crawler.Record
	extractErrs map[string]error
	// release, when set, blocks Discover until closed.
	release chan struct{}

	mu        sync.Mutex
	extracted []string
}

func (f *fakeCrawler) Discover(ctx context.Context, _ crawler.Query) ([]string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panicOn == "discover" {
		panic("discover exploded")
	}
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return append([]string(nil), f.urls...), nil
}

func (f *fakeCrawler) Extract(_ context.Context, url string) (crawler.Record, error) {
	f.mu.Lock()
	f.extracted = append(f.extracted, url)
	f.mu.Unlock()
	if f.panicOn == url {
		panic("extract exploded")
	}
	if err, ok := f.extractErrs[url]; ok {
		return crawler.Record{}, err
	}
	rec, ok := f.records[url]
	if !ok {
		return crawler.Record{}, nil
	}
	return rec.Clone(), nil
}

func (f *fakeCrawler) Extracted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.extracted...)
}

type fakeStore struct {
	mu         sync.Mutex
	links      []crawler.LinkRecord
	details    []crawler.DetailRecord
	saveErr    error
	loadErr    error
	linkSaves  int
	detailSave int
}

func (s *fakeStore) SaveLinks(_ context.Context, links []crawler.LinkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.linkSaves++
	s.links = append([]crawler.LinkRecord(nil), links...)
	return nil
}

func (s *fakeStore) LoadLinks(context.Context) ([]crawler.LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return append([]crawler.LinkRecord{}, s.links...), nil
}

func (s *fakeStore) SaveDetails(_ context.Context, details []crawler.DetailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.detailSave++
	s.details = append([]crawler.DetailRecord(nil), details...)
	return nil
}

func (s *fakeStore) LoadDetails(context.Context) ([]crawler.DetailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.DetailRecord{}, s.details...), nil
}

func (s *fakeStore) Links() []crawler.LinkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.LinkRecord(nil), s.links...)
}

func (s *fakeStore) Details() []crawler.DetailRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.DetailRecord(nil), s.details...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

type distanceEnricher struct{}

func (distanceEnricher) Enrich(_ context.Context, d crawler.DetailRecord) (crawler.DetailRecord, error) {
	if d.URL == "u3" {
		return d, errors.New("no coordinates")
	}
	return d.With(crawler.FieldDistance, "2.5"), nil
}

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "run-fixed", nil }

func seedLinks() []crawler.LinkRecord {
	return []crawler.LinkRecord{
		{URL: "u1", Source: "A", Status: crawler.LinkStatusPending},
		{URL: "u2", Source: "A", Status: crawler.LinkStatusPending},
		{URL: "u3", Source: "B", Status: crawler.LinkStatusPending},
	}
}

func scenarioCrawlers() (*fakeCrawler, *fakeCrawler) {
	a := &fakeCrawler{
		urls:        []string{"u1", "u2"},
		records:     map[string]crawler.Record{"u1": crawler.RecordOf("title", "X")},
		extractErrs: map[string]error{"u2": errors.New("page vanished")},
	}
	b := &fakeCrawler{
		urls:    []string{"u3"},
		records: map[string]crawler.Record{"u3": crawler.RecordOf("title", "Y")},
	}
	return a, b
}
