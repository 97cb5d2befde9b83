package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// TableStore keeps each resource as a slice of records.
type TableStore struct {
	mu     sync.RWMutex
	tables map[string][]crawler.Record
	saves  map[string]int
}

// NewTableStore constructs an empty TableStore.
func NewTableStore() *TableStore {
	return &TableStore{
		tables: make(map[string][]crawler.Record),
		saves:  make(map[string]int),
	}
}

// Save replaces the resource with deep copies of rows.
func (s *TableStore) Save(_ context.Context, resource string, rows []crawler.Record) error {
	if resource == "" {
		return fmt.Errorf("resource is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[resource] = cloneRows(rows)
	s.saves[resource]++
	return nil
}

// Load returns copies of the stored rows, or an empty slice.
func (s *TableStore) Load(_ context.Context, resource string) ([]crawler.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRows(s.tables[resource]), nil
}

// Saves reports how many times resource was written.
func (s *TableStore) Saves(resource string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves[resource]
}

func cloneRows(rows []crawler.Record) []crawler.Record {
	out := make([]crawler.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
