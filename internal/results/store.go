// Package results maps crawl links and details onto two tabular resources.
package results

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Default resource names, matching the CSV files written by earlier versions
// of the crawler.
const (
	DefaultLinksResource   = "data/job_link_list.csv"
	DefaultDetailsResource = "data/job_opportunities.csv"
)

// Config names the resources used for each phase.
type Config struct {
	LinksResource   string
	DetailsResource string
	// Logger receives warnings about rows that load with a fallback; nil
	// discards them.
	Logger *zap.Logger
}

// Store implements crawler.ResultStore over a crawler.TableStore.
type Store struct {
	tables  crawler.TableStore
	links   string
	details string
	logger  *zap.Logger
}

// New constructs a Store. Blank resource names fall back to the defaults.
func New(tables crawler.TableStore, cfg Config) (*Store, error) {
	if tables == nil {
		return nil, fmt.Errorf("table store is required")
	}
	if cfg.LinksResource == "" {
		cfg.LinksResource = DefaultLinksResource
	}
	if cfg.DetailsResource == "" {
		cfg.DetailsResource = DefaultDetailsResource
	}
	if cfg.LinksResource == cfg.DetailsResource {
		return nil, fmt.Errorf("links and details must use different resources")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		tables:  tables,
		links:   cfg.LinksResource,
		details: cfg.DetailsResource,
		logger:  logger.Named("results"),
	}, nil
}

// SaveLinks overwrites the links resource.
func (s *Store) SaveLinks(ctx context.Context, links []crawler.LinkRecord) error {
	rows := make([]crawler.Record, len(links))
	for i, l := range links {
		rows[i] = l.Row()
	}
	if err := s.tables.Save(ctx, s.links, rows); err != nil {
		return fmt.Errorf("save links: %w", err)
	}
	return nil
}

// LoadLinks reads the links resource; rows without a URL are skipped and an
// unrecognised status loads as Pending so the link is retried.
func (s *Store) LoadLinks(ctx context.Context) ([]crawler.LinkRecord, error) {
	rows, err := s.tables.Load(ctx, s.links)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	out := make([]crawler.LinkRecord, 0, len(rows))
	for i, row := range rows {
		link, err := crawler.LinkFromRow(row)
		if err != nil {
			link = crawler.LinkRecord{
				URL:    row.Get(crawler.FieldURL),
				Source: row.Get(crawler.FieldSource),
				Status: crawler.LinkStatusPending,
			}
			s.logger.Warn("link status not recognised, treating as pending",
				zap.Int("row", i+1),
				zap.String("url", link.URL),
				zap.Error(err),
			)
		}
		if link.URL == "" {
			continue
		}
		out = append(out, link)
	}
	return out, nil
}

// SaveDetails overwrites the details resource.
func (s *Store) SaveDetails(ctx context.Context, details []crawler.DetailRecord) error {
	rows := make([]crawler.Record, len(details))
	for i, d := range details {
		rows[i] = d.Row()
	}
	if err := s.tables.Save(ctx, s.details, rows); err != nil {
		return fmt.Errorf("save details: %w", err)
	}
	return nil
}

// LoadDetails reads the details resource.
func (s *Store) LoadDetails(ctx context.Context) ([]crawler.DetailRecord, error) {
	rows, err := s.tables.Load(ctx, s.details)
	if err != nil {
		return nil, fmt.Errorf("load details: %w", err)
	}
	out := make([]crawler.DetailRecord, len(rows))
	for i, row := range rows {
		out[i] = crawler.DetailFromRow(row)
	}
	return out, nil
}
