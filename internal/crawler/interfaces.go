package crawler

import (
	"context"
	"time"
)

// SiteCrawler is the plug-in contract for one job-listing website.
// Discover and Extract may be called concurrently on different crawlers; a
// single crawler only sees one Discover call per run.
type SiteCrawler interface {
	Discover(ctx context.Context, query Query) ([]string, error)
	Extract(ctx context.Context, url string) (Record, error)
}

// ResultStore persists the output of both crawl phases.
// Load methods return an empty slice and nil error when nothing was saved yet.
type ResultStore interface {
	SaveLinks(ctx context.Context, links []LinkRecord) error
	LoadLinks(ctx context.Context) ([]LinkRecord, error)
	SaveDetails(ctx context.Context, details []DetailRecord) error
	LoadDetails(ctx context.Context) ([]DetailRecord, error)
}

// TableStore reads and writes named tabular resources. Save fully overwrites
// the resource; Load of a missing resource returns no rows and no error.
type TableStore interface {
	Save(ctx context.Context, resource string, rows []Record) error
	Load(ctx context.Context, resource string) ([]Record, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes crawl notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Policy gates outbound requests per host.
type Policy interface {
	Wait(ctx context.Context, url string) error
}

// Searcher is a semantic search capability returning candidate job URLs.
type Searcher interface {
	SearchJobs(ctx context.Context, baseURL string, query Query) ([]string, error)
}

// Extractor is a semantic extraction capability over raw page HTML.
type Extractor interface {
	ExtractJob(ctx context.Context, html string, url string) (Record, error)
}

// Enricher decorates a finished detail record (e.g. with a distance).
type Enricher interface {
	Enrich(ctx context.Context, detail DetailRecord) (DetailRecord, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
