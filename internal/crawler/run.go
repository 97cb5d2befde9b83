package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RunKind selects which phases a queued run executes.
type RunKind string

// Supported run kinds.
const (
	RunKindLinks   RunKind = "links"
	RunKindDetails RunKind = "details"
	RunKindAll     RunKind = "all"
)

// ParseRunKind validates user input; "" defaults to all.
func ParseRunKind(raw string) (RunKind, error) {
	switch RunKind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RunKindAll:
		return RunKindAll, nil
	case RunKindLinks:
		return RunKindLinks, nil
	case RunKindDetails:
		return RunKindDetails, nil
	default:
		return "", fmt.Errorf("unknown run kind %q", raw)
	}
}

// RunStatus represents the lifecycle state of a queued crawl run.
type RunStatus string

// Run status values.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// RunRequest captures what the client asked a run to do.
type RunRequest struct {
	Kind  RunKind `json:"kind"`
	Query Query   `json:"query"`
	// Limit caps links per crawler; 0 means unlimited.
	Limit int `json:"limit"`
}

// RunCounters summarises what a run achieved.
type RunCounters struct {
	LinksFound       int `json:"links_found"`
	DetailsProcessed int `json:"details_processed"`
	DetailsFailed    int `json:"details_failed"`
}

// Run is the metadata kept for each submitted crawl request.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Submitted time.Time   `json:"submitted_at"`
	Started   *time.Time  `json:"started_at,omitempty"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	Request   RunRequest  `json:"request"`
	Counters  RunCounters `json:"counters"`
}

// RunStore persists run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string, counters RunCounters) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context) ([]Run, error)
}

// QueueItem wraps a run ready to execute.
type QueueItem struct {
	RunID     string
	Request   RunRequest
	Submitted int64
}

// Queue provides enqueue/dequeue semantics for crawl runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

type runIDKey struct{}

// WithRunID attaches an externally assigned run ID (e.g. one handed out by
// the API) so the engine reports progress under it.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run ID attached with WithRunID, if any.
func RunIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}
