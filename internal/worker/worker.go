// Package worker executes queued crawl runs on the engine.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

// Engine is the subset of engine.Engine a worker drives.
type Engine interface {
	CrawlJobLinks(ctx context.Context, query crawler.Query, limit int) ([]crawler.LinkRecord, error)
	CrawlJobDetails(ctx context.Context, links []crawler.LinkRecord) ([]crawler.DetailRecord, error)
	Stats(phase progress.Phase) progress.Counters
}

// Worker consumes queue items one at a time and records run state.
type Worker struct {
	queue  crawler.Queue
	runs   crawler.RunStore
	engine Engine
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue crawler.Queue, runs crawler.RunStore, engine Engine, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		runs:   runs,
		engine: engine,
		logger: logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Info("queue drained", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued run", zap.String("run_id", item.RunID))
		w.Process(ctx, item)
	}
}

// Process executes one run and stores its final status.
func (w *Worker) Process(ctx context.Context, item crawler.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("run_id", item.RunID), zap.String("kind", string(item.Request.Kind)))
	if err := w.runs.UpdateRunStatus(ctx, item.RunID, crawler.RunStatusRunning, "", crawler.RunCounters{}); err != nil {
		logger.Error("update run status failed", zap.Error(err))
		return
	}

	counters, err := w.execute(crawler.WithRunID(ctx, item.RunID), item.Request, logger)
	status, errText := finalStatus(ctx, err)
	if err != nil {
		logger.Warn("run finished with error", zap.Error(err))
	}
	// The final status is written even when ctx was canceled mid-run.
	if err := w.runs.UpdateRunStatus(context.WithoutCancel(ctx), item.RunID, status, errText, counters); err != nil {
		logger.Error("final run status update failed", zap.Error(err))
	}
	metrics.ObserveRun(string(status))
	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("links", counters.LinksFound),
		zap.Int("details", counters.DetailsProcessed),
		zap.Int("failed", counters.DetailsFailed),
	)
}

func (w *Worker) execute(ctx context.Context, req crawler.RunRequest, logger *zap.Logger) (crawler.RunCounters, error) {
	var counters crawler.RunCounters
	switch req.Kind {
	case crawler.RunKindLinks:
		links, err := w.engine.CrawlJobLinks(ctx, req.Query, req.Limit)
		counters.LinksFound = len(links)
		return counters, err
	case crawler.RunKindDetails:
		_, err := w.engine.CrawlJobDetails(ctx, nil)
		w.detailCounters(&counters, err)
		return counters, err
	case crawler.RunKindAll, "":
		links, err := w.engine.CrawlJobLinks(ctx, req.Query, req.Limit)
		counters.LinksFound = len(links)
		if err != nil {
			return counters, fmt.Errorf("links phase: %w", err)
		}
		if len(links) == 0 {
			logger.Info("no links discovered, skipping details phase")
			return counters, nil
		}
		_, err = w.engine.CrawlJobDetails(ctx, links)
		w.detailCounters(&counters, err)
		if err != nil {
			return counters, fmt.Errorf("details phase: %w", err)
		}
		return counters, nil
	default:
		return counters, fmt.Errorf("unknown run kind %q", req.Kind)
	}
}

func (w *Worker) detailCounters(c *crawler.RunCounters, err error) {
	if errors.Is(err, crawler.ErrNoLinks) || errors.Is(err, crawler.ErrRunInProgress) {
		return
	}
	snap := w.engine.Stats(progress.PhaseDetails)
	c.DetailsProcessed = snap.Processed
	c.DetailsFailed = snap.Failed
}

func finalStatus(ctx context.Context, err error) (crawler.RunStatus, string) {
	switch {
	case err == nil:
		return crawler.RunStatusSucceeded, ""
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return crawler.RunStatusCanceled, err.Error()
	default:
		return crawler.RunStatusFailed, err.Error()
	}
}
