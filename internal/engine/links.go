package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

// CrawlJobLinks runs the links phase: every registered crawler discovers
// concurrently, each crawler's result is truncated to limit (when limit > 0),
// and every URL becomes a Pending link committed through the pause gate.
// The full list is saved to the result store once all crawlers finish.
//
// The returned error is non-nil only when ctx ended early or the store save
// failed; the links gathered so far are returned in both cases.
func (e *Engine) CrawlJobLinks(ctx context.Context, query crawler.Query, limit int) ([]crawler.LinkRecord, error) {
	runID, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer e.end()

	start := e.clock.Now()
	e.mu.Lock()
	e.links = []crawler.LinkRecord{}
	e.mu.Unlock()
	e.tracker.Reset(progress.PhaseLinks)

	crawlers := e.snapshotCrawlers()
	cb := e.currentCallbacks()
	logger := e.logger.With(zap.String("run_id", runID), zap.String("phase", string(progress.PhaseLinks)))
	logger.Info("link discovery started",
		zap.Strings("keywords", query.Keywords),
		zap.Int("crawlers", len(crawlers)),
		zap.Int("limit", limit),
	)
	e.emitter.Emit(e.event(runID, progress.StageRunStart, progress.PhaseLinks))

	var g errgroup.Group
	for _, nc := range crawlers {
		g.Go(func() error {
			e.discover(ctx, runID, nc, query, limit, cb, logger)
			return nil
		})
	}
	_ = g.Wait()

	links := e.Links()
	stopErr := ctx.Err()
	var saveErr error
	if err := e.store.SaveLinks(context.WithoutCancel(ctx), links); err != nil {
		saveErr = fmt.Errorf("save links: %w", err)
		logger.Error("persist links failed", zap.Error(err), zap.Int("links", len(links)))
	}

	snap := e.tracker.Snapshot(progress.PhaseLinks)
	done := e.event(runID, progress.StageRunDone, progress.PhaseLinks)
	done.Counters = snap
	done.Dur = e.since(start)
	e.emitter.Emit(done)
	logger.Info("link discovery finished",
		zap.Int("links", len(links)),
		zap.Int("total", snap.Total),
		zap.Duration("dur", done.Dur),
		zap.Bool("canceled", stopErr != nil),
	)
	return links, errors.Join(stopErr, saveErr)
}

func (e *Engine) discover(
	ctx context.Context,
	runID string,
	nc namedCrawler,
	query crawler.Query,
	limit int,
	cb Callbacks,
	logger *zap.Logger,
) {
	logger = logger.With(zap.String("source", nc.source))
	defer func() {
		if r := recover(); r != nil {
			e.discoveryFailed(runID, nc.source, fmt.Errorf("discover panic: %v", r), logger)
		}
	}()

	urls, err := nc.crawler.Discover(ctx, query)
	if err != nil {
		e.discoveryFailed(runID, nc.source, err, logger)
		return
	}
	urls = compactURLs(urls)
	if limit > 0 && len(urls) > limit {
		logger.Debug("truncating discovered links", zap.Int("found", len(urls)), zap.Int("limit", limit))
		urls = urls[:limit]
	}
	e.tracker.AddTotal(progress.PhaseLinks, len(urls))
	logger.Info("links discovered", zap.Int("count", len(urls)))

	for _, u := range urls {
		err := e.commit(ctx, func() {
			e.links = append(e.links, crawler.LinkRecord{
				URL:    u,
				Source: nc.source,
				Status: crawler.LinkStatusPending,
			})
			snap := e.tracker.IncProcessed(progress.PhaseLinks)
			cb.link(logger, u, nc.source)
			cb.progress(logger, progress.PhaseLinks, snap)

			evt := e.event(runID, progress.StageLinkFound, progress.PhaseLinks)
			evt.Source = nc.source
			evt.URL = u
			evt.Counters = snap
			e.emitter.Emit(evt)
		})
		if err != nil {
			logger.Info("link accumulation stopped", zap.Error(err))
			return
		}
	}
}

func (e *Engine) discoveryFailed(runID, source string, err error, logger *zap.Logger) {
	logger.Warn("discovery failed", zap.Error(err))
	evt := e.event(runID, progress.StageDiscoveryError, progress.PhaseLinks)
	evt.Source = source
	evt.Counters = e.tracker.Snapshot(progress.PhaseLinks)
	evt.Note = err.Error()
	e.emitter.Emit(evt)
}

// compactURLs drops blank entries and trims whitespace, keeping order.
func compactURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
