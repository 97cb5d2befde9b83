package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

// CrawlJobDetails runs the details phase over links. A nil links slice loads
// the most recently saved links; when none exist the detail state is reset and
// it returns an empty result with crawler.ErrNoLinks.
//
// Each link is extracted on the bounded pool by the crawler registered for
// its source. Successes are appended in completion order and their link is
// marked DetailFetched; failures and unknown sources mark the link Error.
// Details and the updated links are saved once the pool drains.
//
// The returned error is non-nil only for a load failure, a save failure, or
// an early ctx end; gathered details are always returned.
func (e *Engine) CrawlJobDetails(ctx context.Context, links []crawler.LinkRecord) ([]crawler.DetailRecord, error) {
	runID, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer e.end()

	logger := e.logger.With(zap.String("run_id", runID), zap.String("phase", string(progress.PhaseDetails)))
	if links == nil {
		loaded, err := e.store.LoadLinks(ctx)
		if err != nil {
			logger.Error("load links failed", zap.Error(err))
			return []crawler.DetailRecord{}, fmt.Errorf("load links: %w", err)
		}
		if len(loaded) == 0 {
			e.mu.Lock()
			e.details = []crawler.DetailRecord{}
			e.mu.Unlock()
			e.tracker.Reset(progress.PhaseDetails)
			logger.Info("no persisted links to process")
			return []crawler.DetailRecord{}, crawler.ErrNoLinks
		}
		links = loaded
	}

	start := e.clock.Now()
	work := append([]crawler.LinkRecord(nil), links...)
	e.mu.Lock()
	e.details = []crawler.DetailRecord{}
	e.links = work
	e.mu.Unlock()
	e.tracker.Reset(progress.PhaseDetails)
	e.tracker.AddTotal(progress.PhaseDetails, len(work))

	registry := e.registry()
	cb := e.currentCallbacks()
	logger.Info("detail extraction started", zap.Int("links", len(work)), zap.Int("max_threads", e.cfg.MaxThreads))
	startEvt := e.event(runID, progress.StageRunStart, progress.PhaseDetails)
	startEvt.Counters = e.tracker.Snapshot(progress.PhaseDetails)
	e.emitter.Emit(startEvt)

	runErr := e.runner.Run(ctx, len(work), e.gate, func(ctx context.Context, i int) {
		e.extract(ctx, runID, i, work[i], registry, cb, logger)
	})
	var stopErr error
	if runErr != nil || ctx.Err() != nil {
		stopErr = ctx.Err()
		if stopErr == nil {
			stopErr = runErr
		}
		logger.Info("detail extraction stopped early", zap.Error(stopErr))
	}

	details := e.Details()
	finalLinks := e.Links()
	saveCtx := context.WithoutCancel(ctx)
	var saveErrs []error
	if err := e.store.SaveDetails(saveCtx, details); err != nil {
		saveErrs = append(saveErrs, fmt.Errorf("save details: %w", err))
		logger.Error("persist details failed", zap.Error(err), zap.Int("details", len(details)))
	}
	if err := e.store.SaveLinks(saveCtx, finalLinks); err != nil {
		saveErrs = append(saveErrs, fmt.Errorf("save link statuses: %w", err))
		logger.Error("persist link statuses failed", zap.Error(err))
	}

	snap := e.tracker.Snapshot(progress.PhaseDetails)
	done := e.event(runID, progress.StageRunDone, progress.PhaseDetails)
	done.Counters = snap
	done.Dur = e.since(start)
	e.emitter.Emit(done)
	logger.Info(fmt.Sprintf("%d of %d job details crawled", snap.Processed, snap.Total),
		zap.Int("processed", snap.Processed),
		zap.Int("failed", snap.Failed),
		zap.Int("total", snap.Total),
		zap.Duration("dur", done.Dur),
	)
	return details, errors.Join(append([]error{stopErr}, saveErrs...)...)
}

func (e *Engine) extract(
	ctx context.Context,
	runID string,
	i int,
	link crawler.LinkRecord,
	registry map[string]crawler.SiteCrawler,
	cb Callbacks,
	logger *zap.Logger,
) {
	defer func() {
		if r := recover(); r != nil {
			e.extractionFailed(ctx, runID, i, link, fmt.Errorf("extract panic: %v", r), cb, logger)
		}
	}()

	sc, ok := registry[link.Source]
	if !ok || sc == nil {
		e.extractionFailed(ctx, runID, i, link, crawler.ErrUnknownSource, cb, logger)
		return
	}
	fields, err := sc.Extract(ctx, link.URL)
	if err == nil && fields.Empty() {
		err = crawler.ErrEmptyRecord
	}
	if err != nil {
		e.extractionFailed(ctx, runID, i, link, err, cb, logger)
		return
	}

	detail := crawler.NewDetailRecord(link.Source, link.URL, fields)
	if e.enricher != nil {
		enriched, err := e.enricher.Enrich(ctx, detail)
		if err != nil {
			logger.Debug("detail enrichment skipped", zap.String("url", link.URL), zap.Error(err))
		} else {
			detail = enriched
		}
	}

	err = e.commit(ctx, func() {
		e.details = append(e.details, detail)
		e.links[i].Status = crawler.LinkStatusDetailFetched
		snap := e.tracker.IncProcessed(progress.PhaseDetails)
		cb.detail(logger, detail)
		cb.progress(logger, progress.PhaseDetails, snap)

		evt := e.event(runID, progress.StageDetailDone, progress.PhaseDetails)
		evt.Source = link.Source
		evt.URL = link.URL
		evt.Counters = snap
		e.emitter.Emit(evt)
	})
	if err != nil {
		logger.Debug("detail not committed", zap.String("url", link.URL), zap.Error(err))
	}
}

func (e *Engine) extractionFailed(
	ctx context.Context,
	runID string,
	i int,
	link crawler.LinkRecord,
	cause error,
	cb Callbacks,
	logger *zap.Logger,
) {
	failure := &crawler.ExtractionError{Source: link.Source, URL: link.URL, Err: cause}
	logger.Warn("detail extraction failed",
		zap.String("source", link.Source),
		zap.String("url", link.URL),
		zap.Error(failure),
	)
	err := e.commit(ctx, func() {
		e.links[i].Status = crawler.LinkStatusError
		snap := e.tracker.IncFailed(progress.PhaseDetails)
		cb.progress(logger, progress.PhaseDetails, snap)

		evt := e.event(runID, progress.StageDetailError, progress.PhaseDetails)
		evt.Source = sourceLabel(link.Source)
		evt.URL = link.URL
		evt.Counters = snap
		evt.Note = cause.Error()
		e.emitter.Emit(evt)
	})
	if err != nil {
		logger.Debug("failure not committed", zap.String("url", link.URL), zap.Error(err))
	}
}

func sourceLabel(source string) string {
	if source == "" {
		return "unknown"
	}
	return source
}
