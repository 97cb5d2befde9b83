package engine

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/dispatcher"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

// Config holds the engine's tunables.
type Config struct {
	// MaxThreads bounds concurrent detail extractions (minimum 1).
	MaxThreads int
}

const defaultMaxThreads = 5

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEmitter forwards progress events (typically to a progress.Hub).
func WithEmitter(emitter progress.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock crawler.Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDGenerator overrides how run IDs are produced.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(e *Engine) {
		if ids != nil {
			e.ids = ids
		}
	}
}

// WithEnricher decorates every extracted detail before it is committed.
func WithEnricher(enricher crawler.Enricher) Option {
	return func(e *Engine) {
		e.enricher = enricher
	}
}

// WithRunner replaces the bounded pool used by the details phase, e.g. with
// dispatcher.Inline for deterministic tests.
func WithRunner(runner dispatcher.Runner) Option {
	return func(e *Engine) {
		if runner != nil {
			e.runner = runner
		}
	}
}
