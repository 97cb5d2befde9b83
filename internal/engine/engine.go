package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/clock/system"
	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/dispatcher"
	"github.com/JakeFAU/realtime-job-crawler/internal/id/uuid"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

// Callbacks observe committed work. Any field may be nil.
type Callbacks struct {
	OnLink     func(url, source string)
	OnDetail   func(detail crawler.DetailRecord)
	OnProgress func(phase progress.Phase, percent float64)
}

func (c Callbacks) link(logger *zap.Logger, url, source string) {
	if c.OnLink != nil {
		guard(logger, "link", func() { c.OnLink(url, source) })
	}
}

func (c Callbacks) detail(logger *zap.Logger, d crawler.DetailRecord) {
	if c.OnDetail != nil {
		guard(logger, "detail", func() { c.OnDetail(d) })
	}
}

func (c Callbacks) progress(logger *zap.Logger, phase progress.Phase, snap progress.Counters) {
	if c.OnProgress != nil {
		guard(logger, "progress", func() { c.OnProgress(phase, snap.Percent()) })
	}
}

// guard runs a caller-supplied callback. A panic is logged and swallowed so
// the surrounding commit still completes.
func guard(logger *zap.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("callback panicked", zap.String("callback", name), zap.Any("panic", r))
		}
	}()
	fn()
}

type namedCrawler struct {
	source  string
	crawler crawler.SiteCrawler
}

// Engine orchestrates link discovery and detail extraction across the
// registered site crawlers.
type Engine struct {
	store    crawler.ResultStore
	cfg      Config
	logger   *zap.Logger
	emitter  progress.Emitter
	clock    crawler.Clock
	ids      crawler.IDGenerator
	enricher crawler.Enricher
	runner   dispatcher.Runner

	tracker *progress.Tracker
	gate    *progress.Gate
	running atomic.Bool
	runID   atomic.Value

	regMu    sync.RWMutex
	crawlers map[string]crawler.SiteCrawler
	order    []string

	cbMu      sync.RWMutex
	callbacks Callbacks

	// mu guards links and details and serialises commits.
	mu      sync.Mutex
	links   []crawler.LinkRecord
	details []crawler.DetailRecord
}

// New builds an Engine persisting to store.
func New(store crawler.ResultStore, cfg Config, opts ...Option) *Engine {
	if cfg.MaxThreads < 1 {
		cfg.MaxThreads = defaultMaxThreads
	}
	e := &Engine{
		store:    store,
		cfg:      cfg,
		logger:   zap.NewNop(),
		emitter:  progress.NopEmitter{},
		clock:    system.New(),
		ids:      uuid.New(),
		tracker:  progress.NewTracker(),
		gate:     progress.NewGate(),
		crawlers: make(map[string]crawler.SiteCrawler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = dispatcher.NewPool(cfg.MaxThreads, nil)
	}
	e.runID.Store("")
	return e
}

// RegisterCrawler adds or replaces the crawler for source.
func (e *Engine) RegisterCrawler(source string, c crawler.SiteCrawler) {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	if _, exists := e.crawlers[source]; !exists {
		e.order = append(e.order, source)
	}
	e.crawlers[source] = c
}

// Sources lists registered crawler names in registration order.
func (e *Engine) Sources() []string {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	return append([]string(nil), e.order...)
}

// SetCallbacks replaces the observers used by subsequent runs.
func (e *Engine) SetCallbacks(cb Callbacks) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.callbacks = cb
}

// Pause closes the gate: no new link is committed and no new extraction is
// submitted until Resume. Work already in flight is not interrupted.
func (e *Engine) Pause() {
	if e.gate.IsOpen() {
		e.gate.Close()
		e.emitControl(progress.StagePaused)
		e.logger.Info("crawl paused")
	}
}

// Resume reopens the gate.
func (e *Engine) Resume() {
	if !e.gate.IsOpen() {
		e.gate.Open()
		e.emitControl(progress.StageResumed)
		e.logger.Info("crawl resumed")
	}
}

// Paused reports whether the gate is closed.
func (e *Engine) Paused() bool {
	return !e.gate.IsOpen()
}

// Running reports whether a phase is executing.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// RunID returns the identifier of the current or most recent run.
func (e *Engine) RunID() string {
	id, _ := e.runID.Load().(string)
	return id
}

// Progress returns the completion percentage of phase in [0, 100].
func (e *Engine) Progress(phase progress.Phase) float64 {
	return e.tracker.Percent(phase)
}

// Stats returns the counters of phase.
func (e *Engine) Stats(phase progress.Phase) progress.Counters {
	return e.tracker.Snapshot(phase)
}

// Links returns a copy of the in-memory link list, never nil.
func (e *Engine) Links() []crawler.LinkRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(make([]crawler.LinkRecord, 0, len(e.links)), e.links...)
}

// Details returns a copy of the in-memory detail list, never nil.
func (e *Engine) Details() []crawler.DetailRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(make([]crawler.DetailRecord, 0, len(e.details)), e.details...)
}

// begin claims the engine for one phase. The run ID comes from ctx when the
// caller attached one with crawler.WithRunID, otherwise a fresh one is made.
func (e *Engine) begin(ctx context.Context) (string, error) {
	if !e.running.CompareAndSwap(false, true) {
		return "", crawler.ErrRunInProgress
	}
	id, ok := crawler.RunIDFrom(ctx)
	if !ok {
		var err error
		if id, err = e.ids.NewID(); err != nil {
			e.logger.Warn("run id generation failed", zap.Error(err))
			id = e.clock.Now().Format("20060102T150405.000000000")
		}
	}
	e.runID.Store(id)
	return id, nil
}

func (e *Engine) end() {
	e.running.Store(false)
}

func (e *Engine) snapshotCrawlers() []namedCrawler {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	out := make([]namedCrawler, 0, len(e.order))
	for _, source := range e.order {
		out = append(out, namedCrawler{source: source, crawler: e.crawlers[source]})
	}
	return out
}

func (e *Engine) registry() map[string]crawler.SiteCrawler {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	out := make(map[string]crawler.SiteCrawler, len(e.crawlers))
	for k, v := range e.crawlers {
		out[k] = v
	}
	return out
}

func (e *Engine) currentCallbacks() Callbacks {
	e.cbMu.RLock()
	defer e.cbMu.RUnlock()
	return e.callbacks
}

// commit runs fn inside the engine's critical section once the gate is open.
// The gate is re-checked under the lock so nothing commits after Pause
// returns. It fails only when ctx ends while paused.
func (e *Engine) commit(ctx context.Context, fn func()) error {
	for {
		if e.tryCommit(fn) {
			return nil
		}
		if err := e.gate.Wait(ctx); err != nil {
			return err
		}
	}
}

func (e *Engine) tryCommit(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.gate.IsOpen() {
		return false
	}
	fn()
	return true
}

func (e *Engine) event(runID string, stage progress.Stage, phase progress.Phase) progress.Event {
	return progress.Event{
		RunID: runID,
		TS:    e.clock.Now(),
		Stage: stage,
		Phase: phase,
	}
}

func (e *Engine) emitControl(stage progress.Stage) {
	runID := e.RunID()
	if runID == "" {
		return
	}
	e.emitter.Emit(e.event(runID, stage, ""))
}

func (e *Engine) since(start time.Time) time.Duration {
	d := e.clock.Now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
