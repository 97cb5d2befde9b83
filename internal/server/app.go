// Package server builds the application's dependency graph and runs the
// HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/api"
	"github.com/JakeFAU/realtime-job-crawler/internal/clock/system"
	"github.com/JakeFAU/realtime-job-crawler/internal/config"
	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/dispatcher"
	"github.com/JakeFAU/realtime-job-crawler/internal/engine"
	collyfetcher "github.com/JakeFAU/realtime-job-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/realtime-job-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/realtime-job-crawler/internal/geo"
	"github.com/JakeFAU/realtime-job-crawler/internal/headless/detector"
	"github.com/JakeFAU/realtime-job-crawler/internal/id/uuid"
	"github.com/JakeFAU/realtime-job-crawler/internal/llm"
	"github.com/JakeFAU/realtime-job-crawler/internal/logging"
	"github.com/JakeFAU/realtime-job-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-job-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/realtime-job-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/realtime-job-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/realtime-job-crawler/internal/publisher/pubsub"
	queuemem "github.com/JakeFAU/realtime-job-crawler/internal/queue/memory"
	"github.com/JakeFAU/realtime-job-crawler/internal/results"
	"github.com/JakeFAU/realtime-job-crawler/internal/sites"
	csvstore "github.com/JakeFAU/realtime-job-crawler/internal/storage/csv"
	gcsstorage "github.com/JakeFAU/realtime-job-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/realtime-job-crawler/internal/storage/local"
	"github.com/JakeFAU/realtime-job-crawler/internal/storage/memory"
	"github.com/JakeFAU/realtime-job-crawler/internal/storage/mirror"
	pgstore "github.com/JakeFAU/realtime-job-crawler/internal/storage/postgres"
	"github.com/JakeFAU/realtime-job-crawler/internal/worker"
)

const (
	shutdownTimeout = 10 * time.Second
	publisherBuffer = 1000
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	engine    *engine.Engine
	results   *results.Store
	runs      *memory.RunStore
	queue     *queuemem.Queue
	dispatch  *dispatcher.Dispatcher
	hub       *progress.Hub
	apiServer *api.Server

	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
	postgres     *pgstore.TableStore
	browser      *headlessfetcher.Fetcher
	cvWriter     *llm.Client

	registerer prometheus.Registerer
}

// Option customizes Build.
type Option func(*App)

// WithRegisterer registers progress collectors on reg instead of the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// Build creates the application's dependencies. On error every resource
// opened so far is released.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(app)
	}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()

	logger.Info("building application dependencies",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("max_threads", cfg.Crawler.MaxThreads),
		zap.Int("sites", len(cfg.Sites)),
	)

	tables, err := app.setupTables(ctx)
	if err != nil {
		return nil, err
	}
	app.results, err = results.New(tables, results.Config{
		LinksResource:   cfg.Storage.LinksPath,
		DetailsResource: cfg.Storage.DetailsPath,
		Logger:          app.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("result store init failed: %w", err)
	}

	fetcher, err := app.setupFetcher()
	if err != nil {
		return nil, err
	}
	deps := sites.Deps{Fetcher: fetcher, Logger: logger}
	if err = app.setupLLM(&deps); err != nil {
		return nil, err
	}
	crawlers, err := sites.Registry(cfg.Sites, deps)
	if err != nil {
		return nil, fmt.Errorf("site registry init failed: %w", err)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithClock(system.New()),
		engine.WithIDGenerator(uuid.New()),
	}
	emitter, err := app.setupProgress(ctx)
	if err != nil {
		return nil, err
	}
	if emitter != nil {
		engineOpts = append(engineOpts, engine.WithEmitter(emitter))
	}
	enricher, err := app.setupGeo()
	if err != nil {
		return nil, err
	}
	if enricher != nil {
		engineOpts = append(engineOpts, engine.WithEnricher(enricher))
	}
	app.engine = engine.New(app.results, engine.Config{MaxThreads: cfg.Crawler.MaxThreads}, engineOpts...)
	for _, s := range cfg.Sites {
		app.engine.RegisterCrawler(s.Name, crawlers[s.Name])
	}

	app.runs = memory.NewRunStore()
	app.queue = queuemem.NewQueue(cfg.Crawler.QueueDepth)
	app.dispatch = dispatcher.New(app.queue, worker.New(app.queue, app.runs, app.engine, logger))

	apiDeps := api.Deps{
		Engine:  app.engine,
		Results: app.results,
		Runs:    app.runs,
		Queue:   app.queue,
		IDs:     uuid.New(),
		Clock:   system.New(),
		Logger:  logger,
		APIKey:  cfg.Server.APIKey,
		Ready:   app.ready,
	}
	if app.cvWriter != nil {
		apiDeps.CV = app.cvWriter
	}
	app.apiServer, err = api.NewServer(apiDeps)
	if err != nil {
		return nil, fmt.Errorf("api init failed: %w", err)
	}
	return app, nil
}

// Engine exposes the crawl engine for one-shot command line runs.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP and processes queued runs until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	// Sync fails on terminals and pipes; the error carries no information.
	_ = a.logger.Sync()
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.hub = nil
	}
	if a.publisher != nil {
		a.publisher.Close()
		a.publisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.postgres != nil {
		a.postgres.Close()
		a.postgres = nil
	}
	if a.browser != nil {
		a.browser.Close()
		a.browser = nil
	}
}

func (a *App) ready(ctx context.Context) error {
	if a.postgres == nil {
		return nil
	}
	return a.postgres.Ping(ctx) //nolint:wrapcheck // already wrapped
}

func (a *App) setupTables(ctx context.Context) (crawler.TableStore, error) {
	var tables crawler.TableStore
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		store, err := pgstore.NewTableStore(ctx, pgstore.Config{
			DSN:             a.cfg.Database.DSN,
			Table:           a.cfg.Database.Table,
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.postgres = store
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		tables = store
		a.logger.Info("using postgres result store", zap.String("table", a.cfg.Database.Table))
	case config.BackendMemory:
		tables = memory.NewTableStore()
		a.logger.Info("using in-memory result store")
	default:
		tables = csvstore.New(csvstore.Config{})
		a.logger.Info("using csv result store",
			zap.String("links", a.cfg.Storage.LinksPath),
			zap.String("details", a.cfg.Storage.DetailsPath),
		)
	}

	blobs, err := a.setupMirror(ctx)
	if err != nil {
		return nil, err
	}
	if blobs == nil {
		return tables, nil
	}
	return mirror.New(tables, blobs, a.cfg.Storage.Mirror.Prefix, a.logger), nil
}

func (a *App) setupMirror(ctx context.Context) (crawler.BlobStore, error) {
	m := a.cfg.Storage.Mirror
	switch m.Backend {
	case config.MirrorGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: m.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("mirroring results to gcs", zap.String("bucket", m.Bucket), zap.String("prefix", m.Prefix))
		return blobs, nil
	case config.MirrorLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: m.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("mirroring results locally", zap.String("path", m.Local.BaseDir))
		return blobs, nil
	default:
		return nil, nil
	}
}

func (a *App) setupFetcher() (crawler.Fetcher, error) {
	var policy crawler.Policy
	if a.cfg.RateLimit.Enabled {
		policy = ratelimit.New(a.cfg.RateLimiterConfig())
		a.logger.Info("per-host rate limiting enabled",
			zap.Float64("default_rps", a.cfg.RateLimit.DefaultRPS),
			zap.Int("host_overrides", len(a.cfg.RateLimit.Hosts)),
		)
	}

	collyOpts := []collyfetcher.Option{
		collyfetcher.WithRetryPolicy(crawler.NewExponentialRetryPolicy(a.cfg.Crawler.MaxRetries)),
	}
	if policy != nil {
		collyOpts = append(collyOpts, collyfetcher.WithPolicy(policy))
	}
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:      a.cfg.Crawler.UserAgent,
		AcceptLanguage: a.cfg.Crawler.AcceptLanguage,
		IgnoreRobots:   a.cfg.Crawler.IgnoreRobots,
		Timeout:        a.cfg.Timeout(),
		MaxRetries:     a.cfg.Crawler.MaxRetries,
	}, collyOpts...)
	a.logger.Info("using colly fetcher", zap.String("user_agent", a.cfg.Crawler.UserAgent))

	if !a.cfg.Headless.Enabled {
		return static, nil
	}
	browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Crawler.UserAgent,
		AcceptLanguage:    a.cfg.Crawler.AcceptLanguage,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.browser = browser
	detect := detector.NewHeuristic(detector.Config{
		Threshold:        a.cfg.Headless.PromotionThreshold,
		RequiredSelector: a.cfg.Headless.RequiredSelector,
	})
	a.logger.Info("headless promotion enabled", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	promoting, err := headlessfetcher.NewPromoting(static, browser, detect, a.logger)
	if err != nil {
		return nil, fmt.Errorf("promoting fetcher init failed: %w", err)
	}
	return promoting, nil
}

func (a *App) setupLLM(deps *sites.Deps) error {
	if !a.cfg.LLM.Enabled {
		return nil
	}
	completer, err := llm.NewAnthropic(llm.AnthropicConfig{
		APIKey:    a.cfg.LLM.APIKey,
		Model:     a.cfg.LLM.Model,
		MaxTokens: a.cfg.LLM.MaxTokens,
		BaseURL:   a.cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("llm completer init failed: %w", err)
	}
	client, err := llm.New(completer, llm.Config{MaxHTMLBytes: a.cfg.LLM.MaxHTMLBytes}, a.logger)
	if err != nil {
		return fmt.Errorf("llm client init failed: %w", err)
	}
	deps.Searcher = client
	deps.Extractor = client
	a.cvWriter = client
	a.logger.Info("semantic search and extraction enabled", zap.String("model", a.cfg.LLM.Model))
	return nil
}

func (a *App) setupGeo() (crawler.Enricher, error) {
	if !a.cfg.Geo.Enabled {
		return nil, nil
	}
	enricher, err := geo.NewEnricher(geo.NewStaticGeocoder(a.cfg.Geo.PlaceTable()), a.cfg.Geo.Origin, a.logger)
	if err != nil {
		return nil, fmt.Errorf("geo enricher init failed: %w", err)
	}
	a.logger.Info("distance enrichment enabled", zap.Int("places", len(a.cfg.Geo.Places)))
	return enricher, nil
}

func (a *App) setupProgress(ctx context.Context) (progress.Emitter, error) {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return nil, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return nil, fmt.Errorf("prometheus progress sink init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	pub, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		sinkList = append(sinkList, progresssinks.NewPublishSink(pub, a.cfg.PubSub.TopicName, a.logger))
	}

	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return a.hub, nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, keeping notifications in memory",
			zap.String("topic", a.cfg.PubSub.TopicName))
		return memorypublisher.New(publisherBuffer), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher, err = gcppublisher.New(client, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}
