// Package app builds the long-lived services of a crawl run from configuration
// and ties their lifetimes together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/api"
	"github.com/allofdaniel/placecrawl/internal/catalog"
	"github.com/allofdaniel/placecrawl/internal/clock/system"
	"github.com/allofdaniel/placecrawl/internal/config"
	"github.com/allofdaniel/placecrawl/internal/crawler"
	"github.com/allofdaniel/placecrawl/internal/extract"
	"github.com/allofdaniel/placecrawl/internal/gate"
	"github.com/allofdaniel/placecrawl/internal/logging"
	"github.com/allofdaniel/placecrawl/internal/metrics"
	"github.com/allofdaniel/placecrawl/internal/progress"
	"github.com/allofdaniel/placecrawl/internal/progress/sinks"
	"github.com/allofdaniel/placecrawl/internal/ratelimit"
	"github.com/allofdaniel/placecrawl/internal/renderer"
	"github.com/allofdaniel/placecrawl/internal/scheduler"
	"github.com/allofdaniel/placecrawl/internal/storage"
	"github.com/allofdaniel/placecrawl/internal/storage/gcs"
	"github.com/allofdaniel/placecrawl/internal/storage/local"
	"github.com/allofdaniel/placecrawl/internal/store"
	"github.com/allofdaniel/placecrawl/internal/telemetry"
	"github.com/allofdaniel/placecrawl/internal/worker"
)

// Options replaces collaborators that New would otherwise build from config.
// Zero values select the production implementation.
type Options struct {
	Renderer crawler.Renderer
	Backend  storage.Backend
	Console  io.Writer
	Clock    crawler.Clock
	Sleeper  crawler.Sleeper
}

// App holds the services shared by one crawl run.
type App struct {
	cfg     config.Config
	runID   uuid.UUID
	logger  *zap.Logger
	clock   crawler.Clock
	store   *store.Store
	metrics *metrics.Metrics
	tracker *sinks.Tracker
	hub     *progress.Hub
	sched   *scheduler.Scheduler
	server  *api.Server
	closers []func() error
}

// New wires the result store, renderer, worker, scheduler and progress sinks.
// It fails fast when the snapshot cannot be read or the browser cannot be configured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	runID := uuid.New()
	logger = logging.ForRun(logger, runID.String())
	a := &App{cfg: cfg, runID: runID, logger: logger}

	if cfg.Tracing.Enabled {
		if err := a.initTracing(ctx); err != nil {
			return nil, err
		}
	}

	backend := opts.Backend
	if backend == nil {
		b, closeFn, err := OpenBackend(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		backend = b
		a.closers = append(a.closers, closeFn)
	}
	st, err := store.Load(ctx, backend)
	if err != nil {
		_ = a.closeAll()
		return nil, fmt.Errorf("load result store: %w", err)
	}
	a.store = st
	logger.Info("result store loaded", zap.String("uri", st.URI()), zap.Int("resolved", st.Len()))

	rend := opts.Renderer
	if rend == nil {
		chrome, err := renderer.NewChromedp(renderer.Config{
			Headless:       cfg.Renderer.Headless,
			UserAgent:      cfg.Renderer.UserAgent,
			ViewportWidth:  cfg.Renderer.ViewportWidth,
			ViewportHeight: cfg.Renderer.ViewportHeight,
			ExecPath:       cfg.Renderer.ExecPath,
		}, logger.Named("renderer"))
		if err != nil {
			_ = a.closeAll()
			return nil, fmt.Errorf("init renderer: %w", err)
		}
		rend = chrome
		a.closers = append(a.closers, func() error { chrome.Close(); return nil })
	}

	a.metrics = metrics.New()
	promSink, err := sinks.NewPrometheusSink(a.metrics.Registry())
	if err != nil {
		_ = a.closeAll()
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	a.tracker = sinks.NewTracker()
	progressSinks := []progress.Sink{
		sinks.NewConsoleSink(console),
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		a.tracker,
	}
	if cfg.Progress.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, cfg.Progress.PubSubProject)
		if err != nil {
			_ = a.closeAll()
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		progressSinks = append(progressSinks, sinks.NewPubSubSink(client.Topic(cfg.Progress.PubSubTopic)))
		logger.Info("publishing run milestones", zap.String("topic", cfg.Progress.PubSubTopic))
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize: cfg.Progress.BufferSize,
		Logger:     logger.Named("progress"),
	}, progressSinks...)

	clk := opts.Clock
	if clk == nil {
		clk = system.New()
	}
	a.clock = clk
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = system.New()
	}

	g := gate.New(cfg.Crawler.ConcurrencyLimit, a.metrics.GateInFlight())
	ext := extract.NewLabeledLink(cfg.Extract.HeadingSelector, cfg.Extract.Label, cfg.Extract.ExcludeSubstrings)
	workerCfg := worker.Config{
		PlaceHost:      cfg.Crawler.PlaceHost,
		RetryCount:     cfg.Crawler.RetryCount,
		AttemptTimeout: cfg.AttemptTimeout(),
		SettleDelay:    cfg.SettleDelay(),
		RunID:          runID,
	}
	if cfg.Crawler.NavigationRPS > 0 {
		workerCfg.Pacer = ratelimit.New(ratelimit.Config{
			RPS:   cfg.Crawler.NavigationRPS,
			Burst: cfg.Crawler.NavigationBurst,
		}, a.metrics)
	}
	w := worker.New(g, rend, ext, clk, sleeper, a.hub, a.metrics, workerCfg, logger)
	a.sched = scheduler.New(w, st, clk, sleeper, a.hub, a.metrics, scheduler.Config{
		BatchSize:     cfg.Crawler.BatchSize,
		BatchCooldown: cfg.BatchCooldown(),
	}, logger)

	if cfg.API.Addr != "" {
		a.server = api.NewServer(a.tracker, st, a.metrics, logger.Named("api"))
	}
	return a, nil
}

// initTracing exports spans to the configured file, or stderr when none is set.
func (a *App) initTracing(ctx context.Context) error {
	var out io.Writer = os.Stderr
	if path := a.cfg.Tracing.Output; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace output: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		out = f
	}
	tp, err := telemetry.InitTracerProvider(ctx, out)
	if err != nil {
		_ = a.closeAll()
		return fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		return tp.Shutdown(context.Background())
	})
	a.logger.Info("tracing enabled", zap.String("output", a.cfg.Tracing.Output))
	return nil
}

// OpenBackend builds the snapshot backend selected by cfg. The returned
// function releases any client the backend holds.
func OpenBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, func() error, error) {
	switch cfg.Backend {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		obj, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Object: cfg.GCSObject})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("init gcs backend: %w", err)
		}
		return obj, client.Close, nil
	case "local", "":
		file, err := local.New(local.Config{Path: cfg.ResultsPath})
		if err != nil {
			return nil, nil, fmt.Errorf("init local backend: %w", err)
		}
		return file, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// RunID identifies this run in logs and progress events.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Store is the result store the run merges into.
func (a *App) Store() *store.Store {
	return a.store
}

// Tracker exposes the folded run status.
func (a *App) Tracker() *sinks.Tracker {
	return a.tracker
}

// Metrics is the registry shared by the run and the status listener.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Run loads the catalog and drives the scheduler to completion. A missing
// catalog aborts before any entity is attempted.
func (a *App) Run(ctx context.Context) (crawler.Report, error) {
	if a.server != nil {
		addr, err := a.server.Start(a.cfg.API.Addr)
		if err != nil {
			return crawler.Report{RunID: a.runID.String()}, fmt.Errorf("start status listener: %w", err)
		}
		a.logger.Info("status listener ready", zap.String("addr", addr))
	}

	entities, err := catalog.Load(a.cfg.Storage.CatalogPath)
	if err != nil {
		a.hub.Emit(progress.Event{
			RunID: a.runID,
			TS:    a.clock.Now(),
			Stage: progress.StageRunError,
			Note:  crawler.Truncate(err.Error(), crawler.ErrorNoteLimit),
		})
		return crawler.Report{RunID: a.runID.String()}, err
	}
	a.logger.Info("catalog loaded",
		zap.String("path", a.cfg.Storage.CatalogPath),
		zap.Int("entities", len(entities)),
	)
	return a.sched.Run(ctx, a.runID, entities)
}

// Close flushes progress sinks, stops the status listener and releases the
// browser and storage clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		a.logger.Warn("shutdown incomplete", zap.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
