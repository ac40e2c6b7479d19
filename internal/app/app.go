// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/gamejobs-crawler/internal/clock/system"
	"github.com/JakeFAU/gamejobs-crawler/internal/config"
	"github.com/JakeFAU/gamejobs-crawler/internal/deadline"
	collyfetcher "github.com/JakeFAU/gamejobs-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/gamejobs-crawler/internal/filter"
	"github.com/JakeFAU/gamejobs-crawler/internal/id/uuid"
	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
	"github.com/JakeFAU/gamejobs-crawler/internal/logging"
	"github.com/JakeFAU/gamejobs-crawler/internal/metrics"
	"github.com/JakeFAU/gamejobs-crawler/internal/pipeline"
	"github.com/JakeFAU/gamejobs-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/gamejobs-crawler/internal/source"
	"github.com/JakeFAU/gamejobs-crawler/internal/storage/memory"
	"github.com/JakeFAU/gamejobs-crawler/internal/storage/postgres"
	"github.com/JakeFAU/gamejobs-crawler/internal/storage/rest"
	"github.com/JakeFAU/gamejobs-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/gamejobs-crawler/internal/syncer"
)

// Options adjusts how the container is built.
type Options struct {
	// Sources restricts the run to these names, enabled or not. Empty means every enabled source.
	Sources []string
	// Logger replaces the logger built from config.
	Logger *zap.Logger
	// Store replaces the configured store backend.
	Store ingest.Store
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    ingest.Store
	pipeline *pipeline.Pipeline
	tracker  *pipeline.Tracker
	closers  []func() error
}

// New builds every service from cfg. Asynchronous runs started through the
// tracker are bound to ctx.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	names, err := selectSources(cfg, opts.Sources)
	if err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		store, err = a.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	a.store = store

	clock := system.New()
	limiter := ratelimit.New(ratelimit.Config{DefaultInterval: cfg.HTTP.Pacing})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:        cfg.HTTP.UserAgent,
		Timeout:          cfg.HTTP.Timeout,
		TimeoutExtension: cfg.HTTP.TimeoutExtension,
		MaxRetries:       cfg.HTTP.MaxRetries,
		BackoffInitial:   cfg.HTTP.BackoffInitial,
	}, logger.Named("fetcher"))

	sources := make([]ingest.Source, 0, len(names))
	for _, name := range names {
		sourceOpts, _ := cfg.SourceOptions(name)
		src, err := source.Build(name, sourceOpts, limiter, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("build source %s: %w", name, err)
		}
		sources = append(sources, src)
	}

	deadlines := deadline.NewParser(clock, cfg.Location())
	synchronizer := syncer.New(store, syncer.Config{
		BatchSize:      cfg.Sync.BatchSize,
		RetentionDays:  cfg.Sync.RetentionDays,
		ExistingWindow: cfg.Sync.ExistingWindow,
	}, deadlines.Today, logger)

	a.pipeline = pipeline.New(
		sources,
		fetcher,
		filter.New(cfg.Filter.Rules()),
		deadlines,
		synchronizer,
		uuid.New(),
		clock,
		pipeline.Config{Timeout: cfg.Run.Timeout, SyncGrace: cfg.Run.SyncGrace},
		logger,
	)
	a.tracker = pipeline.NewTracker(ctx, a.pipeline, logger)

	logger.Info("application services initialized",
		zap.String("store", a.storeName(opts.Store != nil)),
		zap.Strings("sources", names),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (ingest.Store, error) {
	cfg := a.cfg.Store
	switch cfg.Backend {
	case config.BackendREST:
		store, err := rest.New(rest.Config{URL: cfg.URL, Key: cfg.Key, Timeout: cfg.Timeout})
		if err != nil {
			return nil, fmt.Errorf("init rest store: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		store, err := postgres.NewPostingStore(ctx, postgres.Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		return store, nil
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.BackendMemory:
		return memory.NewPostingStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func (a *App) storeName(injected bool) string {
	if injected {
		return "injected"
	}
	return a.cfg.Store.Backend
}

// selectSources resolves the requested names against the registry.
func selectSources(cfg config.Config, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return cfg.EnabledSources(), nil
	}
	seen := make(map[string]bool, len(requested))
	names := make([]string, 0, len(requested))
	for _, name := range requested {
		if _, ok := source.Defaults(name); !ok {
			return nil, fmt.Errorf("unknown source %q (known: %v)", name, source.Names())
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the posting store.
func (a *App) Store() ingest.Store {
	return a.store
}

// Pipeline returns the ingestion pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Tracker returns the run tracker shared by the scheduler and the API.
func (a *App) Tracker() *pipeline.Tracker {
	return a.tracker
}

// Close waits for background runs and releases the store.
func (a *App) Close() {
	if a.tracker != nil {
		a.tracker.Wait()
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("close store failed", zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on stdout/stderr for some platforms; nothing useful to do about it.
	_ = a.logger.Sync()
}
