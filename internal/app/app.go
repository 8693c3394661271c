// Package app wires questledger's long-lived services from configuration and
// acts as the dependency container the CLI commands share.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/cache"
	"github.com/JakeFAU/questledger/internal/catalog"
	"github.com/JakeFAU/questledger/internal/config"
	collyfetcher "github.com/JakeFAU/questledger/internal/fetcher/colly"
	"github.com/JakeFAU/questledger/internal/id/uuid"
	"github.com/JakeFAU/questledger/internal/progress"
	"github.com/JakeFAU/questledger/internal/progress/sinks"
	"github.com/JakeFAU/questledger/internal/reconcile"
	"github.com/JakeFAU/questledger/internal/store"
	"github.com/JakeFAU/questledger/internal/update"
)

// Version is stamped into exports. Overridden at build time with -ldflags.
var Version = "dev"

const closeTimeout = 5 * time.Second

// App holds the shared services for one CLI invocation.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *store.Store
	cache    *cache.Cache
	hub      *progress.Hub
	runner   *reconcile.Runner
	baseline catalog.Catalog
	updates  *update.Checker

	stopMaintenance context.CancelFunc
	maintenanceDone chan struct{}
}

type options struct {
	registerer prometheus.Registerer
	fetcher    reconcile.PageFetcher
}

// Option customises New.
type Option func(*options)

// WithRegisterer registers the progress collectors somewhere other than the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithPageFetcher replaces the colly fetcher.
func WithPageFetcher(f reconcile.PageFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// New opens the store and cache, seeds the catalog and assembles the sync
// pipeline. It fails fast when the store cannot be opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.Open(ctx, store.Options{
		Path:                 cfg.Store.Path,
		BusyTimeout:          cfg.BusyTimeout(),
		Backup:               cfg.Store.Backup,
		DefaultProfile:       cfg.Profiles.Default,
		MaxProfileNameLength: cfg.Profiles.MaxNameLength,
		MaxEntryNameLength:   cfg.Catalog.MaxEntryNameLength,
		AppVersion:           Version,
	}, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	baseline := BaselineCatalog(cfg)
	if _, err := st.MergeLegacyJSON(ctx, cfg.Store.LegacyUserFile); err != nil {
		logger.Warn("legacy user file merge failed", zap.Error(err))
	}
	if _, err := st.EnsureCatalog(ctx, baseline); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("seed catalog: %w", err)
	}

	pages := cache.Open(ctx, cache.Config{
		Path:         cfg.Cache.Path,
		TTL:          cfg.CacheTTL(),
		MaxEntries:   cfg.Cache.MaxEntries,
		MaxSizeBytes: cfg.CacheMaxBytes(),
		BusyTimeout:  cfg.BusyTimeout(),
	}, logger.Named("cache"))

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		_ = pages.Close()
		_ = st.Close()
		return nil, fmt.Errorf("progress metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("sync")),
		promSink,
		sinks.NewStoreSink(st, logger.Named("runs")),
	)

	if o.fetcher == nil {
		o.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.RequestTimeout(),
		})
	}
	fetcher := reconcile.NewCachedFetcher(
		o.fetcher,
		pages,
		reconcile.NewRetryPolicy(
			cfg.HTTP.MaxRetries,
			time.Duration(cfg.HTTP.BackoffFactorMs)*time.Millisecond,
			time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
		),
		logger.Named("fetch"),
	)
	rec := reconcile.New(reconcile.Config{
		Sources:      Sources(cfg),
		Baseline:     baseline,
		Rules:        Rules(cfg),
		RequestDelay: cfg.RequestDelay(),
	}, fetcher, logger.Named("reconcile"))

	a := &App{
		cfg:             cfg,
		logger:          logger,
		store:           st,
		cache:           pages,
		hub:             hub,
		runner:          reconcile.NewRunner(rec, hub, uuid.New(), logger.Named("runner")),
		baseline:        baseline,
		updates:         update.NewChecker(o.fetcher, cfg.Update.ReleasesURL, logger.Named("update")),
		maintenanceDone: make(chan struct{}),
	}
	a.startMaintenance(ctx)
	return a, nil
}

func (a *App) startMaintenance(ctx context.Context) {
	mctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopMaintenance = cancel
	interval := time.Duration(a.cfg.Cache.VacuumIntervalMinutes) * time.Minute
	go func() {
		defer close(a.maintenanceDone)
		a.cache.RunMaintenance(mctx, interval)
	}()
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Store exposes the progress store.
func (a *App) Store() *store.Store { return a.store }

// Cache exposes the page cache.
func (a *App) Cache() *cache.Cache { return a.cache }

// Runner exposes the background sync runner.
func (a *App) Runner() *reconcile.Runner { return a.runner }

// Baseline returns a copy of the configured baseline catalog.
func (a *App) Baseline() catalog.Catalog { return a.baseline.Clone() }

// CategoryOrder lists categories in display order.
func (a *App) CategoryOrder() []string { return a.cfg.CategoryOrder() }

// CheckForUpdate asks the release endpoint whether a newer Version exists.
// It bypasses the page cache.
func (a *App) CheckForUpdate(ctx context.Context) (update.Result, error) {
	return a.updates.Check(ctx, Version)
}

// Sync runs one reconciliation in the background, reports progress through
// onProgress and saves the new catalog. Canceling ctx stops the run and
// returns reconcile.ErrCanceled with the stored catalog untouched.
func (a *App) Sync(ctx context.Context, onProgress func(reconcile.Progress)) (*reconcile.Result, error) {
	previous, err := a.store.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if !a.runner.Start(ctx, previous) {
		return nil, errors.New("a sync was already running and has been canceled")
	}
	for msg := range a.runner.Messages() {
		switch m := msg.(type) {
		case reconcile.Progress:
			if onProgress != nil {
				onProgress(m)
			}
		case reconcile.Done:
			a.runner.Wait()
			if m.Err != nil {
				return nil, m.Err
			}
			// A finished result is saved even if ctx was canceled meanwhile.
			if err := a.store.SaveCatalog(context.WithoutCancel(ctx), m.Result.Catalog); err != nil {
				return nil, fmt.Errorf("save catalog: %w", err)
			}
			return m.Result, nil
		}
	}
	return nil, reconcile.ErrCanceled
}

// Close stops background work and releases the store and cache. Safe to call
// once per App.
func (a *App) Close() {
	a.logger.Debug("shutting down application services")
	a.runner.Cancel()
	a.stopMaintenance()
	<-a.maintenanceDone

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("cache close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// BaselineCatalog converts the configured baseline into a catalog. Every
// synchronized category is present, with an empty list when it has no
// baseline entries.
func BaselineCatalog(cfg config.Config) catalog.Catalog {
	out := make(catalog.Catalog, len(cfg.Catalog.Baseline)+len(cfg.Catalog.Categories))
	for _, b := range cfg.Catalog.Baseline {
		out[b.Category] = append(out[b.Category], catalog.FromStrings(b.Entries)...)
	}
	for _, src := range cfg.Catalog.Categories {
		if _, ok := out[src.Name]; !ok {
			out[src.Name] = []catalog.Entry{}
		}
	}
	return out
}

// Sources lists the synchronized categories in order.
func Sources(cfg config.Config) []reconcile.Source {
	out := make([]reconcile.Source, 0, len(cfg.Catalog.Categories))
	for _, src := range cfg.Catalog.Categories {
		out = append(out, reconcile.Source{Category: src.Name, URL: src.URL})
	}
	return out
}

// Rules maps the extract settings onto reconcile.Rules.
func Rules(cfg config.Config) reconcile.Rules {
	return reconcile.Rules{
		ContentSelector:      cfg.Extract.ContentSelector,
		HeaderLabels:         cfg.Extract.HeaderLabels,
		GroupLabels:          cfg.Extract.GroupLabels,
		ExcludedTableClasses: cfg.Extract.ExcludedTableClasses,
		Ignore:               cfg.Extract.Ignore,
		NonEntryMarkers:      cfg.Extract.NonEntryMarkers,
		CatchAllLabel:        cfg.Extract.CatchAllLabel,
		MinNameLength:        cfg.Extract.MinNameLength,
		MaxNameLength:        cfg.Catalog.MaxEntryNameLength,
		MaxGroupLength:       cfg.Catalog.MaxGroupLabelLength,
	}
}
