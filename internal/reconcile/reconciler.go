package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/catalog"
	"github.com/JakeFAU/questledger/internal/clock/system"
	"github.com/JakeFAU/questledger/internal/progress"
)

// ErrCanceled is returned by Run when the context is canceled mid-run. No
// partial catalog is produced.
var ErrCanceled = errors.New("sync canceled")

// Source binds a category to its list page.
type Source struct {
	Category string
	URL      string
}

// Config drives a Reconciler.
type Config struct {
	// Sources are reconciled in order.
	Sources []Source
	// Baseline holds the curated entries of every category, including
	// categories without a source.
	Baseline     catalog.Catalog
	Rules        Rules
	RequestDelay time.Duration
}

// Result is the rebuilt catalog plus one "<category>: <error>" line per
// category that fell back to its previous entries.
type Result struct {
	Catalog catalog.Catalog
	Errors  []string
}

// Fetcher returns category pages.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchResult
}

// Reconciler rebuilds the catalog from the configured sources.
type Reconciler struct {
	cfg     Config
	fetcher Fetcher
	pauser  Pauser
	clock   Clock
	logger  *zap.Logger
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithPauser overrides the pause between categories.
func WithPauser(p Pauser) Option {
	return func(r *Reconciler) { r.pauser = p }
}

// WithClock overrides the clock used for event timestamps and durations.
func WithClock(c Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// New builds a Reconciler.
func New(cfg Config, fetcher Fetcher, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		cfg:     cfg,
		fetcher: fetcher,
		pauser:  timerPauser{},
		clock:   system.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reconciles every source in order. A failing category keeps its entries
// from previous (or the baseline when previous lacks it) and is reported in
// Result.Errors; it never aborts the run. emit may be nil.
func (r *Reconciler) Run(ctx context.Context, previous catalog.Catalog, emit progress.Emitter) (*Result, error) {
	if emit == nil {
		emit = progress.Discard
	}
	result := &Result{Catalog: r.cfg.Baseline.Clone()}
	if result.Catalog == nil {
		result.Catalog = make(catalog.Catalog)
	}
	total := len(r.cfg.Sources)
	var lastFailure string

	for i, src := range r.cfg.Sources {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		if i > 0 {
			if err := r.pauser.Pause(ctx, r.cfg.RequestDelay); err != nil {
				return nil, ErrCanceled
			}
		}
		emit.Emit(progress.Event{
			TS:       r.clock.Now(),
			Stage:    progress.StageCategoryStart,
			Category: src.Category,
			URL:      src.URL,
			Percent:  i * 100 / total,
			Label:    fmt.Sprintf("Scanning %s...", src.Category),
		})

		started := r.clock.Now()
		entries, fetched, err := r.reconcileCategory(ctx, src)
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		evt := progress.Event{
			TS:          r.clock.Now(),
			Category:    src.Category,
			URL:         src.URL,
			Percent:     (i + 1) * 100 / total,
			FromCache:   fetched.FromCache,
			StatusClass: statusClass(fetched),
			Attempts:    fetched.Attempts,
			Dur:         r.clock.Since(started),
		}
		if err != nil {
			msg := fmt.Sprintf("%s: %v", src.Category, err)
			result.Errors = append(result.Errors, msg)
			if prev, ok := previous[src.Category]; ok {
				result.Catalog[src.Category] = append([]catalog.Entry(nil), prev...)
			} else if _, ok := result.Catalog[src.Category]; !ok {
				result.Catalog[src.Category] = []catalog.Entry{}
			}
			key := fetched.FailureKey
			if key == "" {
				key = src.URL + "|parse"
			}
			if key != lastFailure {
				r.logger.Warn("category sync failed",
					zap.String("category", src.Category),
					zap.String("url", src.URL),
					zap.Error(err))
			} else {
				r.logger.Debug("category sync failed again",
					zap.String("category", src.Category),
					zap.Error(err))
			}
			lastFailure = key
			evt.Stage = progress.StageCategoryError
			evt.Note = msg
			emit.Emit(evt)
			continue
		}
		lastFailure = ""
		result.Catalog[src.Category] = entries
		evt.Stage = progress.StageCategoryDone
		evt.Entries = len(entries)
		emit.Emit(evt)
	}
	return result, nil
}

func (r *Reconciler) reconcileCategory(ctx context.Context, src Source) ([]catalog.Entry, FetchResult, error) {
	fetched := r.fetcher.Fetch(ctx, src.URL)
	if fetched.Err != nil {
		return nil, fetched, fetched.Err
	}
	candidates, err := Extract(ctx, fetched.Body, r.cfg.Rules)
	if err != nil {
		return nil, fetched, err
	}
	return Merge(r.cfg.Baseline[src.Category], candidates, r.cfg.Rules.CatchAllLabel), fetched, nil
}

func statusClass(res FetchResult) progress.StatusClass {
	if res.FromCache {
		return progress.StatusCache
	}
	return progress.ClassifyStatus(res.StatusCode)
}
