package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/questledger/internal/progress"
)

// PrometheusSink exports sync progress via Prometheus. It owns the collectors
// for runs started/completed/running and per-category outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	categoryResults  *prometheus.CounterVec
	categoryEntries  prometheus.Histogram
	categoryDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "questledger_sync_runs_started_total",
			Help: "Total sync runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "questledger_sync_runs_completed_total",
			Help: "Total sync runs finished partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "questledger_sync_runs_running",
			Help: "Current number of running sync runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "questledger_sync_run_runtime_seconds",
			Help:    "Wall time per finished sync run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		categoryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "questledger_sync_categories_total",
			Help: "Category outcomes partitioned by result and status class.",
		}, []string{"result", "status_class"}),
		categoryEntries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "questledger_sync_category_entries",
			Help:    "Entries extracted per successful category.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		categoryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "questledger_sync_category_duration_seconds",
			Help:    "Category processing time partitioned by result.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.categoryResults,
		s.categoryEntries,
		s.categoryDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunCanceled:
		s.handleRunEvent(evt)
	case progress.StageCategoryDone:
		s.handleCategoryEvent(evt, "success")
		s.categoryEntries.Observe(float64(evt.Entries))
	case progress.StageCategoryError:
		s.handleCategoryEvent(evt, "error")
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
		return
	case progress.StageRunDone:
		result := "success"
		if evt.Errors > 0 {
			result = "partial"
		}
		s.runsCompleted.WithLabelValues(result).Inc()
		s.observeRuntime(evt, result)
	case progress.StageRunCanceled:
		s.runsCompleted.WithLabelValues("canceled").Inc()
		s.observeRuntime(evt, "canceled")
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleCategoryEvent(evt progress.Event, result string) {
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.categoryResults.WithLabelValues(result, statusClass).Inc()
	if evt.Dur > 0 {
		s.categoryDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
