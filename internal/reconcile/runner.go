package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/catalog"
	"github.com/JakeFAU/questledger/internal/clock/system"
	"github.com/JakeFAU/questledger/internal/progress"
)

const messageBuffer = 64

// Message is sent on Runner.Messages: either Progress or Done.
type Message interface {
	runID() uuid.UUID
}

// Progress reports the share of categories handled so far.
type Progress struct {
	RunID   uuid.UUID
	Percent int
	Label   string
}

// Done ends a run. Result is nil when the run was canceled or failed.
type Done struct {
	RunID  uuid.UUID
	Result *Result
	Err    error
}

func (p Progress) runID() uuid.UUID { return p.RunID }
func (d Done) runID() uuid.UUID     { return d.RunID }

// Syncer runs one reconciliation.
type Syncer interface {
	Run(ctx context.Context, previous catalog.Catalog, emit progress.Emitter) (*Result, error)
}

// Runner executes at most one sync in the background. Applying a result is
// left to the receiver of Done.
type Runner struct {
	syncer   Syncer
	events   progress.Emitter
	ids      IDGenerator
	clock    Clock
	logger   *zap.Logger
	messages chan Message

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner builds a Runner. events receives every progress event stamped
// with the run id; it may be nil.
func NewRunner(syncer Syncer, events progress.Emitter, ids IDGenerator, logger *zap.Logger) *Runner {
	if events == nil {
		events = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		syncer:   syncer,
		events:   events,
		ids:      ids,
		clock:    system.New(),
		logger:   logger,
		messages: make(chan Message, messageBuffer),
	}
}

// Messages streams Progress and Done messages. Receivers must drain it until
// Done, otherwise the run goroutine blocks.
func (r *Runner) Messages() <-chan Message {
	return r.messages
}

// Start launches a run reconciling against previous. When a run is already
// active it is canceled instead and Start returns false.
func (r *Runner) Start(ctx context.Context, previous catalog.Catalog) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		return false
	}
	runID := r.newRunID()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	go r.run(runCtx, cancel, runID, previous.Clone(), done)
	return true
}

// Cancel stops the active run, if any.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// Active reports whether a run is in progress.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Wait blocks until the most recently started run has delivered Done.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Runner) newRunID() uuid.UUID {
	if r.ids != nil {
		id, err := r.ids.NewRunID()
		if err == nil {
			return id
		}
		r.logger.Warn("run id generation failed; using random id", zap.Error(err))
	}
	return uuid.New()
}

func (r *Runner) run(
	ctx context.Context,
	cancel context.CancelFunc,
	runID uuid.UUID,
	previous catalog.Catalog,
	done chan struct{},
) {
	defer close(done)
	defer cancel()

	started := r.clock.Now()
	emit := &runEmitter{runner: r, runID: runID}
	logger := r.logger.With(zap.String("run_id", runID.String()))
	emit.Emit(progress.Event{Stage: progress.StageRunStart})
	logger.Info("sync started")

	result, err := r.syncer.Run(ctx, previous, emit)
	if err != nil {
		note := ""
		if !errors.Is(err, ErrCanceled) {
			note = err.Error()
		}
		emit.Emit(progress.Event{Stage: progress.StageRunCanceled, Dur: r.clock.Since(started), Note: note})
		logger.Info("sync canceled", zap.Error(err))
		r.finish(Done{RunID: runID, Err: err})
		return
	}
	emit.Emit(progress.Event{
		Stage:   progress.StageRunDone,
		Percent: 100,
		Entries: len(result.Catalog),
		Errors:  len(result.Errors),
		Dur:     r.clock.Since(started),
		Note:    strings.Join(result.Errors, "; "),
	})
	logger.Info("sync finished",
		zap.Int("categories", len(result.Catalog)),
		zap.Int("errors", len(result.Errors)))
	r.finish(Done{RunID: runID, Result: result})
}

// finish marks the runner idle before publishing Done so the receiver can
// start the next run immediately.
func (r *Runner) finish(msg Done) {
	r.mu.Lock()
	r.cancel = nil
	r.mu.Unlock()
	r.messages <- msg
}

func (r *Runner) publishProgress(msg Progress) {
	select {
	case r.messages <- msg:
	default:
		r.logger.Debug("progress message dropped", zap.Int("percent", msg.Percent))
	}
}

// runEmitter stamps run events and mirrors category starts as Progress.
type runEmitter struct {
	runner *Runner
	runID  uuid.UUID
}

func (e *runEmitter) Emit(evt progress.Event) {
	evt.RunID = e.runID
	if evt.TS.IsZero() {
		evt.TS = e.runner.clock.Now()
	}
	e.runner.events.Emit(evt)
	if evt.Stage == progress.StageCategoryStart {
		e.runner.publishProgress(Progress{RunID: e.runID, Percent: evt.Percent, Label: evt.Label})
	}
}
