package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

// TestHubDeliversQueuedEvents verifies emitted events reach every sink.
func TestHubDeliversQueuedEvents(t *testing.T) {
	t.Parallel()

	first, second := newStubSink(), newStubSink()
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 4}, first, second)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StageCategoryStart))
	require.Eventually(t, func() bool {
		return first.Count() == 2 && second.Count() == 2
	}, time.Second, 5*time.Millisecond)
}

// TestHubBatchesAreBounded checks a backlog is split by MaxBatchEvents.
func TestHubBatchesAreBounded(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 16, MaxBatchEvents: 3}, sink)
	for range 10 {
		hub.Emit(sampleEvent(StageCategoryDone))
	}
	require.NoError(t, hub.Close(context.Background()))

	require.Equal(t, 10, sink.Count())
	for _, batch := range sink.Batches() {
		require.LessOrEqual(t, len(batch), 3)
	}
}

// TestHubDiscardsInvalidEvents ensures events without a run id never reach sinks.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{}, sink)
	hub.Emit(Event{TS: time.Now(), Stage: StageRunStart})
	evt := sampleEvent(StageCategoryStart)
	evt.Category = ""
	hub.Emit(evt)
	require.NoError(t, hub.Close(context.Background()))
	require.Zero(t, sink.Count())
}

// TestHubEmitNonBlockingWithoutConsumers asserts Emit never blocks callers, even without sinks.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageRunStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100}, sink)

	hub.Emit(sampleEvent(StageRunDone))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 1, sink.Count())
	require.True(t, sink.Closed())

	hub.Emit(sampleEvent(StageRunDone))
	require.Equal(t, 1, sink.Count(), "emits after close are ignored")
}

// TestHubTerminalEventsWaitForRoom ensures RUN_DONE survives a full buffer
// that drops ordinary events.
func TestHubTerminalEventsWaitForRoom(t *testing.T) {
	t.Parallel()

	sink := &gateSink{stubSink: newStubSink(), gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	hub := NewHub(Config{BufferSize: 1, MaxBatchEvents: 1}, sink)

	hub.Emit(sampleEvent(StageCategoryStart))
	<-sink.entered
	hub.Emit(sampleEvent(StageCategoryDone))
	hub.Emit(sampleEvent(StageCategoryDone))

	emitted := make(chan struct{})
	go func() {
		hub.Emit(sampleEvent(StageRunDone))
		close(emitted)
	}()
	select {
	case <-emitted:
		t.Fatal("terminal event should wait while the buffer is full")
	case <-time.After(30 * time.Millisecond):
	}

	close(sink.gate)
	<-emitted
	require.NoError(t, hub.Close(context.Background()))

	var stages []Stage
	for _, batch := range sink.Batches() {
		for _, evt := range batch {
			stages = append(stages, evt.Stage)
		}
	}
	require.Equal(t, []Stage{StageCategoryStart, StageCategoryDone, StageRunDone}, stages)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := sampleEvent(StageCategoryError)
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Event){
		"missing ts":       func(e *Event) { e.TS = time.Time{} },
		"unknown stage":    func(e *Event) { e.Stage = "NOPE" },
		"bad percent":      func(e *Event) { e.Percent = 101 },
		"negative dur":     func(e *Event) { e.Dur = -time.Second },
		"missing run id":   func(e *Event) { e.RunID = uuid.Nil },
		"missing category": func(e *Event) { e.Category = "" },
	}
	for name, mutate := range cases {
		evt := valid
		mutate(&evt)
		require.Error(t, evt.Validate(), name)
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status2xx, ClassifyStatus(200))
	require.Equal(t, Status3xx, ClassifyStatus(304))
	require.Equal(t, Status4xx, ClassifyStatus(429))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusOther, ClassifyStatus(0))
}

func TestStageTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, StageRunDone.Terminal())
	require.True(t, StageRunCanceled.Terminal())
	require.False(t, StageRunStart.Terminal())
	require.False(t, StageCategoryError.Terminal())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func (s *stubSink) Count() int {
	total := 0
	for _, b := range s.Batches() {
		total += len(b)
	}
	return total
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type gateSink struct {
	*stubSink
	gate    chan struct{}
	entered chan struct{}
}

func (g *gateSink) Consume(ctx context.Context, batch []Event) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.gate:
	case <-ctx.Done():
	}
	return g.stubSink.Consume(ctx, batch)
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID:    uuid.New(),
		TS:       time.Now(),
		Stage:    stage,
		Category: "Factions",
	}
}
