package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/questledger/internal/fetcher/colly"
	"github.com/JakeFAU/questledger/internal/progress"
)

func testRules() Rules {
	return Rules{
		ContentSelector:      "#mw-content-text",
		HeaderLabels:         []string{"quest", "location", "given by", "type", "level"},
		GroupLabels:          []string{"location", "given at"},
		ExcludedTableClasses: []string{"navbox", "catlinks", "mw-footer"},
		Ignore:               []string{"quest", "name", "location", "logs", "logs:"},
		NonEntryMarkers:      []string{"Category:", "Help:"},
		CatchAllLabel:        "Uncategorized",
		MinNameLength:        2,
		MaxNameLength:        128,
		MaxGroupLength:       64,
	}
}

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

// scriptedFetcher replays responses per URL in order; the last one repeats.
type scriptedFetcher struct {
	mu      sync.Mutex
	scripts map[string][]scriptedResponse
	calls   map[string]int
}

type scriptedResponse struct {
	code int
	body string
	err  error
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		scripts: make(map[string][]scriptedResponse),
		calls:   make(map[string]int),
	}
}

func (s *scriptedFetcher) on(url string, responses ...scriptedResponse) *scriptedFetcher {
	s.scripts[url] = responses
	return s
}

func (s *scriptedFetcher) Fetch(ctx context.Context, url string) (collyfetcher.Response, error) {
	if err := ctx.Err(); err != nil {
		return collyfetcher.Response{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	script := s.scripts[url]
	idx := s.calls[url]
	s.calls[url]++
	if len(script) == 0 {
		return collyfetcher.Response{URL: url, StatusCode: 404}, nil
	}
	if idx >= len(script) {
		idx = len(script) - 1
	}
	r := script[idx]
	if r.err != nil {
		return collyfetcher.Response{}, r.err
	}
	return collyfetcher.Response{URL: url, StatusCode: r.code, Body: []byte(r.body)}, nil
}

func (s *scriptedFetcher) Calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]string)}
}

func (m *memCache) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *memCache) Set(_ context.Context, key, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = content
}

// recordingPauser returns immediately and remembers requested delays.
type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.delays = append(p.delays, d)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *recordingPauser) Delays() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *eventRecorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Stage
	}
	return out
}

func (r *eventRecorder) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}
