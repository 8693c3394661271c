package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const pageURL = "https://wiki.example/List_of_Factions_quests"

func TestCachedFetcherServesCacheHits(t *testing.T) {
	t.Parallel()

	remote := newScriptedFetcher().on(pageURL, scriptedResponse{code: 200, body: "network"})
	cache := newMemCache()
	cache.Set(context.Background(), pageURL, "<html>cached</html>")

	res := NewCachedFetcher(remote, cache, nil, zap.NewNop()).Fetch(context.Background(), pageURL)
	require.NoError(t, res.Err)
	require.True(t, res.FromCache)
	require.Equal(t, "<html>cached</html>", res.Body)
	require.Zero(t, res.Attempts)
	require.Zero(t, remote.Calls(pageURL))
}

// TestCachedFetcherIgnoresEmptyCacheEntries treats a blank cached body as a miss.
func TestCachedFetcherIgnoresEmptyCacheEntries(t *testing.T) {
	t.Parallel()

	remote := newScriptedFetcher().on(pageURL, scriptedResponse{code: 200, body: "fresh"})
	cache := newMemCache()
	cache.Set(context.Background(), pageURL, "")

	res := NewCachedFetcher(remote, cache, nil, zap.NewNop()).Fetch(context.Background(), pageURL)
	require.NoError(t, res.Err)
	require.False(t, res.FromCache)
	require.Equal(t, "fresh", res.Body)
	body, _ := cache.Get(context.Background(), pageURL)
	require.Equal(t, "fresh", body)
}

func TestCachedFetcherRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	remote := newScriptedFetcher().on(pageURL,
		scriptedResponse{code: 503},
		scriptedResponse{code: 429},
		scriptedResponse{code: 200, body: "ok"},
	)
	cache := newMemCache()
	pauser := &recordingPauser{}
	fetcher := NewCachedFetcher(remote, cache, NewRetryPolicy(3, time.Second, 30*time.Second), zap.NewNop(),
		WithFetchPauser(pauser))

	res := fetcher.Fetch(context.Background(), pageURL)
	require.NoError(t, res.Err)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 200, res.StatusCode)
	require.Empty(t, res.FailureKey)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, pauser.Delays())
	body, ok := cache.Get(context.Background(), pageURL)
	require.True(t, ok)
	require.Equal(t, "ok", body)
}

func TestCachedFetcherGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	remote := newScriptedFetcher().on(pageURL, scriptedResponse{code: 503})
	cache := newMemCache()
	fetcher := NewCachedFetcher(remote, cache, NewRetryPolicy(2, time.Millisecond, 0), zap.NewNop(),
		WithFetchPauser(&recordingPauser{}))

	res := fetcher.Fetch(context.Background(), pageURL)
	var statusErr *StatusError
	require.ErrorAs(t, res.Err, &statusErr)
	require.Equal(t, 503, statusErr.Code)
	require.Equal(t, "HTTP 503", res.Err.Error())
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, pageURL+"|http_503", res.FailureKey)
	_, cached := cache.Get(context.Background(), pageURL)
	require.False(t, cached, "failed responses are never cached")
}

func TestCachedFetcherDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	remote := newScriptedFetcher().on(pageURL, scriptedResponse{code: 404})
	fetcher := NewCachedFetcher(remote, nil, NewRetryPolicy(3, time.Millisecond, 0), zap.NewNop(),
		WithFetchPauser(&recordingPauser{}))

	res := fetcher.Fetch(context.Background(), pageURL)
	require.Error(t, res.Err)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, 1, remote.Calls(pageURL))
}

func TestCachedFetcherStopsWhenCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	remote := newScriptedFetcher().on(pageURL, scriptedResponse{err: errors.New("connection reset")})
	ctx, cancel := context.WithCancel(context.Background())
	pauser := pauseFunc(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	})
	fetcher := NewCachedFetcher(remote, nil, NewRetryPolicy(5, time.Hour, 0), zap.NewNop(),
		WithFetchPauser(pauser))

	res := fetcher.Fetch(ctx, pageURL)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, pageURL+"|canceled", res.FailureKey)
}

func TestFailureClass(t *testing.T) {
	t.Parallel()

	require.Equal(t, "timeout", failureClass(timeoutErr{timeout: true}))
	require.Equal(t, "transport", failureClass(errors.New("dial tcp: refused")))
	require.Equal(t, "http_429", failureClass(&StatusError{Code: 429}))
	require.Equal(t, "canceled", failureClass(context.DeadlineExceeded))
}

type pauseFunc func(context.Context, time.Duration) error

func (f pauseFunc) Pause(ctx context.Context, d time.Duration) error { return f(ctx, d) }
