package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/clock/system"
	"github.com/JakeFAU/questledger/internal/metrics"
)

// FetchResult is the outcome of fetching one category page.
type FetchResult struct {
	URL        string
	Body       string
	StatusCode int
	FromCache  bool
	// Attempts counts network requests; zero for cache hits.
	Attempts int
	Duration time.Duration
	Err      error
	// FailureKey identifies the kind of failure ("<url>|<class>") so callers
	// can collapse repeated reports. Empty on success.
	FailureKey string
}

// CachedFetcher serves pages from the cache and falls back to the network
// with retries. Only 200 responses are cached.
type CachedFetcher struct {
	fetcher PageFetcher
	cache   PageCache
	policy  *RetryPolicy
	pauser  Pauser
	clock   Clock
	logger  *zap.Logger
}

// FetcherOption customises a CachedFetcher.
type FetcherOption func(*CachedFetcher)

// WithFetchPauser overrides the backoff sleeper.
func WithFetchPauser(p Pauser) FetcherOption {
	return func(f *CachedFetcher) { f.pauser = p }
}

// NewCachedFetcher wires a page fetcher to an optional cache. A nil policy
// disables retries.
func NewCachedFetcher(
	fetcher PageFetcher,
	cache PageCache,
	policy *RetryPolicy,
	logger *zap.Logger,
	opts ...FetcherOption,
) *CachedFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = NewRetryPolicy(0, 0, 0)
	}
	f := &CachedFetcher{
		fetcher: fetcher,
		cache:   cache,
		policy:  policy,
		pauser:  timerPauser{},
		clock:   system.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the body of url. Failures are reported in FetchResult.Err.
func (f *CachedFetcher) Fetch(ctx context.Context, url string) (res FetchResult) {
	res.URL = url
	start := f.clock.Now()
	defer func() { res.Duration = f.clock.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.Err = err
		res.FailureKey = failureKey(url, err)
		return res
	}
	if f.cache != nil {
		if body, ok := f.cache.Get(ctx, url); ok && body != "" {
			res.Body = body
			res.StatusCode = http.StatusOK
			res.FromCache = true
			return res
		}
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		resp, err := f.fetcher.Fetch(ctx, url)
		res.Attempts = attempt + 1
		metrics.ObserveFetch(url, resp.StatusCode, resp.Duration)
		if err == nil {
			res.StatusCode = resp.StatusCode
			if resp.StatusCode == http.StatusOK {
				res.Body = string(resp.Body)
				if f.cache != nil {
					f.cache.Set(ctx, url, res.Body)
				}
				return res
			}
			err = &StatusError{URL: url, Code: resp.StatusCode}
		}
		if !f.policy.ShouldRetry(err, attempt) {
			res.Err = err
			break
		}
		delay := f.policy.Backoff(attempt)
		metrics.ObserveRetryDelay(url, delay)
		f.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := f.pauser.Pause(ctx, delay); err != nil {
			res.Err = err
			break
		}
	}
	res.FailureKey = failureKey(url, res.Err)
	return res
}

func failureKey(url string, err error) string {
	return fmt.Sprintf("%s|%s", url, failureClass(err))
}

func failureClass(err error) string {
	var statusErr *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http_%d", statusErr.Code)
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "transport"
	}
}
