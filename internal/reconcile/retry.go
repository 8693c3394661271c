package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"
)

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// RetryPolicy retries throttled, failing and timed out requests with
// exponential backoff.
type RetryPolicy struct {
	maxRetries int
	factor     time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a policy allowing maxRetries attempts after the first.
// A zero maxDelay leaves the backoff uncapped.
func NewRetryPolicy(maxRetries int, factor, maxDelay time.Duration) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{maxRetries: maxRetries, factor: factor, maxDelay: maxDelay}
}

// ShouldRetry decides whether err after attempt (zero based) is retryable.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || p == nil {
		return false
	}
	if attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff returns the wait before retry number attempt+1: factor * 2^attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if p == nil || p.factor <= 0 {
		return 0
	}
	delay := float64(p.factor) * math.Pow(2, float64(attempt))
	if p.maxDelay > 0 && delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay)
}
