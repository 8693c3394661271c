package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	collyfetcher "github.com/JakeFAU/questledger/internal/fetcher/colly"
)

// PageFetcher performs a single GET.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Response, error)
}

// PageCache stores page bodies by URL. Failures surface as misses.
type PageCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, content string)
}

// Pauser waits between requests and during backoff.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

// IDGenerator produces sync run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Clock supplies timestamps for events and durations.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}
