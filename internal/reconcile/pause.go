package reconcile

import (
	"context"
	"time"
)

type timerPauser struct{}

// Pause blocks for d or until ctx is done.
func (timerPauser) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
