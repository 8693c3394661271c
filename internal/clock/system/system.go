// Package system provides the wall clock shared by the store, the page cache
// and the reconciler.
package system

import "time"

// Clock reads the wall clock in UTC. Callers convert to local time where a
// value is shown to the user.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since reports the time elapsed from t.
func (c Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
