// Package clock provides the time collaborator consumed by the memory service.
package clock

import (
	"sync"
	"time"
)

// TimeService supplies the current time.
type TimeService interface {
	Now() time.Time
}

// System reads the wall clock. Times are returned in UTC.
type System struct{}

// Now implements TimeService.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a manually driven clock for tests and replay.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed returns a clock frozen at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

// Now implements TimeService.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (f *Fixed) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}
