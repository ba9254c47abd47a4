// Package testutil holds deterministic doubles for sync engine tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced wall clock for tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	now time.Time
	mu  sync.Mutex
}

// NewClock creates a clock stopped at the given Unix millisecond.
func NewClock(ms int64) *Clock {
	return &Clock{now: time.UnixMilli(ms)}
}

// Now returns the current fake time. Pass it where a func() time.Time is expected.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to the given Unix millisecond.
func (c *Clock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(ms)
}
