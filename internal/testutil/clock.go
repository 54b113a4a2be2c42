// Package testutil holds shared test fixtures: a controllable clock and
// canned records for each record type.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the base timestamp fixtures are built around. Millisecond
// precision, matching what the storage layer persists.
var Epoch = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe manual clock for tests. It
// satisfies the store's Clock interface, so change-log and access-log
// timestamps become assertable values.
type DeterministicClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewDeterministicClock creates a clock frozen at Epoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{now: Epoch}
}

// Now returns the frozen time.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *DeterministicClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to an absolute time.
func (c *DeterministicClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
