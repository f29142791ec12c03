package core

import (
	"sync"
	"time"
)

// Clock supplies the ledger's notion of current time in unix seconds. The
// node samples it once per transaction.
type Clock interface {
	Now() int64
}

// SystemClock reads wall-clock time but never reports a value lower than one
// it has already returned.
type SystemClock struct {
	mu     sync.Mutex
	last   int64
	source func() time.Time
}

// NewSystemClock returns a clock backed by time.Now.
func NewSystemClock() *SystemClock {
	return &SystemClock{source: time.Now}
}

// Now implements Clock.
func (c *SystemClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	source := c.source
	if source == nil {
		source = time.Now
	}
	now := source().Unix()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}

// ManualClock is a settable clock for tests and tooling.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock starts a manual clock at the supplied time.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward. Negative durations are ignored.
func (c *ManualClock) Advance(seconds int64) {
	if seconds <= 0 {
		return
	}
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

// Set moves the clock to ts unless that would move it backwards.
func (c *ManualClock) Set(ts int64) {
	c.mu.Lock()
	if ts > c.now {
		c.now = ts
	}
	c.mu.Unlock()
}
