// Package testutil holds deterministic stand-ins for the kernel's clock and
// ID generator, plus a recorder for commits and diff batches.
package testutil

import "sync"

// Clock is a kernel.Sequencer that can be rewound, so one scenario run
// twice numbers its commits identically.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu    sync.Mutex
	start int64
	seq   int64
}

// NewClock creates a clock whose first Next returns start+1.
func NewClock(start int64) *Clock {
	return &Clock{start: start, seq: start}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds to the starting value.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = c.start
}
