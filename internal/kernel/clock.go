package kernel

import "sync/atomic"

// Sequencer stamps commits with a strictly increasing sequence number.
// Implemented by Clock and by test clocks that can be reset.
type Sequencer interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical clock for commit ordering.
//
// Sequence numbers come from the clock, never from wall time, so a replayed
// scenario numbers its commits identically.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used to continue numbering after the last journaled commit.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
