package sched

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Cadence selects when an armed Scheduler fires.
type Cadence string

const (
	// Immediate fires on the next macrotask.
	Immediate Cadence = "immediate"
	// Deferred fires on the next microtask.
	Deferred Cadence = "deferred"
	// FrameAligned fires on the next frame tick, or as a microtask when the
	// loop has no frame source.
	FrameAligned Cadence = "frame"
)

// ParseCadence accepts the canonical names plus the aliases "microtask"
// and "raf".
func ParseCadence(s string) (Cadence, error) {
	switch s {
	case "immediate", "macrotask":
		return Immediate, nil
	case "deferred", "microtask":
		return Deferred, nil
	case "frame", "raf", "frame-aligned":
		return FrameAligned, nil
	default:
		return "", fmt.Errorf("unknown cadence %q", s)
	}
}

// Schedule queues fn on loop according to c.
func (c Cadence) Schedule(loop *Loop, fn func()) bool {
	switch c {
	case Deferred:
		return loop.Defer(fn)
	case FrameAligned:
		return loop.RequestFrame(fn)
	default:
		return loop.Post(fn)
	}
}

// Scheduler wraps a flush callback with a cadence. Arm is idempotent: any
// number of Arm calls before the callback runs schedule it once.
type Scheduler struct {
	loop *Loop
	fn   func()

	mu      sync.Mutex
	cadence Cadence
	armed   atomic.Bool
}

// NewScheduler binds fn to loop with the given cadence.
func NewScheduler(loop *Loop, cadence Cadence, fn func()) *Scheduler {
	return &Scheduler{loop: loop, fn: fn, cadence: cadence}
}

// Cadence returns the current cadence.
func (s *Scheduler) Cadence() Cadence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence
}

// SetCadence changes the cadence for future arms. An already armed tick
// keeps its original timing.
func (s *Scheduler) SetCadence(c Cadence) {
	s.mu.Lock()
	s.cadence = c
	s.mu.Unlock()
}

// Arm schedules the callback unless it is already pending. Returns false
// when the loop refused the task.
func (s *Scheduler) Arm() bool {
	if !s.armed.CompareAndSwap(false, true) {
		return true
	}
	if !s.Cadence().Schedule(s.loop, s.fire) {
		s.armed.Store(false)
		return false
	}
	return true
}

func (s *Scheduler) fire() {
	if !s.armed.Swap(false) {
		return
	}
	s.fn()
}

// Pending reports whether a tick is armed.
func (s *Scheduler) Pending() bool {
	return s.armed.Load()
}

// Cancel disarms a pending tick; the queued task becomes a no-op.
func (s *Scheduler) Cancel() {
	s.armed.Store(false)
}
