package sched

import (
	"context"
	"sync"
	"time"
)

// Loop is a single-goroutine task loop.
//
// Thread-safety model:
//   - Post, Defer, RequestFrame: safe from any goroutine
//   - Run, RunPending, Tick: must not be called concurrently with each other
type Loop struct {
	mu     sync.Mutex
	macro  []func()
	micro  []func()
	frame  []func()
	closed bool
	signal chan struct{} // buffered, size 1

	frames        bool
	frameInterval time.Duration
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithFrameInterval gives the loop a frame source: Run ticks frames at the
// given interval.
func WithFrameInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.frames = true
			l.frameInterval = d
		}
	}
}

// WithManualFrames gives the loop a frame source driven only by Tick.
func WithManualFrames() LoopOption {
	return func(l *Loop) {
		l.frames = true
	}
}

// NewLoop creates an idle loop. Without a frame option, RequestFrame falls
// back to Defer.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{signal: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HasFrames reports whether the loop has a frame source.
func (l *Loop) HasFrames() bool {
	return l.frames
}

func (l *Loop) push(q *[]func(), fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	*q = append(*q, fn)
	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// Post queues fn as a macrotask. Returns false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	return l.push(&l.macro, fn)
}

// Defer queues fn as a microtask. Returns false once the loop is closed.
func (l *Loop) Defer(fn func()) bool {
	return l.push(&l.micro, fn)
}

// RequestFrame queues fn for the next frame tick, or as a microtask when
// the loop has no frame source. Returns false once the loop is closed.
func (l *Loop) RequestFrame(fn func()) bool {
	if !l.frames {
		return l.Defer(fn)
	}
	return l.push(&l.frame, fn)
}

func (l *Loop) popMicro() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.micro) == 0 {
		return nil, false
	}
	fn := l.micro[0]
	l.micro[0] = nil
	l.micro = l.micro[1:]
	if len(l.micro) == 0 {
		l.micro = nil
	}
	return fn, true
}

func (l *Loop) popMacro() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.macro) == 0 {
		return nil, false
	}
	fn := l.macro[0]
	l.macro[0] = nil
	l.macro = l.macro[1:]
	if len(l.macro) == 0 {
		l.macro = nil
	}
	return fn, true
}

// drainMicro runs microtasks until none are left, including ones queued
// while draining.
func (l *Loop) drainMicro() int {
	n := 0
	for {
		fn, ok := l.popMicro()
		if !ok {
			return n
		}
		fn()
		n++
	}
}

// RunPending runs microtasks and macrotasks until both queues are empty.
// Microtasks always drain before the next macrotask. Frame callbacks are
// left for Tick. Returns the number of tasks run.
func (l *Loop) RunPending() int {
	n := l.drainMicro()
	for {
		fn, ok := l.popMacro()
		if !ok {
			return n
		}
		fn()
		n++
		n += l.drainMicro()
	}
}

// Tick runs the frame callbacks queued before the tick, then drains
// microtasks. Callbacks requested during the tick wait for the next one.
func (l *Loop) Tick() int {
	l.mu.Lock()
	batch := l.frame
	l.frame = nil
	l.mu.Unlock()

	n := 0
	for _, fn := range batch {
		fn()
		n++
		n += l.drainMicro()
	}
	return n
}

// Pending returns the number of queued tasks across all queues.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.macro) + len(l.micro) + len(l.frame)
}

// Run processes tasks until ctx is cancelled or the loop is closed.
// Returns ctx.Err() on cancellation, nil on Close.
func (l *Loop) Run(ctx context.Context) error {
	var ticks <-chan time.Time
	if l.frameInterval > 0 {
		t := time.NewTicker(l.frameInterval)
		defer t.Stop()
		ticks = t.C
	}
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-l.signal:
			if !ok {
				l.RunPending()
				return nil
			}
		case <-ticks:
			l.Tick()
		}
	}
}

// Close stops accepting tasks and wakes Run. Tasks already queued still run
// on the next RunPending.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.signal)
}

// Closed reports whether Close was called.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
