// Package diffbus batches field diffs and delivers them to subscribers on a
// configurable cadence.
//
// Any number of Publish calls before the flush fires produce one batch.
// Every subscriber receives the same batch slice and must treat it as
// read-only. A panicking subscriber is logged and skipped; the remaining
// subscribers and later batches are unaffected.
package diffbus

import (
	"log/slog"
	"sync"

	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/sched"
)

// Listener receives one batch of diffs.
type Listener func(batch []diff.FieldDiff)

type subscription struct {
	id uint64
	fn Listener
}

// Bus is a batched diff channel. Publish and Subscribe are safe from any
// goroutine; listeners run on the loop.
type Bus struct {
	sched *sched.Scheduler

	mu        sync.Mutex
	queue     []diff.FieldDiff
	listeners []subscription
	nextID    uint64
	onPanic   func(any)
}

// Option configures a Bus.
type Option func(*Bus)

// WithPanicHook is called with the recovered value whenever a listener
// panics.
func WithPanicHook(fn func(any)) Option {
	return func(b *Bus) {
		b.onPanic = fn
	}
}

// New creates a Bus flushing on loop with the given cadence.
func New(loop *sched.Loop, cadence sched.Cadence, opts ...Option) *Bus {
	b := &Bus{}
	b.sched = sched.NewScheduler(loop, cadence, b.Flush)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends diffs to the pending batch and arms one flush. An empty
// call is ignored.
func (b *Bus) Publish(diffs ...diff.FieldDiff) {
	if len(diffs) == 0 {
		return
	}
	b.mu.Lock()
	b.queue = append(b.queue, diffs...)
	b.mu.Unlock()
	b.sched.Arm()
}

// Subscribe registers fn and returns a function that removes it.
// Unsubscribing twice is harmless.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.listeners {
			if s.id == id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetStrategy changes the cadence of future flushes.
func (b *Bus) SetStrategy(c sched.Cadence) {
	b.sched.SetCadence(c)
}

// Strategy returns the current cadence.
func (b *Bus) Strategy() sched.Cadence {
	return b.sched.Cadence()
}

// Pending returns the number of queued diffs.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Flush delivers the pending batch now. Listeners added or removed during
// delivery take effect from the next batch.
func (b *Bus) Flush() {
	b.sched.Cancel()
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	listeners := b.listeners
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	for _, s := range listeners {
		b.deliver(s.fn, batch)
	}
}

func (b *Bus) deliver(fn Listener, batch []diff.FieldDiff) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("diff listener panicked", "diffs", len(batch), "panic", r)
			if b.onPanic != nil {
				b.onPanic(r)
			}
		}
	}()
	fn(batch)
}

// Close drops pending diffs and all listeners.
func (b *Bus) Close() {
	b.sched.Cancel()
	b.mu.Lock()
	b.queue = nil
	b.listeners = nil
	b.mu.Unlock()
}
