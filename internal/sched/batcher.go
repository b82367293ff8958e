package sched

import (
	"log/slog"
	"sync"
)

// DefaultBatchMax bounds a Batcher when no limit is given.
const DefaultBatchMax = 1000

// Batcher coalesces keyed payloads within one microtask.
//
// Pushing the same key twice before the flush keeps the latest payload in
// the key's original position. When a new key would exceed the limit, the oldest
// key is dropped; a limit <= 0 keeps only the newest key. Pushes made while a
// batch is flushing go into the next batch.
type Batcher[K comparable, P any] struct {
	loop  *Loop
	limit int
	flush func(K, P)

	mu        sync.Mutex
	keys      []K
	payloads  map[K]P
	scheduled bool
}

// NewBatcher creates a Batcher that delivers each batch to flush, key by
// key, in insertion order.
func NewBatcher[K comparable, P any](loop *Loop, limit int, flush func(K, P)) *Batcher[K, P] {
	return &Batcher[K, P]{
		loop:     loop,
		limit:    limit,
		flush:    flush,
		payloads: make(map[K]P),
	}
}

// Push records payload under key and schedules a flush.
func (b *Batcher[K, P]) Push(key K, payload P) {
	b.mu.Lock()
	if _, ok := b.payloads[key]; !ok {
		b.evictLocked()
		b.keys = append(b.keys, key)
	}
	b.payloads[key] = payload
	schedule := !b.scheduled
	b.scheduled = true
	b.mu.Unlock()

	if schedule && !b.loop.Defer(b.FlushNow) {
		b.mu.Lock()
		b.scheduled = false
		b.mu.Unlock()
	}
}

func (b *Batcher[K, P]) evictLocked() {
	if len(b.keys) == 0 {
		return
	}
	if b.limit > 0 && len(b.keys) < b.limit {
		return
	}
	oldest := b.keys[0]
	b.keys = b.keys[1:]
	delete(b.payloads, oldest)
}

// Len returns the number of keys waiting for the next flush.
func (b *Batcher[K, P]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}

// FlushNow delivers the current batch synchronously. A panicking flush
// callback is logged and the rest of the batch still runs.
func (b *Batcher[K, P]) FlushNow() {
	b.mu.Lock()
	keys, payloads := b.keys, b.payloads
	b.keys = nil
	b.payloads = make(map[K]P)
	b.scheduled = false
	b.mu.Unlock()

	for _, k := range keys {
		b.deliver(k, payloads[k])
	}
}

func (b *Batcher[K, P]) deliver(k K, p P) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("batch flush panicked", "key", k, "panic", r)
		}
	}()
	b.flush(k, p)
}

// Discard drops the pending batch without delivering it.
func (b *Batcher[K, P]) Discard() {
	b.mu.Lock()
	b.keys = nil
	clear(b.payloads)
	b.mu.Unlock()
}
