package table

import (
	"context"

	"github.com/roach88/gridkernel/internal/kernel"
	"github.com/roach88/gridkernel/internal/metrics"
	"github.com/roach88/gridkernel/internal/sched"
)

// CommitSink receives every delivered commit. Implemented by
// journal.Journal.
type CommitSink interface {
	Append(ctx context.Context, c kernel.Commit) error
}

type options struct {
	loop        *sched.Loop
	metrics     *metrics.Collectors
	sink        CommitSink
	clock       kernel.Sequencer
	ids         kernel.IDGenerator
	onViolation func(error)
}

// Option configures a Store.
type Option func(*options)

// WithLoop runs the store on an existing loop. The store does not close a
// loop it did not create.
func WithLoop(l *sched.Loop) Option {
	return func(o *options) {
		o.loop = l
	}
}

// WithMetrics records store activity on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithCommitSink appends every commit to sink. Append errors are logged
// and do not affect the store.
func WithCommitSink(sink CommitSink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithClock sets the commit sequencer.
func WithClock(c kernel.Sequencer) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIDGenerator sets the commit ID generator.
func WithIDGenerator(g kernel.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithViolationHook replaces the guard's default violation handler, which
// panics.
func WithViolationHook(fn func(error)) Option {
	return func(o *options) {
		o.onViolation = fn
	}
}
