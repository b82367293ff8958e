package gate

import (
	"log/slog"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/index"
	"github.com/roach88/gridkernel/internal/kernel"
	"github.com/roach88/gridkernel/internal/sched"
)

// Guard wraps a Gate and checks the index against the rows after every
// call. Checks run as a microtask on the loop; calls made within one tick
// share a single check.
type Guard struct {
	inner       Gate
	rows        func() *cell.Snapshot
	idx         index.Snapshotter
	check       *sched.Scheduler
	opts        func() AssertOptions
	onViolation func(error)
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithAssertOptions supplies the AssertOptions used on every check. It is
// called per check so it can reflect state such as past evictions.
func WithAssertOptions(fn func() AssertOptions) GuardOption {
	return func(g *Guard) {
		g.opts = fn
	}
}

// OnViolation replaces the default violation handler, which panics.
func OnViolation(fn func(error)) GuardOption {
	return func(g *Guard) {
		g.onViolation = fn
	}
}

// WithIndexGuard wraps inner. In production builds it returns inner
// unchanged.
func WithIndexGuard(inner Gate, loop *sched.Loop, rows func() *cell.Snapshot, idx index.Snapshotter, opts ...GuardOption) Gate {
	if !kernel.DevBuild {
		return inner
	}
	g := &Guard{
		inner:       inner,
		rows:        rows,
		idx:         idx,
		opts:        func() AssertOptions { return AssertOptions{} },
		onViolation: func(err error) { panic(err) },
	}
	for _, opt := range opts {
		opt(g)
	}
	g.check = sched.NewScheduler(loop, sched.Deferred, g.Check)
	return g
}

// Check runs the consistency assertion now.
func (g *Guard) Check() {
	err := AssertIndexes(g.rows(), g.idx, g.opts())
	if err == nil {
		return
	}
	slog.Error("index guard", "error", err)
	g.onViolation(err)
}

// Unwrap returns the guarded gate.
func (g *Guard) Unwrap() Gate {
	return g.inner
}

// UpdateField implements Gate.
func (g *Guard) UpdateField(path string, next any, src ...diff.Source) {
	g.inner.UpdateField(path, next, src...)
	g.check.Arm()
}

// ApplyPatches implements Gate.
func (g *Guard) ApplyPatches(patches map[string]any, src ...diff.Source) {
	g.inner.ApplyPatches(patches, src...)
	g.check.Arm()
}

// AddRow implements Gate.
func (g *Guard) AddRow(rowKey string, row map[string]any) {
	g.inner.AddRow(rowKey, row)
	g.check.Arm()
}

// RemoveRow implements Gate.
func (g *Guard) RemoveRow(rowKey string) {
	g.inner.RemoveRow(rowKey)
	g.check.Arm()
}

// RenameRow implements Gate.
func (g *Guard) RenameRow(oldKey, newKey string) {
	g.inner.RenameRow(oldKey, newKey)
	g.check.Arm()
}

var _ Gate = (*Guard)(nil)
