// Package gate is the only public mutation surface of the store.
//
// Two implementations share the Gate interface:
//
//   - Direct applies each call synchronously in one step: rows, index,
//     versions and selectors are updated before the call returns, and the
//     diffs are published in commit order.
//   - Kernel forwards each call to a kernel.Engine, which folds every call
//     made before its next flush into one commit.
//
// Every operation is a no-op for inputs that change nothing. Malformed
// paths are dropped silently; in development builds they are logged.
package gate

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/kernel"
)

// Gate is the mutation surface.
type Gate interface {
	// UpdateField writes the cell at "rows.<rowKey>.<column>". Source
	// defaults to local.
	UpdateField(path string, next any, src ...diff.Source)

	// ApplyPatches writes many cells as one unit. Invalid paths are skipped
	// individually. Source defaults to server.
	ApplyPatches(patches map[string]any, src ...diff.Source)

	// AddRow inserts a row unless the key exists.
	AddRow(rowKey string, row map[string]any)

	// RemoveRow deletes a row and all derived entries for it.
	RemoveRow(rowKey string)

	// RenameRow moves a row unless the keys are equal, oldKey is absent or
	// newKey exists.
	RenameRow(oldKey, newKey string)
}

// Publisher receives diff batches. Implemented by diffbus.Bus.
type Publisher interface {
	Publish(diffs ...diff.FieldDiff)
}

func sourceOr(src []diff.Source, def diff.Source) diff.Source {
	if len(src) > 0 && src[0] != "" {
		return src[0]
	}
	return def
}

// Direct is the non-batched gate.
//
// Calls from different goroutines are serialized by a writer lock. Each
// call that changes something gets its commit Seq under that lock and
// publishes its diffs after rows, index and versions already reflect them.
//
// Commits are published strictly in Seq order. A call returns after its
// own commit is published, except when another goroutine is publishing at
// that moment, or when the call is made from a listener; the publisher
// already running then delivers it next.
type Direct struct {
	deps     kernel.Deps
	bus      Publisher
	onCommit kernel.CommitListener
	clock    kernel.Sequencer
	ids      kernel.IDGenerator

	rows atomic.Pointer[cell.Snapshot]
	mu   sync.Mutex

	// outbox holds stamped commits not yet published. Guarded by mu.
	outbox     []kernel.Commit
	publishing bool
}

// DirectOption configures a Direct gate.
type DirectOption func(*Direct)

// WithDeps sets the derived structures kept in step with the rows.
func WithDeps(d kernel.Deps) DirectOption {
	return func(g *Direct) {
		g.deps = d
	}
}

// WithPublisher sets where diffs are published.
func WithPublisher(p Publisher) DirectOption {
	return func(g *Direct) {
		g.bus = p
	}
}

// WithCommitHook registers a listener called with a Commit for every call
// that produced diffs.
func WithCommitHook(fn kernel.CommitListener) DirectOption {
	return func(g *Direct) {
		g.onCommit = fn
	}
}

// WithClock sets the commit sequencer.
func WithClock(c kernel.Sequencer) DirectOption {
	return func(g *Direct) {
		g.clock = c
	}
}

// WithIDGenerator sets the commit ID generator.
func WithIDGenerator(ids kernel.IDGenerator) DirectOption {
	return func(g *Direct) {
		g.ids = ids
	}
}

// NewDirect creates a Direct gate over initial rows.
func NewDirect(initial *cell.Snapshot, opts ...DirectOption) *Direct {
	if initial == nil {
		initial = cell.Empty()
	}
	g := &Direct{clock: kernel.NewClock(), ids: kernel.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(g)
	}
	g.rows.Store(initial)
	return g
}

// Rows returns the current snapshot.
func (g *Direct) Rows() *cell.Snapshot {
	return g.rows.Load()
}

// run applies one action in its own transaction. Must not hold g.mu.
func (g *Direct) run(a kernel.Action) {
	g.mu.Lock()
	txn := kernel.NewTxn(g.rows.Load(), g.deps)
	txn.Apply(a)
	rows := txn.Snapshot()
	g.rows.Store(rows)
	g.stageLocked(a.Name(), rows, txn.Diffs())
	g.mu.Unlock()

	logDropped(txn.Dropped())
	g.publish()
}

// stageLocked stamps a commit and queues it for publishing. Must hold g.mu.
func (g *Direct) stageLocked(name string, rows *cell.Snapshot, diffs []diff.FieldDiff) {
	if len(diffs) == 0 {
		return
	}
	g.outbox = append(g.outbox, kernel.Commit{
		Seq:         g.clock.Next(),
		ID:          g.ids.Generate(),
		Rows:        rows,
		Diffs:       diffs,
		Label:       "gate/" + name,
		ActionCount: 1,
	})
}

// publish delivers queued commits in order. Only one goroutine publishes at
// a time; others leave their commits to it. Must not hold g.mu.
func (g *Direct) publish() {
	g.mu.Lock()
	if g.publishing {
		g.mu.Unlock()
		return
	}
	g.publishing = true
	g.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			g.mu.Lock()
			g.publishing = false
			g.mu.Unlock()
			panic(r)
		}
	}()

	for {
		g.mu.Lock()
		if len(g.outbox) == 0 {
			g.publishing = false
			g.mu.Unlock()
			return
		}
		c := g.outbox[0]
		g.outbox[0] = kernel.Commit{}
		g.outbox = g.outbox[1:]
		g.mu.Unlock()

		if g.bus != nil {
			g.bus.Publish(c.Diffs...)
		}
		if g.onCommit != nil {
			g.onCommit(c)
		}
	}
}

func logDropped(paths []string) {
	if !kernel.DevBuild {
		return
	}
	for _, p := range paths {
		slog.Debug("dropped malformed path", "path", p)
	}
}

// UpdateField implements Gate.
func (g *Direct) UpdateField(path string, next any, src ...diff.Source) {
	g.run(kernel.UpdateField{Path: path, Next: next, Source: sourceOr(src, diff.SourceLocal)})
}

// ApplyPatches implements Gate.
//
// The diffs are planned against a snapshot taken without the writer lock.
// If another call committed in between, the plan is rebuilt once against
// the newer rows while holding the lock, so the rebase cannot race again.
func (g *Direct) ApplyPatches(patches map[string]any, src ...diff.Source) {
	list := kernel.PatchesFromMap(patches)
	source := sourceOr(src, diff.SourceServer)

	s0 := g.rows.Load()
	plan := kernel.PlanPatches(s0, list, source)
	logDropped(plan.Dropped)
	if len(plan.Diffs) == 0 {
		return
	}

	g.mu.Lock()
	if s1 := g.rows.Load(); s1 != s0 {
		plan = kernel.PlanPatches(s1, list, source)
		if len(plan.Diffs) == 0 {
			g.mu.Unlock()
			return
		}
	}
	g.rows.Store(plan.Rows)
	g.deps.Replay(plan.Diffs)
	g.stageLocked(kernel.ApplyPatches{}.Name(), plan.Rows, plan.Diffs)
	g.mu.Unlock()

	g.publish()
}

// AddRow implements Gate.
func (g *Direct) AddRow(rowKey string, row map[string]any) {
	g.run(kernel.AddRow{RowKey: rowKey, Row: row})
}

// RemoveRow implements Gate.
func (g *Direct) RemoveRow(rowKey string) {
	g.run(kernel.RemoveRow{RowKey: rowKey})
}

// RenameRow implements Gate.
func (g *Direct) RenameRow(oldKey, newKey string) {
	g.run(kernel.RenameRow{OldKey: oldKey, NewKey: newKey})
}

var _ Gate = (*Direct)(nil)
