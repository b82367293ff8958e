package kernel

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/sched"
)

// DefaultLabel names commits when no label is configured.
const DefaultLabel = "kernel"

// Commit is one atomic application of queued actions.
type Commit struct {
	// Seq is strictly increasing per engine.
	Seq int64 `json:"seq"`

	// ID is unique per commit (UUIDv7 by default).
	ID string `json:"id"`

	// Rows is the snapshot after the commit. Never mutated.
	Rows *cell.Snapshot `json:"-"`

	// Diffs lists every cell change, in application order.
	Diffs []diff.FieldDiff `json:"diffs"`

	// Label is a human-readable origin tag.
	Label string `json:"label"`

	// ActionCount is the number of actions folded into the commit.
	ActionCount int `json:"action_count"`
}

// CommitListener receives commits. It runs on the goroutine that flushed.
type CommitListener func(Commit)

// State is the engine's scheduling state.
type State int

const (
	// Idle means no actions are queued.
	Idle State = iota
	// Pending means actions are queued and a flush is armed.
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "idle"
}

// Engine is the batched kernel.
//
// Dispatch queues an action and arms the commit scheduler; every action
// queued before the flush runs lands in the same Commit. The flush applies
// actions in arrival order against a copy-on-write Txn, updates the derived
// structures in Deps and hands the result to the commit listener.
//
// Thread-safety model:
//   - Dispatch, Rows, State: safe from any goroutine
//   - flushes are serialized by the single-writer lock
//   - the commit listener never runs concurrently with itself
type Engine struct {
	deps     Deps
	onCommit CommitListener
	label    string
	clock    Sequencer
	ids      IDGenerator
	cadence  sched.Cadence
	sched    *sched.Scheduler
	onFlush  func(FlushStats)

	rows atomic.Pointer[cell.Snapshot]

	// mu guards the queue and staged commit.
	mu         sync.Mutex
	pending    []Action
	staged     *Commit
	delivering bool
	disposed   bool

	// writeMu serializes flushes.
	writeMu sync.Mutex
}

// FlushStats describes one flush, for metrics.
type FlushStats struct {
	Actions int
	Diffs   int
	Dropped int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithDeps sets the derived structures kept in step with the rows.
func WithDeps(d Deps) EngineOption {
	return func(e *Engine) {
		e.deps = d
	}
}

// WithLabel sets the commit label. Default: "kernel".
func WithLabel(label string) EngineOption {
	return func(e *Engine) {
		if label != "" {
			e.label = label
		}
	}
}

// WithCadence selects when the commit scheduler fires. Default: Deferred.
func WithCadence(c sched.Cadence) EngineOption {
	return func(e *Engine) {
		e.cadence = c
	}
}

// WithClock sets the commit sequencer.
func WithClock(c Sequencer) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the commit ID generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithFlushHook registers a callback run after every flush that applied at
// least one action.
func WithFlushHook(fn func(FlushStats)) EngineOption {
	return func(e *Engine) {
		e.onFlush = fn
	}
}

// NewEngine creates an engine over initial rows. Flushes run on loop.
func NewEngine(loop *sched.Loop, initial *cell.Snapshot, onCommit CommitListener, opts ...EngineOption) *Engine {
	if initial == nil {
		initial = cell.Empty()
	}
	e := &Engine{
		onCommit: onCommit,
		label:    DefaultLabel,
		clock:    NewClock(),
		ids:      UUIDv7Generator{},
		cadence:  sched.Deferred,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rows.Store(initial)
	e.sched = sched.NewScheduler(loop, e.cadence, e.flush)
	return e
}

// Dispatch queues an action. It never blocks on a flush; the result becomes
// visible at the next scheduled flush or FlushNow.
func (e *Engine) Dispatch(a Action) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	e.pending = append(e.pending, a)
	e.mu.Unlock()
	e.sched.Arm()
	return nil
}

// Rows returns the current committed snapshot.
func (e *Engine) Rows() *cell.Snapshot {
	return e.rows.Load()
}

// State reports whether actions are queued.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) > 0 {
		return Pending
	}
	return Idle
}

// Label returns the commit label.
func (e *Engine) Label() string {
	return e.label
}

// FlushNow drains the queue synchronously. With nothing queued it does
// nothing.
func (e *Engine) FlushNow() {
	e.sched.Cancel()
	e.flush()
}

func (e *Engine) take() []Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	actions := e.pending
	e.pending = nil
	return actions
}

func (e *Engine) flush() {
	e.writeMu.Lock()
	txn := NewTxn(e.rows.Load(), e.deps)
	// Actions dispatched while applying join this flush.
	for actions := e.take(); len(actions) > 0; actions = e.take() {
		for _, a := range actions {
			txn.Apply(a)
		}
	}
	if txn.Actions() == 0 {
		e.writeMu.Unlock()
		return
	}
	rows := txn.Snapshot()
	e.rows.Store(rows)
	diffs := txn.Diffs()
	if len(diffs) > 0 {
		e.stage(rows, diffs, txn.Actions())
	}
	e.writeMu.Unlock()

	if DevBuild {
		for _, p := range txn.Dropped() {
			slog.Debug("dropped malformed path", "path", p, "label", e.label)
		}
	}
	if e.onFlush != nil {
		e.onFlush(FlushStats{Actions: txn.Actions(), Diffs: len(diffs), Dropped: len(txn.Dropped())})
	}
	e.deliver()
}

// stage merges a flush result into the commit awaiting delivery. Diff
// lists concatenate, the latest rows win and action counts add up.
func (e *Engine) stage(rows *cell.Snapshot, diffs []diff.FieldDiff, actions int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.staged == nil {
		e.staged = &Commit{Label: e.label}
	}
	e.staged.Rows = rows
	e.staged.Diffs = append(e.staged.Diffs, diffs...)
	e.staged.ActionCount += actions
}

// deliver hands staged commits to the listener. A flush triggered from
// inside the listener stages its commit for the outer delivery loop.
func (e *Engine) deliver() {
	e.mu.Lock()
	if e.delivering {
		e.mu.Unlock()
		return
	}
	e.delivering = true
	for e.staged != nil && !e.disposed {
		c := *e.staged
		e.staged = nil
		e.mu.Unlock()

		c.Seq = e.clock.Next()
		c.ID = e.ids.Generate()
		slog.Debug("commit", "seq", c.Seq, "label", c.Label, "actions", c.ActionCount, "diffs", len(c.Diffs))
		if e.onCommit != nil {
			e.onCommit(c)
		}

		e.mu.Lock()
	}
	e.delivering = false
	e.mu.Unlock()
}

// Close disposes the engine: queued actions and undelivered commits are
// dropped and later dispatches fail with ErrDisposed.
func (e *Engine) Close() {
	e.mu.Lock()
	e.disposed = true
	e.pending = nil
	e.staged = nil
	e.mu.Unlock()
	e.sched.Cancel()
}
