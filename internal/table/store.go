package table

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/config"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/diffbus"
	"github.com/roach88/gridkernel/internal/gate"
	"github.com/roach88/gridkernel/internal/index"
	"github.com/roach88/gridkernel/internal/kernel"
	"github.com/roach88/gridkernel/internal/metrics"
	"github.com/roach88/gridkernel/internal/offload"
	"github.com/roach88/gridkernel/internal/sched"
	"github.com/roach88/gridkernel/internal/selector"
	"github.com/roach88/gridkernel/internal/version"
)

type commitSub struct {
	id uint64
	fn kernel.CommitListener
}

// Store is an assembled row/column store.
//
// Mutations are safe from any goroutine. Diff batches are delivered on the
// loop, so nothing reaches compute listeners until Run, FlushNow or the
// caller drives the loop. Commit listeners run where the commit is
// delivered: on the loop in kernel mode, on the calling goroutine in
// direct mode.
type Store struct {
	ctx      context.Context
	cfg      config.Config
	loop     *sched.Loop
	ownLoop  bool
	bus      *diffbus.Bus
	versions *version.Map
	sels     *selector.Cache
	local    *index.Store
	proxy    *offload.Proxy
	idx      index.Index
	engine   *kernel.Engine
	gate     gate.Gate
	rows     func() *cell.Snapshot
	fields   *sched.Batcher[string, any]
	metrics  *metrics.Collectors
	sink     CommitSink

	evictions atomic.Int64

	mu      sync.Mutex
	subs    []commitSub
	nextSub uint64
	closed  bool
}

// New builds a store over initial rows. ctx bounds background work such
// as the index worker and commit sink writes.
func New(ctx context.Context, cfg config.Config, initial map[string]map[string]any, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	commitCadence, err := cfg.CommitCadence()
	if err != nil {
		return nil, fmt.Errorf("commit cadence: %w", err)
	}
	busCadence, err := cfg.BusCadence()
	if err != nil {
		return nil, fmt.Errorf("bus strategy: %w", err)
	}
	frame, err := cfg.FrameDuration()
	if err != nil {
		return nil, fmt.Errorf("frame interval: %w", err)
	}

	s := &Store{
		ctx:      ctx,
		cfg:      cfg,
		loop:     o.loop,
		versions: version.New(),
		sels:     selector.New(),
		metrics:  o.metrics,
		sink:     o.sink,
	}
	if s.loop == nil {
		s.loop = sched.NewLoop(sched.WithFrameInterval(frame))
		s.ownLoop = true
	}

	if cfg.Offload {
		s.proxy = offload.Start(ctx, offload.Options{
			Whitelist:  cfg.Index.Whitelist,
			Eager:      cfg.Index.Eager,
			MaxColumns: cfg.Index.MaxColumns,
		})
		s.idx = s.proxy
	} else {
		s.local = index.New(append(cfg.IndexOptions(), index.WithEvictHook(s.onEvict))...)
		s.idx = s.local
	}

	snap := cell.NewSnapshot(initial)
	s.idx.RebuildFromRows(snap)

	s.bus = diffbus.New(s.loop, busCadence, diffbus.WithPanicHook(func(any) {
		s.metrics.ListenerPanic()
	}))

	deps := kernel.Deps{Index: s.idx, Versions: s.versions, Selectors: s.sels}
	switch cfg.Mode {
	case config.ModeDirect:
		dopts := []gate.DirectOption{gate.WithDeps(deps), gate.WithCommitHook(s.handleCommit)}
		if o.clock != nil {
			dopts = append(dopts, gate.WithClock(o.clock))
		}
		if o.ids != nil {
			dopts = append(dopts, gate.WithIDGenerator(o.ids))
		}
		d := gate.NewDirect(snap, dopts...)
		s.gate, s.rows = d, d.Rows
	default:
		eopts := []kernel.EngineOption{
			kernel.WithDeps(deps),
			kernel.WithLabel(cfg.Label),
			kernel.WithCadence(commitCadence),
			kernel.WithFlushHook(func(st kernel.FlushStats) { s.metrics.Dropped(st.Dropped) }),
		}
		if o.clock != nil {
			eopts = append(eopts, kernel.WithClock(o.clock))
		}
		if o.ids != nil {
			eopts = append(eopts, kernel.WithIDGenerator(o.ids))
		}
		s.engine = kernel.NewEngine(s.loop, snap, s.handleCommit, eopts...)
		s.gate, s.rows = gate.NewKernel(s.engine), s.engine.Rows
	}

	if cfg.Guard {
		s.gate = s.withGuard(s.gate, o.onViolation)
	}

	s.fields = sched.NewBatcher(s.loop, cfg.BatchMax, func(path string, v any) {
		s.gate.UpdateField(path, v)
	})

	slog.Debug("store ready",
		"mode", cfg.Mode,
		"rows", snap.Len(),
		"offload", cfg.Offload,
		"cadence", commitCadence,
		"bus_strategy", busCadence)
	return s, nil
}

func (s *Store) withGuard(g gate.Gate, onViolation func(error)) gate.Gate {
	if s.local == nil {
		slog.Info("index guard disabled: index is offloaded")
		return g
	}
	if onViolation == nil {
		onViolation = func(err error) { panic(err) }
	}
	return gate.WithIndexGuard(g, s.loop, s.rows, s.local,
		gate.WithAssertOptions(func() gate.AssertOptions {
			return gate.AssertOptions{
				Allowed:         s.local.Allowed,
				LiveColumnsOnly: s.evictions.Load() > 0,
				Partial:         s.local.Partial,
			}
		}),
		gate.OnViolation(func(err error) {
			s.metrics.GuardViolation()
			onViolation(err)
		}),
	)
}

func (s *Store) onEvict(col string) {
	s.evictions.Add(1)
	s.metrics.Evicted()
	slog.Debug("column evicted", "column", col)
}

// handleCommit publishes a commit to every tier. It runs on the goroutine
// that flushed, once per commit.
func (s *Store) handleCommit(c kernel.Commit) {
	s.bus.Publish(c.Diffs...)

	rowCount := 0
	if c.Rows != nil {
		rowCount = c.Rows.Len()
	}
	s.metrics.ObserveCommit(c.Label, c.ActionCount, c.Diffs, rowCount)
	if s.local != nil {
		s.metrics.SetColumns(len(s.local.Columns()))
	}

	if s.sink != nil {
		if err := s.sink.Append(s.ctx, c); err != nil {
			slog.Warn("commit sink append failed", "seq", c.Seq, "label", c.Label, "error", err)
		}
	}

	s.mu.Lock()
	subs := make([]commitSub, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(c)
	}
}

// Gate returns the mutation surface, guarded when the guard is active.
func (s *Store) Gate() gate.Gate { return s.gate }

// UpdateField implements gate.Gate.
func (s *Store) UpdateField(path string, next any, src ...diff.Source) {
	s.gate.UpdateField(path, next, src...)
}

// ApplyPatches implements gate.Gate.
func (s *Store) ApplyPatches(patches map[string]any, src ...diff.Source) {
	s.gate.ApplyPatches(patches, src...)
}

// AddRow implements gate.Gate.
func (s *Store) AddRow(rowKey string, row map[string]any) {
	s.gate.AddRow(rowKey, row)
}

// RemoveRow implements gate.Gate.
func (s *Store) RemoveRow(rowKey string) {
	s.gate.RemoveRow(rowKey)
}

// RenameRow implements gate.Gate.
func (s *Store) RenameRow(oldKey, newKey string) {
	s.gate.RenameRow(oldKey, newKey)
}

// QueueField defers a field write to the end of the current tick. Writes
// to the same path before then collapse into one call with the last value.
func (s *Store) QueueField(path string, next any) {
	s.fields.Push(path, next)
}

// Rows returns the latest committed snapshot.
func (s *Store) Rows() *cell.Snapshot { return s.rows() }

// Get reads one committed cell.
func (s *Store) Get(rowKey, col string) (any, bool) {
	return s.rows().Get(rowKey, col)
}

// Subscribe registers a commit listener and returns its unsubscribe
// function.
func (s *Store) Subscribe(fn kernel.CommitListener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, commitSub{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeCompute receives raw diff batches from the bus.
func (s *Store) SubscribeCompute(fn diffbus.Listener) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// Watch calls onTick after every commit that changed col's version.
func (s *Store) Watch(col string, onTick func(version.ColumnVersion)) (unsubscribe func()) {
	w := version.Watch(s.versions, col, onTick)
	return s.Subscribe(func(kernel.Commit) { w.Check() })
}

// PullColumn returns the live index view of col. Offloaded indexes have no
// live views and return offload.ErrUnsupported.
func (s *Store) PullColumn(col string) (*index.Column, error) {
	if s.local == nil {
		return s.proxy.Column(col)
	}
	return s.local.Column(col), nil
}

// IndexSnapshot returns the index contents. For an offloaded index this is
// the last snapshot received from the worker.
func (s *Store) IndexSnapshot() map[string]map[string]any {
	return s.idx.Snapshot()
}

// IndexSnapshotContext returns the index contents, waiting for the worker
// to catch up when the index is offloaded.
func (s *Store) IndexSnapshotContext(ctx context.Context) (map[string]map[string]any, error) {
	if s.proxy != nil {
		return s.proxy.SnapshotContext(ctx)
	}
	return s.local.Snapshot(), nil
}

// PartialColumn reports whether the index may lack rows for col because
// the column was re-created after an eviction. Eviction history of an
// offloaded index stays in the worker, so every column counts as partial.
func (s *Store) PartialColumn(col string) bool {
	if s.local == nil {
		return true
	}
	return s.local.Partial(col)
}

// Selector returns the cached accessor for (rowKey, col).
func (s *Store) Selector(rowKey, col string) *selector.Selector {
	return s.sels.Get(rowKey, col)
}

// Read evaluates sel against the committed rows.
func (s *Store) Read(sel *selector.Selector) (any, bool) {
	return sel.Read(s.rows())
}

// Versions returns the version map.
func (s *Store) Versions() *version.Map { return s.versions }

// Bus returns the diff bus.
func (s *Store) Bus() *diffbus.Bus { return s.bus }

// Loop returns the loop driving the store.
func (s *Store) Loop() *sched.Loop { return s.loop }

// Engine returns the kernel engine, or nil in direct mode.
func (s *Store) Engine() *kernel.Engine { return s.engine }

// Config returns the configuration the store was built with.
func (s *Store) Config() config.Config { return s.cfg }

// FlushNow delivers queued field writes, pending commits and pending diff
// batches synchronously.
func (s *Store) FlushNow() {
	s.fields.FlushNow()
	if s.engine != nil {
		s.engine.FlushNow()
	}
	s.bus.Flush()
}

// Run drives the loop until ctx ends or the store is closed.
func (s *Store) Run(ctx context.Context) error {
	return s.loop.Run(ctx)
}

// Close disposes the store: queued writes and commits are dropped,
// listeners are removed and the index worker stops. The loop is closed
// only if the store created it.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.subs = nil
	s.mu.Unlock()

	s.fields.Discard()
	if s.engine != nil {
		s.engine.Close()
	}
	s.bus.Close()
	s.sels.Clear()

	var err error
	if s.proxy != nil {
		err = s.proxy.Close()
	}
	if s.ownLoop {
		s.loop.Close()
	}
	return err
}

var _ gate.Gate = (*Store)(nil)
