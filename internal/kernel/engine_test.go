package kernel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/sched"
)

type recorder struct {
	mu      sync.Mutex
	commits []Commit
}

func (r *recorder) listen(c Commit) {
	r.mu.Lock()
	r.commits = append(r.commits, c)
	r.mu.Unlock()
}

func newTestEngine(t *testing.T, initial *cell.Snapshot, opts ...EngineOption) (*Engine, *sched.Loop, *recorder, fixture) {
	t.Helper()
	loop := sched.NewLoop()
	rec := &recorder{}
	f := newFixture()
	opts = append([]EngineOption{WithDeps(f.deps()), WithIDGenerator(NewSequenceGenerator("c"))}, opts...)
	return NewEngine(loop, initial, rec.listen, opts...), loop, rec, f
}

func TestEngine_BatchCoalescing(t *testing.T) {
	e, loop, rec, f := newTestEngine(t, nil)

	require.NoError(t, e.Dispatch(AddRow{RowKey: "r1", Row: map[string]any{"a": 1}}))
	require.NoError(t, e.Dispatch(UpdateField{Path: "rows.r1.a", Next: 2}))
	require.NoError(t, e.Dispatch(UpdateField{Path: "rows.r1.b", Next: 3}))
	assert.Equal(t, Pending, e.State())
	assert.Equal(t, 0, e.Rows().Len(), "nothing visible before the flush")

	loop.RunPending()

	require.Len(t, rec.commits, 1)
	c := rec.commits[0]
	assert.Equal(t, 3, c.ActionCount)
	assert.Len(t, c.Diffs, 3)
	assert.Equal(t, DefaultLabel, c.Label)
	assert.Equal(t, int64(1), c.Seq)
	assert.Equal(t, "c-0001", c.ID)
	assert.Same(t, c.Rows, e.Rows())
	assert.Equal(t, map[string]map[string]any{"r1": {"a": 2, "b": 3}}, e.Rows().ToMap())
	assert.Equal(t, map[string]any{"r1": 2}, f.idx.Column("a").ByRow())
	assert.Equal(t, Idle, e.State())
}

func TestEngine_NoDiffsNoCommit(t *testing.T) {
	e, loop, rec, _ := newTestEngine(t, cell.NewSnapshot(map[string]map[string]any{"r": {"a": 1}}))
	before := e.Rows()
	e.Dispatch(UpdateField{Path: "rows.r.a", Next: 1})
	e.Dispatch(UpdateField{Path: "rows.__proto__.a", Next: 1})
	loop.RunPending()

	assert.Empty(t, rec.commits)
	assert.Same(t, before, e.Rows())
}

func TestEngine_DefaultSources(t *testing.T) {
	e, _, rec, _ := newTestEngine(t, nil)
	e.Dispatch(UpdateField{Path: "rows.r.a", Next: 1})
	e.Dispatch(ApplyPatches{Patches: []Patch{{Path: "rows.r.b", Value: 2}}})
	e.Dispatch(UpdateField{Path: "rows.r.c", Next: 3, Source: diff.SourceServer})
	e.FlushNow()

	require.Len(t, rec.commits, 1)
	srcs := []diff.Source{}
	for _, d := range rec.commits[0].Diffs {
		srcs = append(srcs, d.Source)
	}
	assert.Equal(t, []diff.Source{diff.SourceLocal, diff.SourceServer, diff.SourceServer}, srcs)
}

func TestEngine_FlushNowIsIdempotent(t *testing.T) {
	e, loop, rec, _ := newTestEngine(t, nil)
	e.FlushNow()
	assert.Empty(t, rec.commits)

	e.Dispatch(UpdateField{Path: "rows.r.a", Next: 1})
	e.FlushNow()
	e.FlushNow()
	loop.RunPending()
	assert.Len(t, rec.commits, 1)
}

func TestEngine_DispatchFromListenerCommitsSeparately(t *testing.T) {
	loop := sched.NewLoop()
	var commits []Commit
	var e *Engine
	e = NewEngine(loop, nil, func(c Commit) {
		commits = append(commits, c)
		if len(commits) == 1 {
			e.Dispatch(UpdateField{Path: "rows.r.b", Next: 2})
		}
	})
	e.Dispatch(UpdateField{Path: "rows.r.a", Next: 1})
	loop.RunPending()

	require.Len(t, commits, 2)
	assert.Equal(t, int64(1), commits[0].Seq)
	assert.Equal(t, int64(2), commits[1].Seq)
	assert.Equal(t, map[string]map[string]any{"r": {"a": 1, "b": 2}}, e.Rows().ToMap())
}

func TestEngine_FlushInsideListenerIsCoalesced(t *testing.T) {
	loop := sched.NewLoop()
	var commits []Commit
	var e *Engine
	e = NewEngine(loop, nil, func(c Commit) {
		commits = append(commits, c)
		if len(commits) == 1 {
			e.Dispatch(UpdateField{Path: "rows.r.b", Next: 2})
			e.FlushNow()
			assert.Len(t, commits, 1, "nested commit waits for the outer delivery")
		}
	})
	e.Dispatch(UpdateField{Path: "rows.r.a", Next: 1})
	loop.RunPending()
	require.Len(t, commits, 2)
	assert.Len(t, commits[1].Diffs, 1)
}

func TestEngine_SequentialEquivalence(t *testing.T) {
	actions := []Action{
		AddRow{RowKey: "a", Row: map[string]any{"x": 1, "y": 2}},
		UpdateField{Path: "rows.a.x", Next: 5},
		RenameRow{OldKey: "a", NewKey: "b"},
		AddRow{RowKey: "c", Row: map[string]any{"x": 9}},
		RemoveRow{RowKey: "c"},
		ApplyPatches{Patches: []Patch{{Path: "rows.b.z", Value: true}}},
	}

	batched, loop, rec, _ := newTestEngine(t, nil)
	for _, a := range actions {
		batched.Dispatch(a)
	}
	loop.RunPending()

	stepped, loop2, rec2, _ := newTestEngine(t, nil)
	for _, a := range actions {
		stepped.Dispatch(a)
		loop2.RunPending()
	}

	assert.Equal(t, stepped.Rows().ToMap(), batched.Rows().ToMap())
	require.Len(t, rec.commits, 1)
	var all []diff.FieldDiff
	for _, c := range rec2.commits {
		all = append(all, c.Diffs...)
	}
	assert.Equal(t, all, rec.commits[0].Diffs)
}

func TestEngine_CloseDropsQueue(t *testing.T) {
	e, loop, rec, _ := newTestEngine(t, nil)
	e.Dispatch(UpdateField{Path: "rows.r.a", Next: 1})
	e.Close()
	loop.RunPending()

	assert.Empty(t, rec.commits)
	assert.ErrorIs(t, e.Dispatch(UpdateField{Path: "rows.r.a", Next: 1}), ErrDisposed)
}

func TestEngine_LabelAndFlushHook(t *testing.T) {
	var stats []FlushStats
	e, _, rec, _ := newTestEngine(t, nil, WithLabel("grid"), WithFlushHook(func(s FlushStats) { stats = append(stats, s) }))
	e.Dispatch(UpdateField{Path: "rows.r.a", Next: 1})
	e.Dispatch(UpdateField{Path: "bad", Next: 1})
	e.FlushNow()

	require.Len(t, rec.commits, 1)
	assert.Equal(t, "grid", rec.commits[0].Label)
	assert.Equal(t, []FlushStats{{Actions: 2, Diffs: 1, Dropped: 1}}, stats)
}

func TestEngine_ConcurrentDispatch(t *testing.T) {
	e, _, _, _ := newTestEngine(t, nil)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				e.Dispatch(UpdateField{Path: "rows.r.c" + string(rune('a'+i)), Next: j})
			}
		}()
	}
	wg.Wait()
	e.FlushNow()

	row, ok := e.Rows().Row("r")
	require.True(t, ok)
	assert.Equal(t, 8, row.Len())
	for _, col := range row.Columns() {
		v, _ := row.Get(col)
		assert.Equal(t, 49, v)
	}
}

func TestClock(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(11), c.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, UUIDv7Generator{}.Generate())
}
