package gate

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/diffbus"
	"github.com/roach88/gridkernel/internal/index"
	"github.com/roach88/gridkernel/internal/kernel"
	"github.com/roach88/gridkernel/internal/sched"
	"github.com/roach88/gridkernel/internal/selector"
	"github.com/roach88/gridkernel/internal/version"
)

type harness struct {
	loop    *sched.Loop
	bus     *diffbus.Bus
	idx     *index.Store
	vers    *version.Map
	sels    *selector.Cache
	batches [][]diff.FieldDiff
	commits []kernel.Commit
}

func newHarness() *harness {
	h := &harness{
		loop: sched.NewLoop(),
		idx:  index.New(),
		vers: version.New(),
		sels: selector.New(),
	}
	h.bus = diffbus.New(h.loop, sched.Deferred)
	h.bus.Subscribe(func(b []diff.FieldDiff) { h.batches = append(h.batches, b) })
	return h
}

func (h *harness) deps() kernel.Deps {
	return kernel.Deps{Index: h.idx, Versions: h.vers, Selectors: h.sels}
}

func (h *harness) direct(initial map[string]map[string]any) *Direct {
	snap := cell.NewSnapshot(initial)
	h.idx.RebuildFromRows(snap)
	return NewDirect(snap,
		WithDeps(h.deps()),
		WithPublisher(h.bus),
		WithCommitHook(func(c kernel.Commit) { h.commits = append(h.commits, c) }),
		WithIDGenerator(kernel.NewSequenceGenerator("g")),
	)
}

func (h *harness) kernel(initial map[string]map[string]any) *Kernel {
	snap := cell.NewSnapshot(initial)
	h.idx.RebuildFromRows(snap)
	e := kernel.NewEngine(h.loop, snap, func(c kernel.Commit) {
		h.commits = append(h.commits, c)
		h.bus.Publish(c.Diffs...)
	}, kernel.WithDeps(h.deps()))
	return NewKernel(e)
}

func (h *harness) allDiffs() []diff.FieldDiff {
	var out []diff.FieldDiff
	for _, b := range h.batches {
		out = append(out, b...)
	}
	return out
}

func TestDirect_AddRowScenario(t *testing.T) {
	h := newHarness()
	g := h.direct(nil)

	g.AddRow("r1", map[string]any{"a": 1, "b": 2})
	h.loop.RunPending()

	require.Len(t, h.batches, 1)
	require.Len(t, h.batches[0], 2)
	for _, d := range h.batches[0] {
		assert.Equal(t, diff.KindInsert, d.Kind)
	}
	assert.Equal(t, map[string]any{"r1": 1}, h.idx.Column("a").ByRow())
}

func TestDirect_UpdateFieldTwiceOneDiff(t *testing.T) {
	h := newHarness()
	g := h.direct(nil)

	g.UpdateField("rows.r1.a", 1)
	g.UpdateField("rows.r1.a", 1)
	h.loop.RunPending()

	diffs := h.allDiffs()
	require.Len(t, diffs, 1)
	assert.Equal(t, diff.KindInsert, diffs[0].Kind)
	assert.Equal(t, diff.SourceLocal, diffs[0].Source)
	assert.Len(t, h.commits, 1)
	assert.Equal(t, "gate/update-field", h.commits[0].Label)
}

func TestDirect_UpdateFieldVisibleImmediately(t *testing.T) {
	h := newHarness()
	g := h.direct(nil)
	g.UpdateField("rows.r1.a", 1)

	v, ok := g.Rows().Get("r1", "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, uint64(1), h.vers.Version("a"))
}

func TestDirect_ConcurrentCommitsPublishInSeqOrder(t *testing.T) {
	const writers = 32
	var commits []kernel.Commit
	g := NewDirect(nil,
		WithCommitHook(func(c kernel.Commit) { commits = append(commits, c) }),
		WithIDGenerator(kernel.NewSequenceGenerator("g")),
	)

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.UpdateField(fmt.Sprintf("rows.r.c%02d", i), i)
		}()
	}
	wg.Wait()

	require.Len(t, commits, writers)
	for i, c := range commits {
		assert.Equal(t, int64(i+1), c.Seq)
		row, ok := c.Rows.Row("r")
		require.True(t, ok)
		assert.Equal(t, i+1, row.Len(), "commit %d carries the rows it produced", c.Seq)
	}
}

func TestDirect_WriteFromCommitListener(t *testing.T) {
	var g *Direct
	var labels []string
	var seqs []int64
	g = NewDirect(nil, WithCommitHook(func(c kernel.Commit) {
		labels = append(labels, c.Label)
		seqs = append(seqs, c.Seq)
		if c.Label == "gate/add-row" {
			g.UpdateField("rows.r1.echo", true)
		}
	}))

	g.AddRow("r1", map[string]any{"a": 1})

	assert.Equal(t, []string{"gate/add-row", "gate/update-field"}, labels)
	assert.Equal(t, []int64{1, 2}, seqs)
	v, _ := g.Rows().Get("r1", "echo")
	assert.Equal(t, true, v)
}

func TestDirect_PathSafety(t *testing.T) {
	h := newHarness()
	g := h.direct(nil)
	before := g.Rows()

	g.UpdateField("rows.__proto__.x", 1)
	g.UpdateField("rows.r.", 1)
	g.UpdateField("rows.r.constructor", 1)
	h.loop.RunPending()

	assert.Same(t, before, g.Rows())
	assert.Empty(t, h.batches)
	assert.Empty(t, h.vers.Columns())
}

func TestDirect_ApplyPatches(t *testing.T) {
	h := newHarness()
	g := h.direct(map[string]map[string]any{"r1": {"a": 1}})

	g.ApplyPatches(map[string]any{
		"rows.r1.a":  1,
		"rows.r1.b":  2,
		"rows.r2.a":  3,
		"rows..oops": 4,
	})
	h.loop.RunPending()

	diffs := h.allDiffs()
	require.Len(t, diffs, 2)
	assert.Equal(t, "rows.r1.b", diffs[0].Path)
	assert.Equal(t, "rows.r2.a", diffs[1].Path)
	assert.Equal(t, diff.SourceServer, diffs[0].Source)
	assert.Equal(t, map[string]any{"r1": 1, "r2": 3}, h.idx.Column("a").ByRow())
	assert.Equal(t, uint64(1), h.vers.RowVersion("b", "r1"))
}

func TestDirect_ApplyPatchesExplicitSource(t *testing.T) {
	h := newHarness()
	g := h.direct(nil)
	g.ApplyPatches(map[string]any{"rows.r.a": 1}, diff.SourceLocal)
	h.loop.RunPending()
	assert.Equal(t, diff.SourceLocal, h.allDiffs()[0].Source)
}

func TestDirect_ApplyPatchesSkipsAlreadyApplied(t *testing.T) {
	h := newHarness()
	g := h.direct(map[string]map[string]any{"r": {"a": 1}})

	g.UpdateField("rows.r.a", 2)
	g.ApplyPatches(map[string]any{"rows.r.a": 2, "rows.r.b": 3})
	h.loop.RunPending()

	diffs := h.allDiffs()
	require.Len(t, diffs, 2)
	assert.Equal(t, diff.SourceLocal, diffs[0].Source)
	assert.Equal(t, "rows.r.b", diffs[1].Path, "already-applied patch produced no diff")
}

func TestDirect_RemoveRow(t *testing.T) {
	h := newHarness()
	g := h.direct(map[string]map[string]any{"r1": {"a": 1, "b": 2}})
	h.sels.Get("r1", "a")

	g.RemoveRow("r1")
	g.RemoveRow("r1")
	h.loop.RunPending()

	diffs := h.allDiffs()
	require.Len(t, diffs, 2)
	assert.Equal(t, diff.KindRemove, diffs[0].Kind)
	assert.False(t, g.Rows().Has("r1"))
	assert.Nil(t, h.idx.RowColumns("r1"))
	assert.False(t, h.sels.Has("r1", "a"))
}

func TestDirect_RenameSafety(t *testing.T) {
	h := newHarness()
	g := h.direct(map[string]map[string]any{"a": {"x": 1}, "b": {"x": 2}})
	before := g.Rows()

	g.RenameRow("a", "b")
	assert.Same(t, before, g.Rows())
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, h.idx.Column("x").ByRow())

	sel := h.sels.Get("a", "x")
	h.vers.Bump("x", "a")
	g.RenameRow("a", "c")
	h.loop.RunPending()

	assert.False(t, g.Rows().Has("a"))
	assert.True(t, g.Rows().Has("c"))
	assert.Equal(t, map[string]any{"b": 2, "c": 1}, h.idx.Column("x").ByRow())
	assert.Equal(t, uint64(0), h.vers.RowVersion("x", "a"))
	assert.Equal(t, uint64(2), h.vers.RowVersion("x", "c"))
	assert.False(t, h.sels.Has("a", "x"))
	assert.Same(t, sel, h.sels.Get("c", "x"))

	diffs := h.allDiffs()
	require.Len(t, diffs, 1)
	assert.Equal(t, diff.FieldDiff{
		Kind: diff.KindRename, Path: "rows.c.x", Prev: "a", Next: "c",
		RowKey: "c", Column: "x", Source: diff.SourceLocal,
	}, diffs[0])
}

func TestKernel_BatchesIntoOneCommit(t *testing.T) {
	h := newHarness()
	g := h.kernel(nil)

	g.AddRow("r1", map[string]any{"a": 1})
	g.UpdateField("rows.r1.a", 2)
	g.ApplyPatches(map[string]any{"rows.r1.b": 3})
	assert.Equal(t, 0, g.Rows().Len())

	h.loop.RunPending()

	require.Len(t, h.commits, 1)
	assert.Equal(t, 3, h.commits[0].ActionCount)
	require.Len(t, h.batches, 1)
	assert.Len(t, h.batches[0], 3)
	assert.Equal(t, map[string]map[string]any{"r1": {"a": 2, "b": 3}}, g.Rows().ToMap())
}

func TestKernel_FlushNowAndDisposed(t *testing.T) {
	h := newHarness()
	g := h.kernel(nil)
	g.UpdateField("rows.r.a", 1)
	g.FlushNow()
	v, _ := g.Rows().Get("r", "a")
	assert.Equal(t, 1, v)

	g.Engine().Close()
	g.UpdateField("rows.r.a", 2)
	g.FlushNow()
	v, _ = g.Rows().Get("r", "a")
	assert.Equal(t, 1, v)
}
