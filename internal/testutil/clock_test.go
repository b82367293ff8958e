package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/kernel"
)

var (
	_ kernel.Sequencer   = (*Clock)(nil)
	_ kernel.IDGenerator = (*IDs)(nil)
)

func TestClock_StartAndReset(t *testing.T) {
	c := NewClock(10)
	assert.Equal(t, int64(10), c.Current())
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(12), c.Next())

	c.Reset()
	assert.Equal(t, int64(10), c.Current())
	assert.Equal(t, int64(11), c.Next())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock(0)
	const workers, calls = 50, 100

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*calls)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				v := c.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*calls)
	assert.Equal(t, int64(workers*calls), c.Current())
}

func TestIDs(t *testing.T) {
	g := NewIDs("")
	assert.Equal(t, "commit-0001", g.Generate())
	assert.Equal(t, "commit-0002", g.Generate())
	g.Reset()
	assert.Equal(t, "commit-0001", g.Generate())

	assert.Equal(t, "x-0001", NewIDs("x").Generate())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.OnCommit(kernel.Commit{Seq: 1})
	r.OnBatch([]diff.FieldDiff{diff.Insert("r", "a", 1, diff.SourceLocal)})
	r.OnBatch([]diff.FieldDiff{diff.Insert("r", "b", 2, diff.SourceLocal)})

	assert.Len(t, r.Commits(), 1)
	assert.Len(t, r.Batches(), 2)
	assert.Len(t, r.Diffs(), 2)

	r.Reset()
	assert.Empty(t, r.Commits())
	assert.Empty(t, r.Diffs())
}
