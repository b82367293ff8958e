package testutil

import (
	"sync"

	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/kernel"
)

// Recorder captures commits and diff batches. Pass OnCommit and OnBatch as
// listeners.
type Recorder struct {
	mu      sync.Mutex
	commits []kernel.Commit
	batches [][]diff.FieldDiff
}

// OnCommit records a commit.
func (r *Recorder) OnCommit(c kernel.Commit) {
	r.mu.Lock()
	r.commits = append(r.commits, c)
	r.mu.Unlock()
}

// OnBatch records a diff batch.
func (r *Recorder) OnBatch(b []diff.FieldDiff) {
	r.mu.Lock()
	r.batches = append(r.batches, b)
	r.mu.Unlock()
}

// Commits returns the recorded commits in delivery order.
func (r *Recorder) Commits() []kernel.Commit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kernel.Commit(nil), r.commits...)
}

// Batches returns the recorded diff batches in delivery order.
func (r *Recorder) Batches() [][]diff.FieldDiff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]diff.FieldDiff(nil), r.batches...)
}

// Diffs flattens every recorded batch.
func (r *Recorder) Diffs() []diff.FieldDiff {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []diff.FieldDiff
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.commits = nil
	r.batches = nil
	r.mu.Unlock()
}
