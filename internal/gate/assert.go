package gate

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/index"
)

// ProblemKind classifies one index inconsistency.
type ProblemKind string

const (
	ProblemMissing  ProblemKind = "missing"
	ProblemExtra    ProblemKind = "extra"
	ProblemMismatch ProblemKind = "mismatch"
)

// Problem is one cell where the index disagrees with the rows.
type Problem struct {
	Kind     ProblemKind
	Column   string
	RowKey   string
	Actual   any
	Expected any
}

func (p Problem) String() string {
	switch p.Kind {
	case ProblemMissing:
		return fmt.Sprintf("index missing row %q in column %q", p.RowKey, p.Column)
	case ProblemExtra:
		return fmt.Sprintf("index extra row %q in column %q", p.RowKey, p.Column)
	default:
		return fmt.Sprintf("index value mismatch at %s.%s: actual=%v expected=%v", p.Column, p.RowKey, p.Actual, p.Expected)
	}
}

// ConsistencyError lists every problem found by AssertIndexes.
type ConsistencyError struct {
	Problems []Problem
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = p.String()
	}
	return "index consistency check failed:\n- " + strings.Join(lines, "\n- ")
}

// AssertOptions narrows what AssertIndexes expects the index to hold.
type AssertOptions struct {
	// Allowed filters the columns the index is expected to hold. Nil allows
	// every column.
	Allowed func(col string) bool

	// LiveColumnsOnly skips columns the index does not currently hold. Set
	// it for indexes that have evicted columns.
	LiveColumnsOnly bool

	// Partial reports columns that may legitimately lack rows, such as a
	// column re-created after an eviction. Only the rows such a column
	// holds are checked, for extra and mismatched values.
	Partial func(col string) bool
}

// AssertIndexes rebuilds a shadow index from rows and compares it with the
// live index cell by cell. Returns a *ConsistencyError listing missing,
// extra and mismatched entries, in column then row order.
func AssertIndexes(rows *cell.Snapshot, idx index.Snapshotter, opts AssertOptions) error {
	shadow := make(map[string]map[string]any)
	rows.Range(func(rowKey string, row cell.Row) bool {
		row.Range(func(col string, v any) bool {
			if opts.Allowed != nil && !opts.Allowed(col) {
				return true
			}
			byRow, ok := shadow[col]
			if !ok {
				byRow = make(map[string]any)
				shadow[col] = byRow
			}
			byRow[rowKey] = v
			return true
		})
		return true
	})

	actual := idx.Snapshot()
	cols := make(map[string]struct{}, len(shadow)+len(actual))
	for col := range actual {
		cols[col] = struct{}{}
	}
	for col := range shadow {
		if _, live := actual[col]; live || !opts.LiveColumnsOnly {
			cols[col] = struct{}{}
		}
	}

	var problems []Problem
	for _, col := range slices.Sorted(maps.Keys(cols)) {
		a, b := actual[col], shadow[col]
		_, live := actual[col]
		partial := live && opts.Partial != nil && opts.Partial(col)
		keys := make(map[string]struct{}, len(a)+len(b))
		for k := range a {
			keys[k] = struct{}{}
		}
		if !partial {
			for k := range b {
				keys[k] = struct{}{}
			}
		}
		for _, k := range slices.Sorted(maps.Keys(keys)) {
			av, inA := a[k]
			bv, inB := b[k]
			switch {
			case !inA:
				problems = append(problems, Problem{Kind: ProblemMissing, Column: col, RowKey: k, Expected: bv})
			case !inB:
				problems = append(problems, Problem{Kind: ProblemExtra, Column: col, RowKey: k, Actual: av})
			case !cell.Equal(av, bv):
				problems = append(problems, Problem{Kind: ProblemMismatch, Column: col, RowKey: k, Actual: av, Expected: bv})
			}
		}
	}
	if len(problems) > 0 {
		return &ConsistencyError{Problems: problems}
	}
	return nil
}
