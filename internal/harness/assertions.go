package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/gate"
	"github.com/roach88/gridkernel/internal/table"
)

// AssertionError describes one failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func evaluate(st *table.Store, res *Result, a Assertion) error {
	switch a.Type {
	case AssertCell:
		return assertCell(st.Rows(), a)
	case AssertRow:
		return assertRow(st.Rows(), a)
	case AssertCommitCount:
		return assertCount(a.Type, a.Count, len(res.Commits))
	case AssertDiffCount:
		return assertCount(a.Type, a.Count, res.DiffCount())
	case AssertIndexColumns:
		return assertIndexColumns(res.Index, a)
	case AssertColumnVersion:
		return assertColumnVersion(res.Versions, a)
	case AssertConsistent:
		return assertConsistent(st, res.Index)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCell(rows *cell.Snapshot, a Assertion) error {
	got, ok := rows.Get(a.Row, a.Column)
	path := a.Row + "." + a.Column
	switch {
	case a.Absent && ok:
		return &AssertionError{Type: a.Type, Expected: path + " absent", Actual: fmt.Sprintf("%v", got)}
	case a.Absent:
		return nil
	case !ok:
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s = %v", path, a.Value), Actual: "absent"}
	case !cell.Equal(got, a.Value):
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %v (%T)", path, a.Value, a.Value),
			Actual:   fmt.Sprintf("%v (%T)", got, got),
		}
	}
	return nil
}

func assertRow(rows *cell.Snapshot, a Assertion) error {
	has := rows.Has(a.Row)
	if has == !a.Absent {
		return nil
	}
	want, got := "present", "absent"
	if a.Absent {
		want, got = "absent", "present"
	}
	return &AssertionError{Type: a.Type, Expected: "row " + a.Row + " " + want, Actual: got}
}

func assertCount(typ string, want, got int) error {
	if want == got {
		return nil
	}
	return &AssertionError{Type: typ, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
}

func assertIndexColumns(idx map[string]map[string]any, a Assertion) error {
	got := make([]string, 0, len(idx))
	for col := range idx {
		got = append(got, col)
	}
	slices.Sort(got)
	want := slices.Sorted(slices.Values(a.Columns))
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: "[" + strings.Join(want, ", ") + "]",
		Actual:   "[" + strings.Join(got, ", ") + "]",
	}
}

func assertColumnVersion(versions map[string]uint64, a Assertion) error {
	got := versions[a.Column]
	if got == a.Version {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s at %d", a.Column, a.Version),
		Actual:   fmt.Sprint(got),
	}
}

type indexContents map[string]map[string]any

func (c indexContents) Snapshot() map[string]map[string]any { return c }

// assertConsistent compares the final index with one rebuilt from the
// committed rows. Whitelisted and capped indexes are compared on the
// columns they may hold.
func assertConsistent(st *table.Store, idx map[string]map[string]any) error {
	cfg := st.Config()
	opts := gate.AssertOptions{
		LiveColumnsOnly: cfg.Index.MaxColumns > 0 && len(idx) >= cfg.Index.MaxColumns,
	}
	if opts.LiveColumnsOnly {
		opts.Partial = st.PartialColumn
	}
	if len(cfg.Index.Whitelist) > 0 {
		allowed := cfg.Index.Whitelist
		opts.Allowed = func(col string) bool { return slices.Contains(allowed, col) }
	}
	return gate.AssertIndexes(st.Rows(), indexContents(idx), opts)
}
