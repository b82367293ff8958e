package kernel

import (
	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/fieldpath"
	"github.com/roach88/gridkernel/internal/index"
	"github.com/roach88/gridkernel/internal/selector"
	"github.com/roach88/gridkernel/internal/version"
)

// Deps are the derived structures a Txn keeps in step with the rows. Any
// of them may be nil.
type Deps struct {
	Index     index.Writer
	Versions  *version.Map
	Selectors *selector.Cache
}

func (d Deps) setCell(col, rowKey string, v any) {
	if d.Index != nil {
		d.Index.SetCell(col, rowKey, v)
	}
	if d.Versions != nil {
		d.Versions.Bump(col, rowKey)
	}
}

// Replay applies the index and version effects of cell diffs (insert,
// update, remove) computed by a Txn that ran without Deps. Rename diffs are
// ignored; row moves are never replayed.
func (d Deps) Replay(diffs []diff.FieldDiff) {
	for _, fd := range diffs {
		switch fd.Kind {
		case diff.KindInsert, diff.KindUpdate:
			d.setCell(fd.Column, fd.RowKey, fd.Next)
		case diff.KindRemove:
			d.setCell(fd.Column, fd.RowKey, nil)
		}
	}
}

// Txn is a copy-on-write transaction over a row snapshot.
//
// The top-level row map is cloned once per Txn and each touched row at most
// once, however many actions run. Index, version and selector updates
// happen as each logical change is applied. A Txn is not safe for
// concurrent use.
type Txn struct {
	b       *cell.Builder
	deps    Deps
	diffs   []diff.FieldDiff
	dropped []string
	actions int
}

// NewTxn starts a transaction on base.
func NewTxn(base *cell.Snapshot, deps Deps) *Txn {
	return &Txn{b: cell.NewBuilder(base), deps: deps}
}

// Apply runs one action.
func (t *Txn) Apply(a Action) {
	t.actions++
	a.apply(t)
}

// Actions returns the number of actions applied through Apply.
func (t *Txn) Actions() int { return t.actions }

// Diffs returns the diffs produced so far, in application order.
func (t *Txn) Diffs() []diff.FieldDiff { return t.diffs }

// Dropped returns the paths rejected as malformed.
func (t *Txn) Dropped() []string { return t.dropped }

// Changed reports whether the working rows differ from the base.
func (t *Txn) Changed() bool { return t.b.Changed() }

// Snapshot freezes the working rows.
func (t *Txn) Snapshot() *cell.Snapshot { return t.b.Snapshot() }

// Get reads the working value of one cell.
func (t *Txn) Get(rowKey, col string) (any, bool) { return t.b.Get(rowKey, col) }

// UpdateField writes the cell addressed by path. Malformed paths are
// recorded in Dropped and otherwise ignored. Returns whether a diff was
// produced.
func (t *Txn) UpdateField(path string, next any, src diff.Source) bool {
	rowKey, col, ok := fieldpath.SplitRowPath(path)
	if !ok {
		t.dropped = append(t.dropped, path)
		return false
	}
	return t.SetCell(rowKey, col, next, src)
}

// SetCell writes one cell. Writing an equal value is a no-op; writing nil
// removes the cell. A missing row is created.
func (t *Txn) SetCell(rowKey, col string, next any, src diff.Source) bool {
	prev, had := t.b.Get(rowKey, col)
	if !had && next == nil {
		return false
	}
	if had && cell.Equal(prev, next) {
		return false
	}
	t.b.Set(rowKey, col, next)
	t.deps.setCell(col, rowKey, next)

	switch {
	case !had:
		t.diffs = append(t.diffs, diff.Insert(rowKey, col, next, src))
	case next == nil:
		t.diffs = append(t.diffs, diff.Remove(rowKey, col, prev, src))
	default:
		t.diffs = append(t.diffs, diff.Update(rowKey, col, prev, next, src))
	}
	return true
}

// ApplyPatches writes every patch in order. Invalid paths are skipped
// individually. Returns the number of diffs produced.
func (t *Txn) ApplyPatches(patches []Patch, src diff.Source) int {
	n := 0
	for _, p := range patches {
		if t.UpdateField(p.Path, p.Value, src) {
			n++
		}
	}
	return n
}

func validKey(key string) bool {
	return key != "" && !fieldpath.IsUnsafe(key)
}

// AddRow inserts a row unless the key is taken. Nil values and reserved or
// empty column names are skipped. One insert diff is produced per column,
// in column order.
func (t *Txn) AddRow(rowKey string, values map[string]any, src diff.Source) bool {
	if !validKey(rowKey) {
		t.dropped = append(t.dropped, fieldpath.RowPrefix+rowKey)
		return false
	}
	if t.b.Has(rowKey) {
		return false
	}
	clean := make(map[string]any, len(values))
	for col, v := range values {
		if !validKey(col) {
			t.dropped = append(t.dropped, diff.CellPath(rowKey, col))
			continue
		}
		clean[col] = v
	}
	row := t.b.PutRow(rowKey, clean)
	row.Range(func(col string, v any) bool {
		t.deps.setCell(col, rowKey, v)
		t.diffs = append(t.diffs, diff.Insert(rowKey, col, v, src))
		return true
	})
	return true
}

// RemoveRow deletes a row and every derived entry for it, producing one
// remove diff per column that held a value.
func (t *Txn) RemoveRow(rowKey string, src diff.Source) bool {
	row, ok := t.b.Row(rowKey)
	if !ok {
		return false
	}
	t.b.DeleteRow(rowKey)
	if t.deps.Selectors != nil {
		t.deps.Selectors.DropRow(rowKey)
	}
	if t.deps.Index != nil {
		t.deps.Index.RemoveRow(rowKey)
	}
	if t.deps.Versions != nil {
		t.deps.Versions.DropRow(rowKey)
	}
	row.Range(func(col string, v any) bool {
		if t.deps.Versions != nil {
			t.deps.Versions.BumpColumn(col)
		}
		t.diffs = append(t.diffs, diff.Remove(rowKey, col, v, src))
		return true
	})
	return true
}

// RenameRow moves a row. It is a no-op when the keys are equal, oldKey is
// absent or newKey already exists. Produces one rename diff per column.
func (t *Txn) RenameRow(oldKey, newKey string, src diff.Source) bool {
	if oldKey == newKey || !t.b.Has(oldKey) || t.b.Has(newKey) {
		return false
	}
	if !validKey(newKey) {
		t.dropped = append(t.dropped, fieldpath.RowPrefix+newKey)
		return false
	}
	row, _ := t.b.Row(oldKey)
	t.b.RenameRow(oldKey, newKey)
	if t.deps.Selectors != nil {
		t.deps.Selectors.RenameRow(oldKey, newKey)
	}
	if t.deps.Index != nil {
		t.deps.Index.RenameRow(oldKey, newKey)
	}
	if t.deps.Versions != nil {
		t.deps.Versions.RenameRow(oldKey, newKey)
	}
	for _, col := range row.Columns() {
		if t.deps.Versions != nil {
			t.deps.Versions.Bump(col, newKey)
		}
		t.diffs = append(t.diffs, diff.Rename(oldKey, newKey, col, src))
	}
	return true
}

// Plan is the outcome of PlanPatches.
type Plan struct {
	Diffs   []diff.FieldDiff
	Rows    *cell.Snapshot
	Dropped []string
}

// PlanPatches computes the diffs and resulting rows of patches against
// rows without touching any derived structure. Apply the plan's side
// effects with Deps.Replay.
func PlanPatches(rows *cell.Snapshot, patches []Patch, src diff.Source) Plan {
	t := NewTxn(rows, Deps{})
	t.ApplyPatches(patches, src)
	return Plan{Diffs: t.Diffs(), Rows: t.Snapshot(), Dropped: t.Dropped()}
}
