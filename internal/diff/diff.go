// Package diff defines FieldDiff, the record of one cell-level change.
//
// Diffs are produced only as a side effect of the action gate or the kernel
// engine. They are never computed by comparing two snapshots.
package diff

import "fmt"

// Kind classifies a cell change.
type Kind string

const (
	// KindInsert: the cell had no value before. Next is set.
	KindInsert Kind = "insert"
	// KindUpdate: the cell changed value. Prev and Next are set.
	KindUpdate Kind = "update"
	// KindRemove: the cell lost its value. Prev is set.
	KindRemove Kind = "remove"
	// KindRename: the row moved. Prev is the old row key, Next the new one.
	KindRename Kind = "rename"
)

// Source tags where a mutation came from. Sync plugins use it to avoid
// echoing server patches back to the server.
type Source string

const (
	SourceLocal  Source = "local"
	SourceServer Source = "server"
)

// FieldDiff is an immutable description of one cell change.
type FieldDiff struct {
	Kind   Kind   `json:"kind"`
	Path   string `json:"path"`
	Prev   any    `json:"prev,omitempty"`
	Next   any    `json:"next,omitempty"`
	RowKey string `json:"row_key,omitempty"`
	Column string `json:"column,omitempty"`
	Source Source `json:"source"`
}

// CellPath formats the canonical "rows.<rowKey>.<column>" path.
func CellPath(rowKey, column string) string {
	return "rows." + rowKey + "." + column
}

// Insert builds an insert diff for a cell.
func Insert(rowKey, column string, next any, src Source) FieldDiff {
	return FieldDiff{Kind: KindInsert, Path: CellPath(rowKey, column), Next: next, RowKey: rowKey, Column: column, Source: src}
}

// Update builds an update diff for a cell.
func Update(rowKey, column string, prev, next any, src Source) FieldDiff {
	return FieldDiff{Kind: KindUpdate, Path: CellPath(rowKey, column), Prev: prev, Next: next, RowKey: rowKey, Column: column, Source: src}
}

// Remove builds a remove diff for a cell.
func Remove(rowKey, column string, prev any, src Source) FieldDiff {
	return FieldDiff{Kind: KindRemove, Path: CellPath(rowKey, column), Prev: prev, RowKey: rowKey, Column: column, Source: src}
}

// Rename builds a rename diff for one column of a moved row.
func Rename(oldKey, newKey, column string, src Source) FieldDiff {
	return FieldDiff{Kind: KindRename, Path: CellPath(newKey, column), Prev: oldKey, Next: newKey, RowKey: newKey, Column: column, Source: src}
}

// String implements fmt.Stringer for log output.
func (d FieldDiff) String() string {
	switch d.Kind {
	case KindInsert:
		return fmt.Sprintf("%s %s = %v (%s)", d.Kind, d.Path, d.Next, d.Source)
	case KindRemove:
		return fmt.Sprintf("%s %s (was %v, %s)", d.Kind, d.Path, d.Prev, d.Source)
	default:
		return fmt.Sprintf("%s %s %v -> %v (%s)", d.Kind, d.Path, d.Prev, d.Next, d.Source)
	}
}

// FilterSource returns the diffs whose source differs from src.
// Sync plugins call FilterSource(batch, SourceServer) to find outbound changes.
func FilterSource(batch []FieldDiff, src Source) []FieldDiff {
	var out []FieldDiff
	for _, d := range batch {
		if d.Source != src {
			out = append(out, d)
		}
	}
	return out
}

// CountKinds tallies a batch by kind.
func CountKinds(batch []FieldDiff) map[Kind]int {
	counts := make(map[Kind]int, 4)
	for _, d := range batch {
		counts[d.Kind]++
	}
	return counts
}
