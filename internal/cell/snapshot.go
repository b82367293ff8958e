package cell

import (
	"reflect"
	"slices"
)

// Row is a read-only view of one record: column key -> value.
//
// Rows are shared by reference between snapshots. A Row obtained from a
// Snapshot is never written again; writers go through a Builder, which
// copies a row at most once per transaction.
type Row struct {
	m map[string]any
}

// NewRow copies values into a new Row. Nil values are dropped because a nil
// cell means "absent".
func NewRow(values map[string]any) Row {
	m := make(map[string]any, len(values))
	for col, v := range values {
		if v == nil {
			continue
		}
		m[col] = v
	}
	return Row{m: m}
}

// Get returns the value stored under col.
func (r Row) Get(col string) (any, bool) {
	v, ok := r.m[col]
	return v, ok
}

// Len returns the number of columns holding a value.
func (r Row) Len() int {
	return len(r.m)
}

// Columns returns the row's column keys in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r.m))
	for col := range r.m {
		cols = append(cols, col)
	}
	slices.Sort(cols)
	return cols
}

// Range calls fn for every column in sorted order until fn returns false.
func (r Row) Range(fn func(col string, v any) bool) {
	for _, col := range r.Columns() {
		if !fn(col, r.m[col]) {
			return
		}
	}
}

// ToMap returns a caller-owned copy of the row.
func (r Row) ToMap() map[string]any {
	out := make(map[string]any, len(r.m))
	for col, v := range r.m {
		out[col] = v
	}
	return out
}

// Same reports whether r and o share the same backing storage.
// Used to verify structural sharing between snapshots.
func (r Row) Same(o Row) bool {
	if r.m == nil || o.m == nil {
		return r.m == nil && o.m == nil
	}
	return reflect.ValueOf(r.m).UnsafePointer() == reflect.ValueOf(o.m).UnsafePointer()
}

// Snapshot is an immutable mapping rowKey -> Row.
//
// A Snapshot is never mutated after construction. Every logical change
// produces a new Snapshot that shares untouched rows with its predecessor.
// Snapshot identity (pointer equality) therefore doubles as a cheap
// "did anything change" check.
type Snapshot struct {
	rows map[string]Row
}

var empty = &Snapshot{rows: map[string]Row{}}

// Empty returns the shared empty snapshot.
func Empty() *Snapshot {
	return empty
}

// NewSnapshot builds a snapshot from plain maps, copying every row.
func NewSnapshot(rows map[string]map[string]any) *Snapshot {
	if len(rows) == 0 {
		return empty
	}
	out := make(map[string]Row, len(rows))
	for key, row := range rows {
		out[key] = NewRow(row)
	}
	return &Snapshot{rows: out}
}

// Row returns the row stored under key.
func (s *Snapshot) Row(key string) (Row, bool) {
	r, ok := s.rows[key]
	return r, ok
}

// Has reports whether key names a row.
func (s *Snapshot) Has(key string) bool {
	_, ok := s.rows[key]
	return ok
}

// Get returns rows[rowKey][col].
func (s *Snapshot) Get(rowKey, col string) (any, bool) {
	r, ok := s.rows[rowKey]
	if !ok {
		return nil, false
	}
	return r.Get(col)
}

// Len returns the number of rows.
func (s *Snapshot) Len() int {
	return len(s.rows)
}

// Keys returns all row keys in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.rows))
	for k := range s.rows {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Range calls fn for every row in sorted key order until fn returns false.
func (s *Snapshot) Range(fn func(key string, row Row) bool) {
	for _, k := range s.Keys() {
		if !fn(k, s.rows[k]) {
			return
		}
	}
}

// ToMap returns a caller-owned deep copy of the snapshot.
func (s *Snapshot) ToMap() map[string]map[string]any {
	out := make(map[string]map[string]any, len(s.rows))
	for k, r := range s.rows {
		out[k] = r.ToMap()
	}
	return out
}

// Equal reports whether two cell values are identical.
//
// Comparable scalars use ==. Maps, slices, structs, arrays and funcs use
// reflect.DeepEqual so that equality never panics on uncomparable values.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	switch ta.Kind() {
	case reflect.Map, reflect.Slice, reflect.Struct, reflect.Array, reflect.Func, reflect.Interface:
		return reflect.DeepEqual(a, b)
	default:
		return a == b
	}
}
