package index

import (
	"maps"
	"slices"
)

// Column is a live, read-only view of one indexed column.
//
// The view reflects writes made after it was obtained. An evicted column's
// view keeps the values it held at eviction time. Reads take the store's
// read lock, so a view may be used from any goroutine.
type Column struct {
	s *Store
	c *column
}

var emptyView = &Column{}

// Empty reports whether this is the shared empty view.
func (v *Column) Empty() bool {
	return v.c == nil
}

// Get returns the value indexed for rowKey.
func (v *Column) Get(rowKey string) (any, bool) {
	if v.c == nil {
		return nil, false
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	val, ok := v.c.byRow[rowKey]
	return val, ok
}

// Len returns the number of rows holding a value in this column.
func (v *Column) Len() int {
	if v.c == nil {
		return 0
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return len(v.c.byRow)
}

// Keys returns the indexed row keys in sorted order.
func (v *Column) Keys() []string {
	if v.c == nil {
		return nil
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return slices.Sorted(maps.Keys(v.c.byRow))
}

// ByRow returns a copy of rowKey -> value.
func (v *Column) ByRow() map[string]any {
	if v.c == nil {
		return map[string]any{}
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return maps.Clone(v.c.byRow)
}
