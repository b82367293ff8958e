// Package selector memoizes per-cell accessors.
//
// Get returns the same *Selector for the same (rowKey, column) pair on
// every call, so subscription layers can compare accessors by pointer and
// skip resubscribing. The cache belongs to one store and is torn down with
// it.
package selector

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/gridkernel/internal/cell"
)

// Selector reads one cell from whatever snapshot it is given.
type Selector struct {
	rowKey atomic.Pointer[string]
	column string
}

func newSelector(rowKey, column string) *Selector {
	s := &Selector{column: column}
	s.rowKey.Store(&rowKey)
	return s
}

// RowKey returns the row the selector currently reads. It changes when the
// row is renamed.
func (s *Selector) RowKey() string { return *s.rowKey.Load() }

// Column returns the column the selector reads.
func (s *Selector) Column() string { return s.column }

// Read returns rows[rowKey][column] from snap.
func (s *Selector) Read(snap *cell.Snapshot) (any, bool) {
	if snap == nil {
		return nil, false
	}
	return snap.Get(s.RowKey(), s.column)
}

// Cache groups selectors by row for O(1) row-level drops and renames.
type Cache struct {
	mu    sync.Mutex
	byRow map[string]map[string]*Selector
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{byRow: make(map[string]map[string]*Selector)}
}

// Get returns the memoized selector for (rowKey, column), creating it on
// first request.
func (c *Cache) Get(rowKey, column string) *Selector {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.byRow[rowKey]
	if !ok {
		row = make(map[string]*Selector)
		c.byRow[rowKey] = row
	}
	if sel, ok := row[column]; ok {
		return sel
	}
	sel := newSelector(rowKey, column)
	row[column] = sel
	return sel
}

// DropRow forgets every selector of rowKey.
func (c *Cache) DropRow(rowKey string) {
	c.mu.Lock()
	delete(c.byRow, rowKey)
	c.mu.Unlock()
}

// RenameRow moves selectors from oldKey to newKey. Selectors already cached
// under newKey win on conflict; the losing oldKey selectors are discarded.
// Moved selectors read the new row from then on.
func (c *Cache) RenameRow(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	src, ok := c.byRow[oldKey]
	if !ok {
		return
	}
	delete(c.byRow, oldKey)
	dst, ok := c.byRow[newKey]
	if !ok {
		dst = make(map[string]*Selector, len(src))
		c.byRow[newKey] = dst
	}
	for col, sel := range src {
		if _, taken := dst[col]; taken {
			continue
		}
		sel.rowKey.Store(&newKey)
		dst[col] = sel
	}
}

// Clear drops every selector.
func (c *Cache) Clear() {
	c.mu.Lock()
	clear(c.byRow)
	c.mu.Unlock()
}

// Len returns the number of cached selectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, row := range c.byRow {
		n += len(row)
	}
	return n
}

// Has reports whether a selector is cached for the pair without creating one.
func (c *Cache) Has(rowKey, column string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byRow[rowKey][column]
	return ok
}
