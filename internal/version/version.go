// Package version keeps per-column change counters.
//
// Every accepted cell change bumps its column's total version and the row's
// counter within that column. UI layers poll Version(col) inside their own
// change detection, or use a Watcher, instead of diffing rows.
package version

import (
	"maps"
	"slices"
	"sync"
)

// ColumnVersion is a copy of one column's counters.
type ColumnVersion struct {
	// Version increases by one on every bump of the column.
	Version uint64 `json:"version"`

	// ByRow holds per-row counters. Only rows that were bumped appear.
	ByRow map[string]uint64 `json:"by_row"`
}

type entry struct {
	version uint64
	byRow   map[string]uint64
}

// Map tracks column versions. Writes come from the single kernel writer;
// reads are safe from any goroutine.
type Map struct {
	mu   sync.RWMutex
	cols map[string]*entry
}

// New creates an empty Map.
func New() *Map {
	return &Map{cols: make(map[string]*entry)}
}

func (m *Map) ensure(col string) *entry {
	e, ok := m.cols[col]
	if !ok {
		e = &entry{byRow: make(map[string]uint64)}
		m.cols[col] = e
	}
	return e
}

// EnsureColumn creates the column entry at version 0 if missing.
func (m *Map) EnsureColumn(col string) {
	m.mu.Lock()
	m.ensure(col)
	m.mu.Unlock()
}

// Bump increments the column version and the row's counter.
func (m *Map) Bump(col, rowKey string) {
	m.mu.Lock()
	e := m.ensure(col)
	e.version++
	e.byRow[rowKey]++
	m.mu.Unlock()
}

// BumpColumn increments only the column version. Used for whole-column
// changes such as a removed row's final bump.
func (m *Map) BumpColumn(col string) {
	m.mu.Lock()
	m.ensure(col).version++
	m.mu.Unlock()
}

// Version returns the column's total version, creating the column at 0.
func (m *Map) Version(col string) uint64 {
	m.mu.RLock()
	e, ok := m.cols[col]
	var v uint64
	if ok {
		v = e.version
	}
	m.mu.RUnlock()
	if ok {
		return v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensure(col).version
}

// RowVersion returns one row's counter within a column. Zero when untracked.
func (m *Map) RowVersion(col, rowKey string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.cols[col]; ok {
		return e.byRow[rowKey]
	}
	return 0
}

// Get returns a copy of the column's counters, creating the column on read.
func (m *Map) Get(col string) ColumnVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.ensure(col)
	return ColumnVersion{Version: e.version, ByRow: maps.Clone(e.byRow)}
}

// DropRow removes the row's counter from every column that tracks it.
func (m *Map) DropRow(rowKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.cols {
		delete(e.byRow, rowKey)
	}
}

// RenameRow moves counters from oldKey to newKey. When newKey already has a
// counter the higher one is kept.
func (m *Map) RenameRow(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.cols {
		incoming, ok := e.byRow[oldKey]
		if !ok {
			continue
		}
		if existing, had := e.byRow[newKey]; !had || incoming > existing {
			e.byRow[newKey] = incoming
		}
		delete(e.byRow, oldKey)
	}
}

// Columns returns tracked column names in sorted order.
func (m *Map) Columns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.cols))
}

// Snapshot returns a deep copy of every column.
func (m *Map) Snapshot() map[string]ColumnVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ColumnVersion, len(m.cols))
	for col, e := range m.cols {
		out[col] = ColumnVersion{Version: e.version, ByRow: maps.Clone(e.byRow)}
	}
	return out
}

// Reset drops all columns.
func (m *Map) Reset() {
	m.mu.Lock()
	clear(m.cols)
	m.mu.Unlock()
}
