package index

import (
	"container/list"
	"maps"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/roach88/gridkernel/internal/cell"
)

// DefaultMaxColumns bounds the number of indexed columns when no option is
// given.
const DefaultMaxColumns = 1000

// Writer is the mutation surface shared by the local store and the worker
// offload proxy.
type Writer interface {
	SetCell(col, rowKey string, v any)
	RemoveRow(rowKey string)
	RenameRow(oldKey, newKey string)
	RebuildFromRows(rows *cell.Snapshot)
	Reset()
}

// Snapshotter returns a deep copy of the index: column -> rowKey -> value.
type Snapshotter interface {
	Snapshot() map[string]map[string]any
}

// Index is a Writer that can also be inspected.
type Index interface {
	Writer
	Snapshotter
}

// Store is the in-process column index.
//
// All methods are safe for concurrent use. The kernel is the only writer;
// readers on other goroutines go through Column views or Snapshot.
type Store struct {
	mu sync.RWMutex

	whitelist  map[string]struct{}
	eager      bool
	maxColumns int
	onEvict    func(col string)

	// lru holds *column values, least recently used at the front.
	lru  *list.List
	cols map[string]*list.Element

	// Column names are interned so the reverse map can use bitmaps. Ids of
	// evicted columns go to free and are handed out again.
	ids   map[string]uint32
	names []string
	free  []uint32
	rows  map[string]*roaring.Bitmap

	// lossy is set by the first eviction since the last reset. Columns
	// created while it is set may lack rows written before they existed.
	lossy bool
}

type column struct {
	name    string
	id      uint32
	byRow   map[string]any
	view    *Column
	partial bool
}

// Option configures a Store.
type Option func(*Store)

// WithWhitelist restricts indexing to the named columns.
func WithWhitelist(cols ...string) Option {
	return func(s *Store) {
		s.whitelist = make(map[string]struct{}, len(cols))
		for _, c := range cols {
			s.whitelist[c] = struct{}{}
		}
	}
}

// WithEager makes Column create missing entries on read. By default reads
// of an unknown column return the empty view without creating anything.
func WithEager() Option {
	return func(s *Store) {
		s.eager = true
	}
}

// WithMaxColumns sets the LRU bound. Values <= 0 keep a single column.
func WithMaxColumns(n int) Option {
	return func(s *Store) {
		s.maxColumns = max(n, 1)
	}
}

// WithEvictHook registers a callback run for every evicted column. It runs
// with the store locked and must not call back into the store.
func WithEvictHook(fn func(col string)) Option {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		maxColumns: DefaultMaxColumns,
		lru:        list.New(),
		cols:       make(map[string]*list.Element),
		ids:        make(map[string]uint32),
		rows:       make(map[string]*roaring.Bitmap),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxColumns returns the effective LRU bound.
func (s *Store) MaxColumns() int {
	return s.maxColumns
}

// Allowed reports whether col passes the whitelist.
func (s *Store) Allowed(col string) bool {
	if s.whitelist == nil {
		return true
	}
	_, ok := s.whitelist[col]
	return ok
}

func (s *Store) intern(col string) uint32 {
	if id, ok := s.ids[col]; ok {
		return id
	}
	if n := len(s.free); n > 0 {
		id := s.free[n-1]
		s.free = s.free[:n-1]
		s.ids[col] = id
		s.names[id] = col
		return id
	}
	id := uint32(len(s.names))
	s.ids[col] = id
	s.names = append(s.names, col)
	return id
}

// release returns an evicted column's id to the free list. No row links to
// it any more. Must hold s.mu.
func (s *Store) release(c *column) {
	delete(s.ids, c.name)
	s.names[c.id] = ""
	s.free = append(s.free, c.id)
}

// ensure returns the entry for col, marking it most recently used. A
// missing entry is created only when create is set. Must hold s.mu.
func (s *Store) ensure(col string, create bool) *column {
	if !s.Allowed(col) {
		return nil
	}
	if el, ok := s.cols[col]; ok {
		s.lru.MoveToBack(el)
		return el.Value.(*column)
	}
	if !create {
		return nil
	}
	c := &column{name: col, id: s.intern(col), byRow: make(map[string]any), partial: s.lossy}
	c.view = &Column{s: s, c: c}
	s.cols[col] = s.lru.PushBack(c)
	s.prune()
	return c
}

// prune evicts least recently used columns until the bound holds. Must
// hold s.mu.
func (s *Store) prune() {
	for s.lru.Len() > s.maxColumns {
		el := s.lru.Front()
		c := el.Value.(*column)
		for rowKey := range c.byRow {
			s.unlink(rowKey, c.id)
		}
		s.lru.Remove(el)
		delete(s.cols, c.name)
		s.release(c)
		s.lossy = true
		if s.onEvict != nil {
			s.onEvict(c.name)
		}
	}
}

func (s *Store) link(rowKey string, id uint32) {
	bm, ok := s.rows[rowKey]
	if !ok {
		bm = roaring.New()
		s.rows[rowKey] = bm
	}
	bm.Add(id)
}

func (s *Store) unlink(rowKey string, id uint32) {
	bm, ok := s.rows[rowKey]
	if !ok {
		return
	}
	bm.Remove(id)
	if bm.IsEmpty() {
		delete(s.rows, rowKey)
	}
}

// Column returns the live view of col and marks it most recently used.
// Disallowed or (in lazy mode) unknown columns yield the shared empty view.
func (s *Store) Column(col string) *Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.ensure(col, s.eager); c != nil {
		return c.view
	}
	return emptyView
}

// SetCell writes one cell. A nil value deletes it.
func (s *Store) SetCell(col, rowKey string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensure(col, v != nil)
	if c == nil {
		return
	}
	if v != nil {
		c.byRow[rowKey] = v
		s.link(rowKey, c.id)
	} else {
		delete(c.byRow, rowKey)
		s.unlink(rowKey, c.id)
	}
	s.prune()
}

// RemoveRow drops the row from every column that references it.
func (s *Store) RemoveRow(rowKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bm, ok := s.rows[rowKey]
	if !ok {
		return
	}
	bm.Iterate(func(id uint32) bool {
		if el, ok := s.cols[s.names[id]]; ok {
			delete(el.Value.(*column).byRow, rowKey)
		}
		return true
	})
	delete(s.rows, rowKey)
}

// RenameRow moves every indexed value of oldKey to newKey.
func (s *Store) RenameRow(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bm, ok := s.rows[oldKey]
	if !ok {
		return
	}
	bm.Iterate(func(id uint32) bool {
		el, ok := s.cols[s.names[id]]
		if !ok {
			return true
		}
		c := el.Value.(*column)
		v, ok := c.byRow[oldKey]
		if !ok {
			return true
		}
		delete(c.byRow, oldKey)
		c.byRow[newKey] = v
		s.link(newKey, id)
		return true
	})
	delete(s.rows, oldKey)
}

// RebuildFromRows discards all state and indexes rows in one pass.
func (s *Store) RebuildFromRows(rows *cell.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	if rows == nil {
		return
	}
	rows.Range(func(rowKey string, row cell.Row) bool {
		row.Range(func(col string, v any) bool {
			if c := s.ensure(col, true); c != nil {
				c.byRow[rowKey] = v
				s.link(rowKey, c.id)
			}
			return true
		})
		return true
	})
	s.prune()
}

// Partial reports whether col is live but was created after an eviction.
// A partial column holds the rows written since it was created, not
// necessarily every row carrying a value for col.
func (s *Store) Partial(col string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, ok := s.cols[col]
	return ok && el.Value.(*column).partial
}

// Interned returns the number of column names holding an id, free ids
// excluded.
func (s *Store) Interned() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Snapshot returns a deep copy: column -> rowKey -> value.
func (s *Store) Snapshot() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(s.cols))
	for name, el := range s.cols {
		out[name] = maps.Clone(el.Value.(*column).byRow)
	}
	return out
}

// Columns returns indexed column names, least recently used first.
func (s *Store) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, s.lru.Len())
	for el := s.lru.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*column).name)
	}
	return out
}

// RowColumns returns, in sorted order, the columns the reverse map links
// to rowKey.
func (s *Store) RowColumns(rowKey string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bm, ok := s.rows[rowKey]
	if !ok {
		return nil
	}
	out := make([]string, 0, bm.GetCardinality())
	bm.Iterate(func(id uint32) bool {
		out = append(out, s.names[id])
		return true
	})
	slices.Sort(out)
	return out
}

// Reset drops all columns and reverse links.
func (s *Store) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *Store) resetLocked() {
	s.lru.Init()
	clear(s.cols)
	clear(s.rows)
	clear(s.ids)
	s.names = s.names[:0]
	s.free = s.free[:0]
	s.lossy = false
}

var _ Index = (*Store)(nil)
