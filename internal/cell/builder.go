package cell

// Builder is a copy-on-write working snapshot.
//
// The top-level row map is cloned at most once, on the first write. Inside
// that clone only touched rows are copied, and each row is copied at most
// once: the touched set remembers which row maps the builder already owns.
//
// A Builder is not safe for concurrent use. After Snapshot is called the
// builder hands ownership of its maps to the returned snapshot and starts
// over from it, so later writes copy again.
type Builder struct {
	base    *Snapshot
	rows    map[string]Row
	touched map[string]map[string]any
}

// NewBuilder starts a transaction on top of base.
func NewBuilder(base *Snapshot) *Builder {
	if base == nil {
		base = empty
	}
	return &Builder{base: base}
}

func (b *Builder) current() map[string]Row {
	if b.rows != nil {
		return b.rows
	}
	return b.base.rows
}

// Changed reports whether any write happened since the last Snapshot.
func (b *Builder) Changed() bool {
	return b.rows != nil
}

// Row returns the current view of a row.
func (b *Builder) Row(key string) (Row, bool) {
	r, ok := b.current()[key]
	return r, ok
}

// Has reports whether key names a row in the working state.
func (b *Builder) Has(key string) bool {
	_, ok := b.current()[key]
	return ok
}

// Get returns the working value of rows[rowKey][col].
func (b *Builder) Get(rowKey, col string) (any, bool) {
	r, ok := b.current()[rowKey]
	if !ok {
		return nil, false
	}
	return r.Get(col)
}

// ensureRows clones the top-level map once per transaction.
func (b *Builder) ensureRows() {
	if b.rows != nil {
		return
	}
	b.rows = make(map[string]Row, len(b.base.rows)+1)
	for k, r := range b.base.rows {
		b.rows[k] = r
	}
	b.touched = make(map[string]map[string]any)
}

// ensureRow returns a row map owned by this builder, copying the shared row
// on first touch and creating it when missing.
func (b *Builder) ensureRow(key string) map[string]any {
	b.ensureRows()
	if m, ok := b.touched[key]; ok {
		return m
	}
	prev, ok := b.rows[key]
	m := make(map[string]any, prev.Len()+1)
	if ok {
		for col, v := range prev.m {
			m[col] = v
		}
	}
	b.rows[key] = Row{m: m}
	b.touched[key] = m
	return m
}

// Set writes one cell. A nil value deletes the cell.
func (b *Builder) Set(rowKey, col string, v any) {
	if v == nil {
		b.Delete(rowKey, col)
		return
	}
	b.ensureRow(rowKey)[col] = v
}

// Delete removes one cell. The row itself stays, possibly empty.
func (b *Builder) Delete(rowKey, col string) {
	if _, ok := b.Get(rowKey, col); !ok {
		return
	}
	delete(b.ensureRow(rowKey), col)
}

// PutRow inserts a whole row, copying values. An existing row is replaced.
func (b *Builder) PutRow(rowKey string, values map[string]any) Row {
	b.ensureRows()
	r := NewRow(values)
	b.rows[rowKey] = r
	b.touched[rowKey] = r.m
	return r
}

// DeleteRow removes a row.
func (b *Builder) DeleteRow(rowKey string) {
	if !b.Has(rowKey) {
		return
	}
	b.ensureRows()
	delete(b.rows, rowKey)
	delete(b.touched, rowKey)
}

// RenameRow moves the row under oldKey to newKey. The moved row is copied so
// the previous snapshot keeps its own instance.
func (b *Builder) RenameRow(oldKey, newKey string) {
	prev, ok := b.Row(oldKey)
	if !ok {
		return
	}
	b.ensureRows()
	delete(b.rows, oldKey)
	delete(b.touched, oldKey)
	clone := make(map[string]any, prev.Len())
	for col, v := range prev.m {
		clone[col] = v
	}
	b.rows[newKey] = Row{m: clone}
	b.touched[newKey] = clone
}

// Snapshot freezes the working state. When nothing was written the base
// snapshot is returned unchanged.
func (b *Builder) Snapshot() *Snapshot {
	if b.rows == nil {
		return b.base
	}
	s := &Snapshot{rows: b.rows}
	b.base = s
	b.rows = nil
	b.touched = nil
	return s
}
