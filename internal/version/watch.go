package version

// Watcher reports column version changes to a callback.
//
// Check is meant to be called from a store subscription on every tick; it
// invokes onTick only when the column version differs from the last one
// seen. A Watcher is not safe for concurrent Check calls.
type Watcher struct {
	m      *Map
	col    string
	last   uint64
	onTick func(ColumnVersion)
}

// Watch starts watching col. The current version becomes the baseline, so
// the first Check fires only after a new bump.
func Watch(m *Map, col string, onTick func(ColumnVersion)) *Watcher {
	return &Watcher{m: m, col: col, last: m.Version(col), onTick: onTick}
}

// Column returns the watched column.
func (w *Watcher) Column() string { return w.col }

// Check compares the current version with the last one seen and calls
// onTick on change. It reports whether onTick fired.
//
// A Reset of the map makes the version drop back to 0, which also counts as
// a change.
func (w *Watcher) Check() bool {
	v := w.m.Version(w.col)
	if v == w.last {
		return false
	}
	w.last = v
	w.onTick(w.m.Get(w.col))
	return true
}
