// Package cell defines the row snapshot: an immutable two-level map
// (row key -> column key -> value) with structural sharing.
//
// A nil value is never stored. Writing nil through a Builder deletes the
// cell, so "absent" and "nil" mean the same thing everywhere in the kernel.
//
// Snapshots are replaced wholesale on every committed flush. Superseded
// snapshots are simply dropped; no history is retained.
package cell
