// Package journal records delivered commits in SQLite for inspection.
//
// The journal is a trace sink: rows are never restored from it. Each commit
// is one row in the commits table, keyed by its ID and ordered by its
// logical sequence number, never by wall time. Diff payloads are stored as
// canonical JSON, optionally compressed, so identical commits produce
// identical bytes.
//
// # Database configuration
//
//   - WAL mode: readers (the trace command) never block the writer
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// All queries order by seq ASC, id ASC COLLATE BINARY.
package journal
