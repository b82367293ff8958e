// Package index maintains the column index store: for each column, a
// reverse mapping rowKey -> value mirroring the row snapshot.
//
// Columns are kept in least-recently-used order and evicted once their
// count exceeds the configured bound. A reverse map from row key to the set
// of columns holding a value for that row lets RemoveRow and RenameRow touch
// only those columns. The sets are roaring bitmaps over interned column ids.
//
// Column membership may be restricted by a whitelist. Writes to columns
// outside the whitelist are ignored and reads return a shared empty view.
package index
