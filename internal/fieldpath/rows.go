package fieldpath

import "strings"

// RowPrefix starts every cell path.
const RowPrefix = "rows."

// SplitRowPath splits "rows.<rowKey>.<column>" into its parts.
//
// The column is everything after the row key, dots included. The path is
// rejected (ok is false) when the prefix is missing, the row key is empty,
// any column segment is empty, or any segment is a reserved key. This is
// the mutation-surface parser: it never returns an error, callers drop
// rejected paths.
func SplitRowPath(path string) (rowKey, column string, ok bool) {
	rest, found := strings.CutPrefix(path, RowPrefix)
	if !found {
		return "", "", false
	}
	rowKey, column, found = strings.Cut(rest, ".")
	if !found || rowKey == "" || IsUnsafe(rowKey) || column == "" {
		return "", "", false
	}
	for seg := range strings.SplitSeq(column, ".") {
		if seg == "" || IsUnsafe(seg) {
			return "", "", false
		}
	}
	return rowKey, column, true
}
