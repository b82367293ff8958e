// Package fieldpath parses dot/bracket paths and reads or writes nested
// map[string]any / []any values along them.
//
// Grammar: identifiers separated by '.', numeric indices in brackets.
// "a.b[2].c" parses to [a b 2 c]. Extra dots are tolerated ("a..b", ".a",
// "a."), a dot after a bracket is optional ("a[0]b"), and "map.0" stays a
// string key. Reserved keys (__proto__, prototype, constructor) are
// rejected so user-supplied paths cannot address them.
package fieldpath

import (
	"strconv"
	"strings"

	"github.com/roach88/gridkernel/internal/cell"
)

var unsafeKeys = map[string]struct{}{
	"__proto__":   {},
	"prototype":   {},
	"constructor": {},
}

// IsUnsafe reports whether key is reserved.
func IsUnsafe(key string) bool {
	_, bad := unsafeKeys[key]
	return bad
}

// MaxIndex is the largest bracket index Parse accepts. Set grows slices up
// to the written index, so the bound also caps that allocation.
const MaxIndex = 1<<20 - 1

// Segment is one step of a parsed path: a map key or a slice index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// String renders the segment the way it appears in a path.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Key returns a key segment.
func Key(k string) Segment { return Segment{Key: k} }

// Index returns an index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// Parse splits a dot/bracket path into segments. An empty path yields no
// segments.
func Parse(path string) ([]Segment, error) {
	n := len(path)
	if n == 0 {
		return nil, nil
	}
	var out []Segment
	i := 0
	for i < n {
		start := i
		for i < n && path[i] != '.' && path[i] != '[' {
			i++
		}
		if i > start {
			id := path[start:i]
			if IsUnsafe(id) {
				return nil, &PathError{Code: ErrCodeUnsafeKey, Path: path, Pos: start, Message: "unsafe key " + id}
			}
			out = append(out, Key(id))
		}
		if i >= n {
			break
		}
		if path[i] == '.' {
			i++
			continue
		}

		// '['
		open := i
		i++
		val, digits := 0, false
		for i < n && path[i] != ']' {
			c := path[i]
			if c < '0' || c > '9' {
				return nil, &PathError{Code: ErrCodeInvalidIndex, Path: path, Pos: i, Message: "invalid index " + strconv.QuoteRune(rune(c))}
			}
			digits = true
			val = val*10 + int(c-'0')
			if val > MaxIndex {
				return nil, &PathError{Code: ErrCodeInvalidIndex, Path: path, Pos: open, Message: "index exceeds " + strconv.Itoa(MaxIndex)}
			}
			i++
		}
		if i >= n {
			return nil, &PathError{Code: ErrCodeUnclosedBracket, Path: path, Pos: open, Message: "unclosed bracket"}
		}
		i++
		if !digits {
			return nil, &PathError{Code: ErrCodeInvalidIndex, Path: path, Pos: open, Message: "empty index"}
		}
		out = append(out, Index(val))
		if i < n && path[i] == '.' {
			i++
		}
	}
	return out, nil
}

// Format joins segments back into path form.
func Format(segs []Segment) string {
	var b strings.Builder
	for i, s := range segs {
		if !s.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Get walks root along segs. The bool is false when any step is missing.
func Get(root any, segs []Segment) (any, bool) {
	cur := root
	for _, s := range segs {
		switch c := cur.(type) {
		case map[string]any:
			key := s.Key
			if s.IsIndex {
				key = strconv.Itoa(s.Index)
			}
			v, ok := c[key]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			if !s.IsIndex || s.Index < 0 || s.Index >= len(c) {
				return nil, false
			}
			cur = c[s.Index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set returns a new root with v written at segs. Only the containers along
// the path are copied; every other branch is shared with root. When the
// current leaf already equals v, root itself is returned.
//
// Writing nil deletes a map key and clears a slice slot. A segment index
// outside [0, MaxIndex] leaves root unchanged.
func Set(root any, segs []Segment, v any) any {
	if len(segs) == 0 {
		return v
	}
	for _, s := range segs {
		if s.IsIndex && (s.Index < 0 || s.Index > MaxIndex) {
			return root
		}
	}
	old, ok := Get(root, segs)
	if ok && cell.Equal(old, v) || !ok && v == nil {
		return root
	}
	return set(root, segs, v)
}

func set(cur any, segs []Segment, v any) any {
	if len(segs) == 0 {
		return v
	}
	s := segs[0]
	if s.IsIndex {
		if m, ok := cur.(map[string]any); ok {
			return setKey(m, strconv.Itoa(s.Index), segs[1:], v)
		}
		src, _ := cur.([]any)
		out := make([]any, max(len(src), s.Index+1))
		copy(out, src)
		var child any
		if s.Index < len(src) {
			child = src[s.Index]
		}
		out[s.Index] = set(child, segs[1:], v)
		return out
	}
	m, _ := cur.(map[string]any)
	return setKey(m, s.Key, segs[1:], v)
}

func setKey(m map[string]any, key string, rest []Segment, v any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, val := range m {
		out[k] = val
	}
	next := set(m[key], rest, v)
	if next == nil {
		delete(out, key)
	} else {
		out[key] = next
	}
	return out
}

// GetAt parses path and reads it from root.
func GetAt(root any, path string) (any, bool, error) {
	segs, err := Parse(path)
	if err != nil {
		return nil, false, err
	}
	v, ok := Get(root, segs)
	return v, ok, nil
}

// SetAt parses path and writes v into a copy of root.
func SetAt(root any, path string, v any) (any, error) {
	segs, err := Parse(path)
	if err != nil {
		return nil, err
	}
	return Set(root, segs, v), nil
}
