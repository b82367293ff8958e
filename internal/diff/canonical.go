package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces deterministic JSON for diffs and cell values.
//
// Used by the journal and by golden traces, where byte-identical output for
// identical input matters:
//   - object keys sorted by UTF-16 code units (RFC 8785 order)
//   - strings NFC normalized, no HTML escaping
//   - integral floats printed without exponent or fraction
//   - NaN and Inf rejected
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Map returns the canonical object form of a diff. Absent prev/next are
// omitted so insert and remove diffs stay distinguishable.
func (d FieldDiff) Map() map[string]any {
	m := map[string]any{
		"kind":   string(d.Kind),
		"path":   d.Path,
		"source": string(d.Source),
	}
	if d.RowKey != "" {
		m["row_key"] = d.RowKey
	}
	if d.Column != "" {
		m["column"] = d.Column
	}
	if d.Prev != nil {
		m["prev"] = d.Prev
	}
	if d.Next != nil {
		m["next"] = d.Next
	}
	return m
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeCanonicalString(buf, val)
	case Kind:
		return writeCanonicalString(buf, string(val))
	case Source:
		return writeCanonicalString(buf, string(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float64:
		return writeCanonicalFloat(buf, val)
	case float32:
		return writeCanonicalFloat(buf, float64(val))
	case FieldDiff:
		return writeCanonicalObject(buf, val.Map())
	case []FieldDiff:
		buf.WriteByte('[')
		for i, d := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalObject(buf, d.Map()); err != nil {
				return fmt.Errorf("diff[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		return writeCanonicalObject(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	default:
		return writeCanonicalReflect(buf, reflect.ValueOf(v))
	}
	return nil
}

// writeCanonicalReflect handles typed maps, slices and numeric kinds that the
// fast path does not name explicitly.
func writeCanonicalReflect(buf *bytes.Buffer, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		return writeCanonicalFloat(buf, rv.Float())
	case reflect.String:
		return writeCanonicalString(buf, rv.String())
	case reflect.Bool:
		return writeCanonical(buf, rv.Bool())
	case reflect.Slice, reflect.Array:
		buf.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("unsupported map key type for canonical JSON: %s", rv.Type().Key())
		}
		obj := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			obj[iter.Key().String()] = iter.Value().Interface()
		}
		return writeCanonicalObject(buf, obj)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return writeCanonical(buf, rv.Elem().Interface())
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %s", rv.Type())
	}
	return nil
}

func writeCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number in canonical JSON: %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// number of backslashes is literal text and stays as is.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+6 <= len(data) && data[i] == '\\' && bytes.HasPrefix(data[i+1:], []byte("u202")) &&
			(data[i+5] == '8' || data[i+5] == '9') {
			slashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				slashes++
			}
			if slashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func writeCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// compareUTF16 orders strings by UTF-16 code units. Go's native string
// comparison is by UTF-8 bytes, which sorts supplementary characters
// differently.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// FromMap is the inverse of Map. Numbers decoded as json.Number become
// int64 when integral and float64 otherwise.
func FromMap(m map[string]any) (FieldDiff, error) {
	d := FieldDiff{
		Kind:   Kind(stringField(m, "kind")),
		Path:   stringField(m, "path"),
		Source: Source(stringField(m, "source")),
		RowKey: stringField(m, "row_key"),
		Column: stringField(m, "column"),
		Prev:   normalizeNumbers(m["prev"]),
		Next:   normalizeNumbers(m["next"]),
	}
	switch d.Kind {
	case KindInsert, KindUpdate, KindRemove, KindRename:
	default:
		return FieldDiff{}, fmt.Errorf("unknown diff kind %q", d.Kind)
	}
	if d.Path == "" {
		return FieldDiff{}, fmt.Errorf("%s diff without path", d.Kind)
	}
	return d, nil
}

// UnmarshalDiffs decodes a JSON array of diff objects.
func UnmarshalDiffs(data []byte) ([]FieldDiff, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode diffs: %w", err)
	}
	out := make([]FieldDiff, 0, len(raw))
	for i, m := range raw {
		d, err := FromMap(m)
		if err != nil {
			return nil, fmt.Errorf("diff[%d]: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, e := range val {
			val[k] = normalizeNumbers(e)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = normalizeNumbers(e)
		}
		return val
	default:
		return v
	}
}
