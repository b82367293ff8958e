package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot_CopiesInput(t *testing.T) {
	src := map[string]map[string]any{"r1": {"a": 1, "b": nil}}
	s := NewSnapshot(src)

	src["r1"]["a"] = 99
	v, ok := s.Get("r1", "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = s.Get("r1", "b")
	assert.False(t, ok, "nil values are dropped")
}

func TestSnapshot_KeysSorted(t *testing.T) {
	s := NewSnapshot(map[string]map[string]any{"b": {}, "a": {}, "c": {}})
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
}

func TestSnapshot_ToMapIsDeepCopy(t *testing.T) {
	s := NewSnapshot(map[string]map[string]any{"r": {"x": "1"}})
	m := s.ToMap()
	m["r"]["x"] = "2"

	v, _ := s.Get("r", "x")
	assert.Equal(t, "1", v)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"same int", 1, 1, true},
		{"different int", 1, 2, false},
		{"int vs int64", 1, int64(1), false},
		{"strings", "x", "x", true},
		{"nil nil", nil, nil, true},
		{"nil vs value", nil, 0, false},
		{"slices equal", []int{1, 2}, []int{1, 2}, true},
		{"slices differ", []int{1, 2}, []int{2, 1}, false},
		{"maps equal", map[string]any{"a": 1}, map[string]any{"a": 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}
