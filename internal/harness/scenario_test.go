package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: ok
description: minimal
rows:
  r1: {a: 1}
steps:
  - op: update_field
    path: rows.r1.a
    value: 2
  - op: tick
assertions:
  - type: cell
    row: r1
    column: a
    value: 2
`))
	require.NoError(t, err)
	assert.Equal(t, "ok", s.Name)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, OpUpdateField, s.Steps[0].Op)
	assert.Equal(t, 2, s.Steps[0].Value)
	assert.Equal(t, 1, s.Rows["r1"]["a"])
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: d\nstep: []\n",
			want: "field step not found",
		},
		{
			name: "missing name",
			yaml: "description: d\nsteps: [{op: tick}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\nsteps: [{op: tick}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: x\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "unknown op",
			yaml: "name: x\ndescription: d\nsteps: [{op: explode}]\n",
			want: `step 1: unknown op "explode"`,
		},
		{
			name: "rename without target",
			yaml: "name: x\ndescription: d\nsteps: [{op: rename_row, from: a}]\n",
			want: "rename_row requires from and to",
		},
		{
			name: "cell assertion without column",
			yaml: "name: x\ndescription: d\nsteps: [{op: tick}]\nassertions: [{type: cell, row: r}]\n",
			want: "assertion 1: cell requires row and column",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: d\nsteps: [{op: tick}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
