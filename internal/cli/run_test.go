package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridkernel/internal/journal"
)

const passingScenario = `name: passing
description: one row, one update
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
`

const failingScenario = `name: failing
description: expects a value that never arrives
steps:
  - op: add_row
    row: r1
    values: {a: 1}
assertions:
  - type: cell
    row: r1
    column: a
    value: 5
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

func TestRun_Passing(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"passing.yaml": passingScenario, "notes.txt": "ignored"})

	out, err := execute(t, "run", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ passing (1 commits, 1 diffs)")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestRun_FailingExitCode(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"passing.yaml": passingScenario, "failing.yaml": failingScenario})

	out, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestRun_Filter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"passing.yaml": passingScenario, "failing.yaml": failingScenario})

	out, err := execute(t, "run", dir, "--filter", "pass*")
	require.NoError(t, err)
	assert.NotContains(t, out, "failing")
}

func TestRun_JSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"passing.yaml": passingScenario})

	out, err := execute(t, "run", filepath.Join(dir, "passing.yaml"), "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, 1, resp.Data.Scenarios[0].Diffs)
}

func TestRun_GoldenUpdateThenCompare(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"passing.yaml": passingScenario})
	golden := filepath.Join(t.TempDir(), "golden")

	_, err := execute(t, "run", dir, "--golden", golden, "--update")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(golden, "passing.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"commit-0001"`)

	_, err = execute(t, "run", dir, "--golden", golden)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(golden, "passing.golden"), []byte("{}"), 0o644))
	out, err := execute(t, "run", dir, "--golden", golden)
	require.Error(t, err)
	assert.Contains(t, out, "trace differs")
}

func TestRun_Journal(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"passing.yaml": passingScenario})
	db := filepath.Join(t.TempDir(), "trace.db")

	_, err := execute(t, "run", dir, "--journal", db, "--codec", "lz4")
	require.NoError(t, err)

	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()
	n, err := j.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_CommandErrors(t *testing.T) {
	_, err := execute(t, "run", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	dir := writeScenarios(t, map[string]string{"passing.yaml": passingScenario})
	_, err = execute(t, "run", dir, "--update")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--update requires --golden")

	_, err = execute(t, "run", dir, "--journal", filepath.Join(t.TempDir(), "x.db"), "--codec", "brotli")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
