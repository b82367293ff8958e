package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/journal"
	"github.com/roach88/gridkernel/internal/kernel"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "trace.db")
	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()

	commits := []kernel.Commit{
		{Seq: 1, ID: "c-0001", Label: "kernel", ActionCount: 1, Diffs: []diff.FieldDiff{
			diff.Insert("r1", "price", int64(10), diff.SourceLocal),
		}},
		{Seq: 2, ID: "c-0002", Label: "gate/update-field", ActionCount: 1, Diffs: []diff.FieldDiff{
			diff.Update("r1", "qty", int64(1), int64(2), diff.SourceLocal),
		}},
		{Seq: 3, ID: "c-0003", Label: "kernel", ActionCount: 2, Diffs: []diff.FieldDiff{
			diff.Update("r1", "price", int64(10), int64(12), diff.SourceServer),
			diff.Remove("r1", "qty", int64(2), diff.SourceServer),
		}},
	}
	for _, c := range commits {
		require.NoError(t, j.Append(t.Context(), c))
	}
	return db
}

func TestTrace_Text(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "#1 c-0001 kernel actions=1 diffs=1")
	assert.Contains(t, out, "#3 c-0003 kernel actions=2 diffs=2")
	assert.Contains(t, out, "3 of 3 commits shown")
	assert.NotContains(t, out, "rows.r1.price")
}

func TestTrace_VerboseShowsDiffs(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, "trace", "--db", db, "-v", "--after", "2")
	require.NoError(t, err)
	assert.NotContains(t, out, "#1 ")
	assert.Contains(t, out, "update rows.r1.price 10 -> 12 (server)")
	assert.Contains(t, out, "1 of 3 commits shown")
}

func TestTrace_FiltersJSON(t *testing.T) {
	db := seedJournal(t)

	out, err := execute(t, "trace", "--db", db, "--column", "price", "--label", "kernel", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, int64(3), resp.Data.LastSeq)
	require.Len(t, resp.Data.Commits, 2)
	assert.Equal(t, "c-0001", resp.Data.Commits[0].ID)
	assert.Equal(t, "c-0003", resp.Data.Commits[1].ID)
}

func TestTrace_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No commits found.")
}

func TestTrace_MissingDBFlag(t *testing.T) {
	_, err := execute(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}
