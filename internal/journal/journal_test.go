package journal

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/kernel"
)

func openTestJournal(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func testCommit(seq int64, id string, diffs ...diff.FieldDiff) kernel.Commit {
	return kernel.Commit{
		Seq:         seq,
		ID:          id,
		Rows:        cell.NewSnapshot(map[string]map[string]any{"r1": {"a": 1}}),
		Diffs:       diffs,
		Label:       "kernel",
		ActionCount: len(diffs),
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := openTestJournal(t)

	mode, err := j.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	fk, err := j.pragma("foreign_keys")
	require.NoError(t, err)
	assert.Equal(t, "1", fk)

	v, err := j.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, testCommit(1, "c1", diff.Insert("r1", "a", 1, diff.SourceLocal))))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAppend_RoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(string(codec), func(t *testing.T) {
			j := openTestJournal(t, WithCodec(codec))
			ctx := context.Background()

			diffs := []diff.FieldDiff{
				diff.Insert("r1", "a", 1, diff.SourceLocal),
				diff.Update("r1", "b", "x", "y", diff.SourceServer),
				diff.Rename("r1", "r2", "a", diff.SourceLocal),
			}
			require.NoError(t, j.Append(ctx, testCommit(1, "c1", diffs...)))

			e, err := j.Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), e.Seq)
			assert.Equal(t, "kernel", e.Label)
			assert.Equal(t, 3, e.ActionCount)
			assert.Equal(t, 1, e.RowCount)
			require.Len(t, e.Diffs, 3)
			assert.Equal(t, int64(1), e.Diffs[0].Next)
			assert.Equal(t, diffs[1], e.Diffs[1])
			assert.Equal(t, diffs[2], e.Diffs[2])
		})
	}
}

func TestAppend_CompressesLargePayloads(t *testing.T) {
	j := openTestJournal(t, WithCodec(CodecZstd))
	ctx := context.Background()

	var diffs []diff.FieldDiff
	for range 200 {
		diffs = append(diffs, diff.Insert("row", "column", strings.Repeat("v", 20), diff.SourceLocal))
	}
	require.NoError(t, j.Append(ctx, testCommit(1, "big", diffs...)))

	e, err := j.Get(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, e.Codec)
	assert.Len(t, e.Diffs, 200)
}

func TestAppend_Idempotent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	c := testCommit(1, "c1", diff.Insert("r1", "a", 1, diff.SourceLocal))

	require.NoError(t, j.Append(ctx, c))
	require.NoError(t, j.Append(ctx, c))

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestList_OrderAndFilters(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, testCommit(3, "c3", diff.Insert("r", "b", 1, diff.SourceLocal))))
	require.NoError(t, j.Append(ctx, testCommit(1, "c1", diff.Insert("r", "a", 1, diff.SourceLocal))))
	other := testCommit(2, "c2", diff.Insert("r", "a", 2, diff.SourceLocal), diff.Insert("r", "b", 2, diff.SourceLocal))
	other.Label = "gate/apply-patches"
	require.NoError(t, j.Append(ctx, other))

	ids := func(es []Entry) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return out
	}

	all, err := j.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids(all))

	byCol, err := j.List(ctx, Filter{Column: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids(byCol))

	byLabel, err := j.List(ctx, Filter{Label: "gate/apply-patches"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(byLabel))

	after, err := j.List(ctx, Filter{AfterSeq: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(after))

	none, err := j.List(ctx, Filter{Column: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestGet_NotFound(t *testing.T) {
	j := openTestJournal(t)
	_, err := j.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	last, err := j.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("lz4")
	require.NoError(t, err)
	assert.Equal(t, CodecLZ4, c)

	_, err = ParseCodec("gzip")
	assert.Error(t, err)
}

func TestEncode_IncompressibleFallsBack(t *testing.T) {
	codec, out, err := encode(CodecZstd, []byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, CodecNone, codec)
	assert.Equal(t, []byte("ab"), out)
}
