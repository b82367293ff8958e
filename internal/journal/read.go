package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/gridkernel/internal/diff"
)

// ErrNotFound is returned by Get for an unknown commit ID.
var ErrNotFound = errors.New("journal: commit not found")

// Entry is one journaled commit.
type Entry struct {
	Seq         int64            `json:"seq"`
	ID          string           `json:"id"`
	Label       string           `json:"label"`
	ActionCount int              `json:"action_count"`
	RowCount    int              `json:"row_count"`
	Codec       Codec            `json:"codec"`
	RawSize     int              `json:"raw_size"`
	Diffs       []diff.FieldDiff `json:"diffs"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	// Column keeps commits that touched the column.
	Column string
	// Label keeps commits with this label.
	Label string
	// AfterSeq keeps commits with a larger sequence number.
	AfterSeq int64
	// Limit caps the number of entries.
	Limit int
}

const selectEntry = `
	SELECT c.seq, c.id, c.label, c.action_count, c.row_count, c.codec, c.raw_size, c.diffs
	FROM commits c`

// List returns matching entries ordered by seq ASC, id ASC COLLATE BINARY.
// Returns an empty slice (not nil) when nothing matches.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Column != "" {
		where = append(where, "EXISTS (SELECT 1 FROM commit_columns cc WHERE cc.commit_id = c.id AND cc.column_name = ?)")
		args = append(args, f.Column)
	}
	if f.Label != "" {
		where = append(where, "c.label = ?")
		args = append(args, f.Label)
	}
	if f.AfterSeq > 0 {
		where = append(where, "c.seq > ?")
		args = append(args, f.AfterSeq)
	}

	query := selectEntry
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.seq ASC, c.id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return entries, nil
}

// Get returns the entry with the given commit ID.
func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, selectEntry+" WHERE c.id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// LastSeq returns the highest journaled sequence number, or 0 when empty.
// Pass it to kernel.NewClockAt to continue numbering.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM commits").Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

// Count returns the number of journaled commits.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM commits").Scan(&n); err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		codec   string
		payload []byte
	)
	if err := s.Scan(&e.Seq, &e.ID, &e.Label, &e.ActionCount, &e.RowCount, &codec, &e.RawSize, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan commit: %w", err)
	}
	e.Codec = Codec(codec)
	raw, err := decode(e.Codec, payload, e.RawSize)
	if err != nil {
		return Entry{}, fmt.Errorf("commit %s: %w", e.ID, err)
	}
	if e.Diffs, err = diff.UnmarshalDiffs(raw); err != nil {
		return Entry{}, fmt.Errorf("commit %s: %w", e.ID, err)
	}
	return e, nil
}
