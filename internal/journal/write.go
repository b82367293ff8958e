package journal

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/kernel"
)

// Append records a commit. Appending the same commit ID twice is a no-op.
func (j *Journal) Append(ctx context.Context, c kernel.Commit) error {
	raw, err := diff.MarshalCanonical(c.Diffs)
	if err != nil {
		return fmt.Errorf("append commit %d: %w", c.Seq, err)
	}
	codec, payload, err := encode(j.codec, raw)
	if err != nil {
		return fmt.Errorf("append commit %d: %w", c.Seq, err)
	}
	rowCount := 0
	if c.Rows != nil {
		rowCount = c.Rows.Len()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append commit %d: begin tx: %w", c.Seq, err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO commits
		(id, seq, label, action_count, diff_count, row_count, codec, raw_size, diffs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		c.ID,
		c.Seq,
		c.Label,
		c.ActionCount,
		len(c.Diffs),
		rowCount,
		string(codec),
		len(raw),
		payload,
	)
	if err != nil {
		return fmt.Errorf("append commit %d: %w", c.Seq, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	for _, col := range touchedColumns(c.Diffs) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO commit_columns (commit_id, column_name) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, c.ID, col); err != nil {
			return fmt.Errorf("append commit %d: column %q: %w", c.Seq, col, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append commit %d: commit tx: %w", c.Seq, err)
	}
	return nil
}

func touchedColumns(diffs []diff.FieldDiff) []string {
	seen := make(map[string]struct{}, len(diffs))
	var cols []string
	for _, d := range diffs {
		if d.Column == "" {
			continue
		}
		if _, ok := seen[d.Column]; ok {
			continue
		}
		seen[d.Column] = struct{}{}
		cols = append(cols, d.Column)
	}
	slices.Sort(cols)
	return cols
}
