package offload

import (
	"context"
	"log/slog"

	"github.com/roach88/gridkernel/internal/index"
)

// worker owns an index replica. Only its own goroutine touches it.
type worker struct {
	in    *mailbox
	out   chan<- Reply
	store *index.Store
}

// run serves the mailbox until it is closed and drained, or ctx ends. The
// reply channel is closed on return.
func (w *worker) run(ctx context.Context) error {
	defer close(w.out)
	for {
		msgs, done := w.in.take()
		if done {
			return nil
		}
		for _, m := range msgs {
			if err := w.handle(ctx, m); err != nil {
				return err
			}
		}
		if len(msgs) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.in.signal:
		}
	}
}

func (w *worker) handle(ctx context.Context, m Message) error {
	if m.Kind == KindInit {
		w.store = index.New(m.Init.indexOptions()...)
		return nil
	}
	if w.store == nil {
		slog.Debug("offload message before init", "kind", m.Kind)
		return nil
	}
	switch m.Kind {
	case KindSetCell:
		w.store.SetCell(m.Column, m.RowKey, m.Value)
	case KindRemoveRow:
		w.store.RemoveRow(m.RowKey)
	case KindRenameRow:
		w.store.RenameRow(m.OldKey, m.NewKey)
	case KindRebuildFromRows:
		w.store.RebuildFromRows(m.Rows)
	case KindReset:
		w.store.Reset()
	case KindSnapshot:
		r := Reply{Kind: KindSnapshot, ID: m.ID, Data: w.store.Snapshot()}
		select {
		case w.out <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		slog.Warn("unknown offload message", "kind", m.Kind)
	}
	return nil
}
