package offload

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/index"
)

// replyBuffer bounds worker replies waiting for the receiver.
const replyBuffer = 16

// Proxy is the host side of an offloaded index.
//
// All methods are safe for concurrent use.
type Proxy struct {
	out     *mailbox
	replies chan Reply
	group   *errgroup.Group
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	last      map[string]map[string]any
	writes    uint64 // writes posted so far
	synced    uint64 // writes reflected in last
	requested uint64 // writes covered by the newest request
	latest    uint64 // newest request id
	accepted  uint64 // id of the reply stored in last
	inflight  bool
	stale     int
	closed    bool
	updated   chan struct{} // closed and replaced on every accepted reply
}

func newProxy() *Proxy {
	return &Proxy{
		out:     newMailbox(),
		replies: make(chan Reply, replyBuffer),
		done:    make(chan struct{}),
		last:    map[string]map[string]any{},
		updated: make(chan struct{}),
	}
}

// Start launches the worker and the reply receiver and sends the init
// message. Call Close to stop them.
func Start(ctx context.Context, opts Options) *Proxy {
	p := newProxy()
	ctx, p.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p.group = g

	w := &worker{in: p.out, out: p.replies}
	g.Go(func() error { return w.run(gctx) })
	g.Go(func() error { return p.receive(gctx) })

	p.out.post(Message{Kind: KindInit, Init: opts})
	slog.Debug("offload started", "max_columns", opts.MaxColumns, "eager", opts.Eager)
	return p
}

func (p *Proxy) receive(ctx context.Context) error {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-p.replies:
			if !ok {
				return nil
			}
			p.accept(r)
		}
	}
}

// accept stores r if it answers the newest request.
func (p *Proxy) accept(r Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.ID != p.latest {
		p.stale++
		slog.Debug("stale snapshot reply dropped", "id", r.ID, "latest", p.latest)
		return
	}
	if r.Data == nil {
		r.Data = map[string]map[string]any{}
	}
	p.last = r.Data
	p.accepted = r.ID
	p.synced = p.requested
	p.inflight = false
	close(p.updated)
	p.updated = make(chan struct{})
}

// request asks the worker for a snapshot. Caller holds p.mu.
func (p *Proxy) request() uint64 {
	p.latest++
	p.requested = p.writes
	p.inflight = true
	p.out.post(Message{Kind: KindSnapshot, ID: p.latest})
	return p.latest
}

// refreshIfDirty requests a snapshot when writes are unreflected and none
// is in flight. Caller holds p.mu.
func (p *Proxy) refreshIfDirty() {
	if p.closed || p.inflight || p.writes == p.synced {
		return
	}
	p.request()
}

func (p *Proxy) post(m Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.out.post(m) {
		slog.Debug("offload write after close", "kind", m.Kind)
		return
	}
	p.writes++
	p.refreshIfDirty()
}

// SetCell implements index.Writer.
func (p *Proxy) SetCell(col, rowKey string, v any) {
	p.post(Message{Kind: KindSetCell, Column: col, RowKey: rowKey, Value: v})
}

// RemoveRow implements index.Writer.
func (p *Proxy) RemoveRow(rowKey string) {
	p.post(Message{Kind: KindRemoveRow, RowKey: rowKey})
}

// RenameRow implements index.Writer.
func (p *Proxy) RenameRow(oldKey, newKey string) {
	p.post(Message{Kind: KindRenameRow, OldKey: oldKey, NewKey: newKey})
}

// RebuildFromRows implements index.Writer.
func (p *Proxy) RebuildFromRows(rows *cell.Snapshot) {
	p.post(Message{Kind: KindRebuildFromRows, Rows: rows})
}

// Reset implements index.Writer.
func (p *Proxy) Reset() {
	p.post(Message{Kind: KindReset})
}

// Snapshot returns a copy of the last accepted snapshot, which may lag
// behind recent writes. A refresh is requested in the background when it
// does.
func (p *Proxy) Snapshot() map[string]map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshIfDirty()
	return clone(p.last)
}

// SnapshotContext requests a fresh snapshot and waits until a reply at
// least as new has been accepted.
func (p *Proxy) SnapshotContext(ctx context.Context) (map[string]map[string]any, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	id := p.request()
	wait := p.updated
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		case <-p.done:
		}
		p.mu.Lock()
		if p.accepted >= id {
			snap := clone(p.last)
			p.mu.Unlock()
			return snap, nil
		}
		wait = p.updated
		p.mu.Unlock()

		select {
		case <-p.done:
			return nil, ErrClosed
		default:
		}
	}
}

// Column implements the local store's column read, which a proxy cannot
// serve. It always returns ErrUnsupported.
func (p *Proxy) Column(string) (*index.Column, error) {
	return nil, ErrUnsupported
}

// Stale returns how many replies were dropped as stale.
func (p *Proxy) Stale() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale
}

// Pending returns the number of messages the worker has not picked up.
func (p *Proxy) Pending() int {
	return p.out.len()
}

// Close stops accepting writes, lets the worker drain its mailbox and
// waits for both goroutines to exit.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.out.close()
	var err error
	if p.group != nil {
		err = p.group.Wait()
		p.cancel()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func clone(snap map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(snap))
	for col, byRow := range snap {
		out[col] = maps.Clone(byRow)
	}
	return out
}

var _ index.Index = (*Proxy)(nil)
