package offload

import (
	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/index"
)

// Kind names a message exchanged with the worker.
type Kind string

const (
	KindInit            Kind = "init"
	KindSetCell         Kind = "setCell"
	KindRemoveRow       Kind = "removeRow"
	KindRenameRow       Kind = "renameRow"
	KindRebuildFromRows Kind = "rebuildFromRows"
	KindReset           Kind = "reset"
	KindSnapshot        Kind = "snapshot"
)

// Options configure the worker's index replica. They mirror the
// index.Store options.
type Options struct {
	Whitelist  []string `yaml:"whitelist"`
	Eager      bool     `yaml:"eager"`
	MaxColumns int      `yaml:"max_columns"`
}

func (o Options) indexOptions() []index.Option {
	var opts []index.Option
	if len(o.Whitelist) > 0 {
		opts = append(opts, index.WithWhitelist(o.Whitelist...))
	}
	if o.Eager {
		opts = append(opts, index.WithEager())
	}
	if o.MaxColumns > 0 {
		opts = append(opts, index.WithMaxColumns(o.MaxColumns))
	}
	return opts
}

// Message is a host to worker request. Which fields are set depends on
// Kind.
type Message struct {
	Kind Kind

	Init Options // init

	Column string // setCell
	RowKey string // setCell, removeRow
	Value  any    // setCell

	OldKey string // renameRow
	NewKey string // renameRow

	Rows *cell.Snapshot // rebuildFromRows

	ID uint64 // snapshot
}

// Reply is a worker to host response. Only snapshot requests are answered.
type Reply struct {
	Kind Kind
	ID   uint64
	Data map[string]map[string]any
}
