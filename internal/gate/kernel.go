package gate

import (
	"log/slog"

	"github.com/roach88/gridkernel/internal/cell"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/kernel"
)

// Kernel is the batched gate: every call becomes an engine action.
// Results become visible at the engine's next flush.
type Kernel struct {
	engine *kernel.Engine
}

// NewKernel wraps engine.
func NewKernel(engine *kernel.Engine) *Kernel {
	return &Kernel{engine: engine}
}

// Engine returns the wrapped engine.
func (g *Kernel) Engine() *kernel.Engine {
	return g.engine
}

// Rows returns the engine's committed snapshot.
func (g *Kernel) Rows() *cell.Snapshot {
	return g.engine.Rows()
}

// FlushNow drains the engine queue synchronously.
func (g *Kernel) FlushNow() {
	g.engine.FlushNow()
}

func (g *Kernel) dispatch(a kernel.Action) {
	if err := g.engine.Dispatch(a); err != nil {
		slog.Debug("dispatch ignored", "action", a.Name(), "error", err)
	}
}

// UpdateField implements Gate.
func (g *Kernel) UpdateField(path string, next any, src ...diff.Source) {
	g.dispatch(kernel.UpdateField{Path: path, Next: next, Source: sourceOr(src, diff.SourceLocal)})
}

// ApplyPatches implements Gate.
func (g *Kernel) ApplyPatches(patches map[string]any, src ...diff.Source) {
	g.dispatch(kernel.ApplyPatches{Patches: kernel.PatchesFromMap(patches), Source: sourceOr(src, diff.SourceServer)})
}

// AddRow implements Gate.
func (g *Kernel) AddRow(rowKey string, row map[string]any) {
	g.dispatch(kernel.AddRow{RowKey: rowKey, Row: row})
}

// RemoveRow implements Gate.
func (g *Kernel) RemoveRow(rowKey string) {
	g.dispatch(kernel.RemoveRow{RowKey: rowKey})
}

// RenameRow implements Gate.
func (g *Kernel) RenameRow(oldKey, newKey string) {
	g.dispatch(kernel.RenameRow{OldKey: oldKey, NewKey: newKey})
}

var _ Gate = (*Kernel)(nil)
