package kernel

import (
	"slices"

	"github.com/roach88/gridkernel/internal/diff"
)

// Action is one mutation intent. The set of actions is closed.
type Action interface {
	// Name identifies the action kind in logs and traces.
	Name() string
	apply(t *Txn)
}

// UpdateField writes one cell addressed by "rows.<rowKey>.<column>".
// Source defaults to local.
type UpdateField struct {
	Path   string
	Next   any
	Source diff.Source
}

// Patch is one path/value pair of an ApplyPatches action.
type Patch struct {
	Path  string `json:"path" yaml:"path"`
	Value any    `json:"value" yaml:"value"`
}

// ApplyPatches writes many cells as one logical unit, in slice order.
// Source defaults to server.
type ApplyPatches struct {
	Patches []Patch
	Source  diff.Source
}

// AddRow inserts a row. Source defaults to local.
type AddRow struct {
	RowKey string
	Row    map[string]any
	Source diff.Source
}

// RemoveRow deletes a row. Source defaults to local.
type RemoveRow struct {
	RowKey string
	Source diff.Source
}

// RenameRow moves a row to a new key. Source defaults to local.
type RenameRow struct {
	OldKey string
	NewKey string
	Source diff.Source
}

func orDefault(src, def diff.Source) diff.Source {
	if src == "" {
		return def
	}
	return src
}

func (UpdateField) Name() string  { return "update-field" }
func (ApplyPatches) Name() string { return "apply-patches" }
func (AddRow) Name() string       { return "add-row" }
func (RemoveRow) Name() string    { return "remove-row" }
func (RenameRow) Name() string    { return "rename-row" }

func (a UpdateField) apply(t *Txn) {
	t.UpdateField(a.Path, a.Next, orDefault(a.Source, diff.SourceLocal))
}

func (a ApplyPatches) apply(t *Txn) {
	t.ApplyPatches(a.Patches, orDefault(a.Source, diff.SourceServer))
}

func (a AddRow) apply(t *Txn) {
	t.AddRow(a.RowKey, a.Row, orDefault(a.Source, diff.SourceLocal))
}

func (a RemoveRow) apply(t *Txn) {
	t.RemoveRow(a.RowKey, orDefault(a.Source, diff.SourceLocal))
}

func (a RenameRow) apply(t *Txn) {
	t.RenameRow(a.OldKey, a.NewKey, orDefault(a.Source, diff.SourceLocal))
}

// PatchesFromMap turns a path -> value map into patches ordered by path, so
// a batch built from a map applies deterministically.
func PatchesFromMap(m map[string]any) []Patch {
	out := make([]Patch, 0, len(m))
	for p, v := range m {
		out = append(out, Patch{Path: p, Value: v})
	}
	slices.SortFunc(out, func(a, b Patch) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return out
}
