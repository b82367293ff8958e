package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance run: initial rows, steps, assertions.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Config overrides store configuration keys. Omitted keys take their
	// defaults.
	Config map[string]any `yaml:"config,omitempty"`

	// Rows is the initial snapshot.
	Rows map[string]map[string]any `yaml:"rows,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions run after the last step has settled.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one gate operation or loop turn.
type Step struct {
	Op      string         `yaml:"op"`
	Row     string         `yaml:"row,omitempty"`
	Values  map[string]any `yaml:"values,omitempty"`
	Path    string         `yaml:"path,omitempty"`
	Value   any            `yaml:"value,omitempty"`
	Patches map[string]any `yaml:"patches,omitempty"`
	Source  string         `yaml:"source,omitempty"`
	From    string         `yaml:"from,omitempty"`
	To      string         `yaml:"to,omitempty"`
}

// Step operations.
const (
	OpAddRow       = "add_row"
	OpUpdateField  = "update_field"
	OpApplyPatches = "apply_patches"
	OpRemoveRow    = "remove_row"
	OpRenameRow    = "rename_row"
	OpQueueField   = "queue_field"
	OpFlush        = "flush"
	OpTick         = "tick"
	OpFrame        = "frame"
)

// Assertion checks the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Row    string `yaml:"row,omitempty"`
	Column string `yaml:"column,omitempty"`

	// Value is the expected cell value (cell).
	Value any `yaml:"value,omitempty"`

	// Absent expects the cell or row to be missing (cell, row).
	Absent bool `yaml:"absent,omitempty"`

	// Count is the expected number of commits or diffs.
	Count int `yaml:"count,omitempty"`

	// Columns is the expected set of indexed columns, in any order.
	Columns []string `yaml:"columns,omitempty"`

	// Version is the expected column version.
	Version uint64 `yaml:"version,omitempty"`
}

// Assertion types.
const (
	AssertCell          = "cell"
	AssertRow           = "row"
	AssertCommitCount   = "commit_count"
	AssertDiffCount     = "diff_count"
	AssertIndexColumns  = "index_columns"
	AssertColumnVersion = "column_version"
	AssertConsistent    = "consistent"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i+1, err)
		}
	}
	return nil
}

func validateStep(s Step) error {
	switch s.Op {
	case OpAddRow, OpRemoveRow:
		if s.Row == "" {
			return fmt.Errorf("%s requires row", s.Op)
		}
	case OpUpdateField, OpQueueField:
		if s.Path == "" {
			return fmt.Errorf("%s requires path", s.Op)
		}
	case OpApplyPatches:
		if len(s.Patches) == 0 {
			return fmt.Errorf("apply_patches requires patches")
		}
	case OpRenameRow:
		if s.From == "" || s.To == "" {
			return fmt.Errorf("rename_row requires from and to")
		}
	case OpFlush, OpTick, OpFrame:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertCell:
		if a.Row == "" || a.Column == "" {
			return fmt.Errorf("cell requires row and column")
		}
	case AssertRow:
		if a.Row == "" {
			return fmt.Errorf("row requires row")
		}
	case AssertColumnVersion:
		if a.Column == "" {
			return fmt.Errorf("column_version requires column")
		}
	case AssertCommitCount, AssertDiffCount, AssertIndexColumns, AssertConsistent:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
