package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/gridkernel/internal/diff"
)

// TraceSnapshot is the golden form of a run: every commit plus the final
// rows.
type TraceSnapshot struct {
	ScenarioName string
	Commits      []TraceCommit
	Rows         map[string]map[string]any
}

func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	commits := make([]any, len(s.Commits))
	for i, c := range s.Commits {
		commits[i] = map[string]any{
			"seq":          c.Seq,
			"id":           c.ID,
			"label":        c.Label,
			"action_count": c.ActionCount,
			"diffs":        c.Diffs,
		}
	}
	rows := make(map[string]any, len(s.Rows))
	for k, r := range s.Rows {
		rows[k] = r
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"commits":       commits,
		"rows":          rows,
	}
}

// MarshalTrace renders a result as canonical JSON.
func MarshalTrace(name string, res *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Commits: res.Commits, Rows: res.Rows}
	return diff.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden runs a scenario, fails the test on assertion errors and
// compares the trace with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	res, err := Run(context.Background(), s)
	if err != nil {
		return nil, err
	}
	for _, msg := range res.Errors {
		t.Errorf("%s: %s", s.Name, msg)
	}
	return res, AssertGolden(t, s.Name, res)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, res *Result) error {
	t.Helper()

	data, err := MarshalTrace(name, res)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
