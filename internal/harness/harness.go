package harness

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gridkernel/internal/config"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/kernel"
	"github.com/roach88/gridkernel/internal/sched"
	"github.com/roach88/gridkernel/internal/table"
	"github.com/roach88/gridkernel/internal/testutil"
)

// TraceCommit is the serialized form of one delivered commit.
type TraceCommit struct {
	Seq         int64            `json:"seq"`
	ID          string           `json:"id"`
	Label       string           `json:"label"`
	ActionCount int              `json:"action_count"`
	Diffs       []diff.FieldDiff `json:"diffs"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when no assertion failed and the guard stayed quiet.
	Pass bool `json:"pass"`

	// Commits lists delivered commits in order.
	Commits []TraceCommit `json:"commits"`

	// Batches counts diff batches delivered to compute listeners.
	Batches int `json:"batches"`

	// Rows is the final committed snapshot.
	Rows map[string]map[string]any `json:"rows"`

	// Index is the final column index contents.
	Index map[string]map[string]any `json:"index"`

	// Versions maps column to its final version.
	Versions map[string]uint64 `json:"versions"`

	// Errors lists failed assertions and guard violations.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Commits: []TraceCommit{}}
}

// AddError records a failure.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// DiffCount returns the number of diffs across all commits.
func (r *Result) DiffCount() int {
	n := 0
	for _, c := range r.Commits {
		n += len(c.Diffs)
	}
	return n
}

// Harness runs scenarios with deterministic commit numbering. The clock
// and ID generator are rewound before every run.
type Harness struct {
	clock  *testutil.Clock
	ids    *testutil.IDs
	gen    kernel.IDGenerator
	sink   table.CommitSink
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithCommitSink also hands every commit to sink, typically a journal.
func WithCommitSink(sink table.CommitSink) Option {
	return func(h *Harness) {
		h.sink = sink
	}
}

// WithIDGenerator replaces the sequential commit IDs. Use it when commits
// from several runs share one journal, where IDs must stay unique.
func WithIDGenerator(g kernel.IDGenerator) Option {
	return func(h *Harness) {
		h.gen = g
	}
}

// New creates a harness. A nil logger uses slog.Default().
func New(logger *slog.Logger, opts ...Option) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Harness{
		clock:  testutil.NewClock(0),
		ids:    testutil.NewIDs("commit"),
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.gen == nil {
		h.gen = h.ids
	}
	return h
}

// Run executes a scenario on a fresh store with a new harness.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	return New(nil).Run(ctx, s)
}

// Run executes a scenario. An error means the scenario could not run at
// all; failed assertions are reported in Result.Errors.
func (h *Harness) Run(ctx context.Context, s *Scenario) (*Result, error) {
	cfg, err := scenarioConfig(s.Config)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	h.clock.Reset()
	h.ids.Reset()
	res := NewResult()
	var rec testutil.Recorder

	loop := sched.NewLoop(sched.WithManualFrames())
	defer loop.Close()

	opts := []table.Option{
		table.WithLoop(loop),
		table.WithClock(h.clock),
		table.WithIDGenerator(h.gen),
		table.WithViolationHook(func(err error) {
			h.logger.Warn("guard violation", "scenario", s.Name, "error", err)
			res.AddError(err.Error())
		}),
	}
	if h.sink != nil {
		opts = append(opts, table.WithCommitSink(h.sink))
	}
	st, err := table.New(ctx, cfg, s.Rows, opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	defer st.Close()

	st.Subscribe(rec.OnCommit)
	st.SubscribeCompute(rec.OnBatch)

	for i, step := range s.Steps {
		h.logger.Debug("step", "scenario", s.Name, "index", i+1, "op", step.Op)
		apply(st, step)
	}
	settle(loop)

	for _, c := range rec.Commits() {
		res.Commits = append(res.Commits, traceCommit(c))
	}
	res.Batches = len(rec.Batches())
	res.Rows = st.Rows().ToMap()
	res.Index, err = st.IndexSnapshotContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: index snapshot: %w", s.Name, err)
	}
	res.Versions = make(map[string]uint64)
	for col, v := range st.Versions().Snapshot() {
		res.Versions[col] = v.Version
	}

	for _, a := range s.Assertions {
		if err := evaluate(st, res, a); err != nil {
			res.AddError(err.Error())
		}
	}
	return res, nil
}

// scenarioConfig round-trips the override map through the config loader,
// so scenarios get the same defaults and validation as config files.
func scenarioConfig(overrides map[string]any) (config.Config, error) {
	if len(overrides) == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(overrides)
	if err != nil {
		return config.Config{}, fmt.Errorf("encode config overrides: %w", err)
	}
	return config.Parse(data)
}

const maxSettleTurns = 64

func sources(s string) []diff.Source {
	if s == "" {
		return nil
	}
	return []diff.Source{diff.Source(s)}
}

func apply(st *table.Store, step Step) {
	switch step.Op {
	case OpAddRow:
		st.AddRow(step.Row, step.Values)
	case OpUpdateField:
		st.UpdateField(step.Path, step.Value, sources(step.Source)...)
	case OpApplyPatches:
		st.ApplyPatches(step.Patches, sources(step.Source)...)
	case OpRemoveRow:
		st.RemoveRow(step.Row)
	case OpRenameRow:
		st.RenameRow(step.From, step.To)
	case OpQueueField:
		st.QueueField(step.Path, step.Value)
	case OpFlush:
		st.FlushNow()
	case OpTick:
		st.Loop().RunPending()
	case OpFrame:
		st.Loop().Tick()
		st.Loop().RunPending()
	}
}

// settle runs turns and frames until the loop is idle, giving up after
// maxSettleTurns in case work keeps rescheduling itself.
func settle(loop *sched.Loop) {
	for i := 0; i < maxSettleTurns && loop.Pending() > 0; i++ {
		loop.RunPending()
		loop.Tick()
	}
}

func traceCommit(c kernel.Commit) TraceCommit {
	return TraceCommit{
		Seq:         c.Seq,
		ID:          c.ID,
		Label:       c.Label,
		ActionCount: c.ActionCount,
		Diffs:       c.Diffs,
	}
}
