package cli

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/gridkernel/internal/config"
	"github.com/roach88/gridkernel/internal/diff"
	"github.com/roach88/gridkernel/internal/journal"
	"github.com/roach88/gridkernel/internal/kernel"
	"github.com/roach88/gridkernel/internal/metrics"
	"github.com/roach88/gridkernel/internal/sched"
	"github.com/roach88/gridkernel/internal/table"
)

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Config  string
	Mode    string
	Rows    int
	Cols    int
	Rounds  int
	Journal string
	Metrics bool
}

// BenchResult is the outcome of one benchmark run.
type BenchResult struct {
	Mode          string             `json:"mode"`
	Rows          int                `json:"rows"`
	Cols          int                `json:"cols"`
	Rounds        int                `json:"rounds"`
	Commits       int64              `json:"commits"`
	Diffs         int64              `json:"diffs"`
	Elapsed       time.Duration      `json:"elapsed_ns"`
	DiffsPerSec   float64            `json:"diffs_per_sec"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	JournalLength int                `json:"journal_length,omitempty"`
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive rows x columns of updates through the store",
		Long: `Drive --rounds rounds of updates to every cell of a --rows x --cols grid.

Each round runs as one loop task, so with the default deferred cadence the
kernel folds a round into a single commit. Direct mode commits every write.

Examples:
  gridkernel bench --rows 1000 --cols 20 --rounds 10
  gridkernel bench --mode direct --metrics
  gridkernel bench --config ./store.yaml --journal ./bench.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "store configuration file")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "override mode (kernel|direct)")
	cmd.Flags().IntVar(&opts.Rows, "rows", 100, "number of rows")
	cmd.Flags().IntVar(&opts.Cols, "cols", 10, "number of columns")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 10, "update rounds")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "append commits to a SQLite journal (overrides config)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "collect Prometheus metrics and report them")

	return cmd
}

func runBench(opts *BenchOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)
	if opts.Rows <= 0 || opts.Cols <= 0 || opts.Rounds <= 0 {
		return NewExitError(ExitCommandError, "--rows, --cols and --rounds must be positive")
	}

	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if opts.Mode != "" {
		mode := config.Mode(opts.Mode)
		if mode != config.ModeKernel && mode != config.ModeDirect {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid mode %q", opts.Mode))
		}
		cfg.Mode = mode
	}
	if opts.Journal != "" {
		cfg.Journal.Path = opts.Journal
	}
	frame, err := cfg.FrameDuration()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid frame interval", err)
	}

	loop := sched.NewLoop(sched.WithFrameInterval(frame))
	topts := []table.Option{table.WithLoop(loop)}

	var j *journal.Journal
	if cfg.Journal.Path != "" {
		codec, err := journal.ParseCodec(cfg.Journal.Codec)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid journal codec", err)
		}
		j, err = journal.Open(cfg.Journal.Path, journal.WithCodec(codec))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
		last, err := j.LastSeq(cmd.Context())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		topts = append(topts, table.WithCommitSink(j), table.WithClock(kernel.NewClockAt(last)))
	}

	var reg *prometheus.Registry
	if opts.Metrics || cfg.Metrics {
		reg = prometheus.NewRegistry()
		m := metrics.New()
		if err := m.Register(reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
		topts = append(topts, table.WithMetrics(m))
	}

	ctx := cmd.Context()
	st, err := table.New(ctx, cfg, nil, topts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build store", err)
	}
	defer st.Close()

	var commits, diffs atomic.Int64
	st.Subscribe(func(c kernel.Commit) {
		commits.Add(1)
		diffs.Add(int64(len(c.Diffs)))
	})

	out.VerboseLog("bench: mode=%s rows=%d cols=%d rounds=%d", cfg.Mode, opts.Rows, opts.Cols, opts.Rounds)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		for round := range opts.Rounds {
			if !loop.Post(func() { writeRound(st, opts.Rows, opts.Cols, round) }) {
				return fmt.Errorf("loop closed before round %d", round)
			}
		}
		// Runs after the last round: frame-aligned work is flushed, then
		// the loop stops.
		loop.Post(func() {
			st.FlushNow()
			loop.Close()
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "bench failed", err)
	}
	elapsed := time.Since(start)

	res := BenchResult{
		Mode:    string(cfg.Mode),
		Rows:    opts.Rows,
		Cols:    opts.Cols,
		Rounds:  opts.Rounds,
		Commits: commits.Load(),
		Diffs:   diffs.Load(),
		Elapsed: elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		res.DiffsPerSec = float64(res.Diffs) / secs
	}
	if reg != nil {
		res.Metrics, err = gatherTotals(reg)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to gather metrics", err)
		}
	}
	if j != nil {
		res.JournalLength, err = j.Count(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to count journal", err)
		}
	}

	if out.JSON() {
		return out.Success(res)
	}
	out.Printf("mode:     %s\n", res.Mode)
	out.Printf("grid:     %d rows x %d cols, %d rounds\n", res.Rows, res.Cols, res.Rounds)
	out.Printf("commits:  %d\n", res.Commits)
	out.Printf("diffs:    %d\n", res.Diffs)
	out.Printf("elapsed:  %s (%.0f diffs/s)\n", res.Elapsed, res.DiffsPerSec)
	if j != nil {
		out.Printf("journal:  %d commits\n", res.JournalLength)
	}
	for _, name := range slices.Sorted(maps.Keys(res.Metrics)) {
		out.Printf("%s %g\n", name, res.Metrics[name])
	}
	return nil
}

// writeRound sets every cell of the grid to round+1.
func writeRound(st *table.Store, rows, cols, round int) {
	for r := range rows {
		rowKey := fmt.Sprintf("r%05d", r)
		for c := range cols {
			st.UpdateField(diff.CellPath(rowKey, fmt.Sprintf("c%03d", c)), round+1)
		}
	}
}

// gatherTotals sums every sample per metric family: counter and gauge
// values, histogram sample counts.
func gatherTotals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = sum
	}
	return out, nil
}
