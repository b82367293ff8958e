package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/gridkernel/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Label    string
	Column   string
	After    int64
	Limit    int
}

// TraceResult is the JSON payload of the trace command.
type TraceResult struct {
	Total   int             `json:"total"`
	LastSeq int64           `json:"last_seq"`
	Commits []journal.Entry `json:"commits"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List journaled commits",
		Long: `List commits recorded in a journal, oldest first.

Filters combine: --column keeps commits that touched the column, --label keeps
one commit label, --after skips commits up to a sequence number.

Examples:
  gridkernel trace --db ./trace.db
  gridkernel trace --db ./trace.db --column price --limit 20
  gridkernel trace --db ./trace.db --label kernel -v
  gridkernel trace --db ./trace.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Label, "label", "", "only commits with this label")
	cmd.Flags().StringVar(&opts.Column, "column", "", "only commits touching this column")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only commits after this sequence number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of commits (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := formatter(cmd, opts.RootOptions)

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	entries, err := j.List(ctx, journal.Filter{
		Column:   opts.Column,
		Label:    opts.Label,
		AfterSeq: opts.After,
		Limit:    opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list commits", err)
	}
	total, err := j.Count(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count commits", err)
	}
	last, err := j.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read last sequence", err)
	}

	if out.JSON() {
		return out.Success(TraceResult{Total: total, LastSeq: last, Commits: entries})
	}

	if len(entries) == 0 {
		out.Printf("No commits found.\n")
		return nil
	}
	for _, e := range entries {
		out.Printf("#%d %s %s actions=%d diffs=%d rows=%d codec=%s\n",
			e.Seq, e.ID, e.Label, e.ActionCount, len(e.Diffs), e.RowCount, e.Codec)
		if opts.Verbose {
			for _, d := range e.Diffs {
				out.Printf("    %s\n", d)
			}
		}
	}
	out.Printf("\n%d of %d commits shown\n", len(entries), total)
	return nil
}
