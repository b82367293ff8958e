package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridkernel/internal/harness"
	"github.com/roach88/gridkernel/internal/journal"
	"github.com/roach88/gridkernel/internal/kernel"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter  string // glob on scenario file names
	Golden  string // directory of <name>.golden files
	Update  bool   // rewrite golden files
	Journal string // append commits to this journal
	Codec   string
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name    string                    `json:"name"`
	Pass    bool                      `json:"pass"`
	Commits int                       `json:"commits"`
	Diffs   int                       `json:"diffs"`
	Rows    map[string]map[string]any `json:"rows,omitempty"`
	Errors  []string                  `json:"errors,omitempty"`
}

// RunResult is the outcome of the run command.
type RunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml|dir>...",
		Short: "Run scenarios against the store",
		Long: `Run YAML scenarios against a fresh store each and check their assertions.

Directories are searched recursively for .yaml and .yml files. With --golden,
each trace is also compared with <dir>/<name>.golden; --update rewrites them.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  gridkernel run ./scenarios
  gridkernel run ./scenarios --filter "kernel_*" --golden ./golden
  gridkernel run ./scenarios --journal ./trace.db --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "append commits to a SQLite journal")
	cmd.Flags().StringVar(&opts.Codec, "codec", string(journal.CodecZstd), "journal payload codec (none|lz4|zstd)")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	var hopts []harness.Option
	if opts.Journal != "" {
		codec, err := journal.ParseCodec(opts.Codec)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid codec", err)
		}
		j, err := journal.Open(opts.Journal, journal.WithCodec(codec))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
		hopts = append(hopts, harness.WithCommitSink(j), harness.WithIDGenerator(kernel.UUIDv7Generator{}))
	}
	h := harness.New(slog.Default(), hopts...)

	result := RunResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := runOne(cmd, h, opts, file)
		if sr.Pass {
			result.Passed++
			out.Printf("✓ %s (%d commits, %d diffs)\n", sr.Name, sr.Commits, sr.Diffs)
		} else {
			result.Failed++
			out.Printf("✗ %s\n", sr.Name)
			for _, e := range sr.Errors {
				out.Printf("  %s\n", e)
			}
		}
		if opts.Verbose && sr.Rows != nil {
			out.Printf("  rows: %v\n", sr.Rows)
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if out.JSON() {
		if err := out.Success(result); err != nil {
			return err
		}
	} else if result.Total == 0 {
		out.Printf("No scenarios found.\n")
	} else {
		out.Printf("\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func runOne(cmd *cobra.Command, h *harness.Harness, opts *RunOptions, file string) ScenarioResult {
	s, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{Name: filepath.Base(file), Errors: []string{err.Error()}}
	}
	res, err := h.Run(cmd.Context(), s)
	if err != nil {
		return ScenarioResult{Name: s.Name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}

	sr := ScenarioResult{
		Name:    s.Name,
		Pass:    res.Pass,
		Commits: len(res.Commits),
		Diffs:   res.DiffCount(),
		Errors:  res.Errors,
	}
	if opts.Verbose {
		sr.Rows = res.Rows
	}
	if opts.Golden != "" {
		if err := checkGolden(opts, s.Name, res); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, err.Error())
		}
	}
	return sr
}

func checkGolden(opts *RunOptions, name string, res *harness.Result) error {
	data, err := harness.MarshalTrace(name, res)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	path := filepath.Join(opts.Golden, name+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return fmt.Errorf("create golden directory: %w", err)
		}
		return os.WriteFile(path, data, 0o644)
	}
	want, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("golden file missing: %s", path)
		}
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("trace differs from %s", path)
	}
	return nil
}

// findScenarioFiles returns root itself when it is a file, or every YAML
// file below it.
func findScenarioFiles(root, filter string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}
