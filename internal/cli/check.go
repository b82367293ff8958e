package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/gridkernel/internal/config"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <config.yaml>",
		Short: "Validate a store configuration",
		Long: `Validate a configuration file and print it with defaults filled in.

Exit codes:
  0 - Configuration is valid
  1 - Configuration is invalid
  2 - File could not be read`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := formatter(cmd, opts)

	cfg, err := config.Load(path)
	if err != nil {
		var ce *config.Error
		if errors.As(err, &ce) {
			if out.JSON() {
				_ = out.Error("INVALID_CONFIG", ce.Message, map[string]string{"field": ce.Field})
			}
			return WrapExitError(ExitFailure, "invalid config", err)
		}
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if out.JSON() {
		return out.Success(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode config", err)
	}
	out.Printf("%s", data)
	return nil
}
