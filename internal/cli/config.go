package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lavalog/internal/config"
	"github.com/roach88/lavalog/internal/console"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the follower configuration",
		Long: `Inspect section timeouts and hint thresholds.

Without a file argument the config in use is inspected: --config,
LAVALOG_CONFIG, ./.lavalog.yaml or $HOME/.lavalog.yaml, otherwise the
built-in defaults.`,
	}

	cmd.AddCommand(newConfigShowCommand(rootOpts))
	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	return cmd
}

func newConfigShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [file]",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration with every default filled in.

Lines containing HIDEME are left out.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFor(opts, args)
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: cfg.File()})
			}

			data, err := cfg.Marshal()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to render config", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), console.HideSensitiveData(string(data), "HIDEME"))
			return nil
		},
	}
}

func newConfigValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file against the schema.

Exit codes:
  0 - The configuration is valid
  1 - The configuration is invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := configFor(opts, args)
			if err != nil {
				var exitErr *ExitError
				if opts.Format == "json" && errors.As(err, &exitErr) && exitErr.Code == ExitFailure {
					if werr := writeJSON(cmd.OutOrStdout(), CLIResponse{
						Status: "error",
						Error: &CLIError{
							Code:    "E_INVALID_CONFIG",
							Message: exitErr.Message,
							Details: validationDetails(err),
						},
					}); werr != nil {
						return werr
					}
				}
				return err
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: map[string]bool{"valid": true}})
			}
			fmt.Fprintln(cmd.OutOrStdout(), styleOK.Render("✓ Configuration is valid"))
			return nil
		},
	}
}

// configFor loads the file named in args, or the config in use.
func configFor(opts *RootOptions, args []string) (*config.Config, error) {
	if len(args) == 1 {
		local := *opts
		local.ConfigPath = args[0]
		return local.loadConfig()
	}
	return opts.loadConfig()
}

func validationDetails(err error) string {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return verr.Details
	}
	return err.Error()
}
