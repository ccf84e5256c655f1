package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/lavalog/internal/config"
	"github.com/roach88/lavalog/internal/section"
	"github.com/roach88/lavalog/internal/store"
)

// EnvPrefix prefixes the environment variables that stand in for global
// flags, e.g. LAVALOG_FORMAT=json.
const EnvPrefix = "LAVALOG"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string // explicit config file, otherwise .lavalog.yaml is searched

	v           *viper.Viper
	searchPaths []string
	clock       section.Clock
	ids         store.IDGenerator
	logger      *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lavalog CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.clock == nil {
		opts.clock = section.SystemClock{}
	}
	if opts.ids == nil {
		opts.ids = store.UUIDv7Generator{}
	}
	if opts.searchPaths == nil {
		opts.searchPaths = []string{"."}
		if home, err := os.UserHomeDir(); err == nil {
			opts.searchPaths = append(opts.searchPaths, home)
		}
	}
	opts.v = viper.New()

	cmd := &cobra.Command{
		Use:   "lavalog",
		Short: "lavalog - LAVA job log follower",
		Long: `Follow the log of a LAVA job and turn it into a GitLab CI transcript.

Lines are grouped into collapsible sections, split section markers are
repaired, every section is bounded by a timeout and known infrastructure
failures are reported so the job can be retried.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Format = opts.v.GetString("format")
			opts.Verbose = opts.v.GetBool("verbose")
			opts.ConfigPath = opts.v.GetString("config")

			// Validate format flag
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			opts.logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default: ./.lavalog.yaml or $HOME/.lavalog.yaml)")

	opts.v.SetEnvPrefix(EnvPrefix)
	opts.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opts.v.AutomaticEnv()
	for _, name := range []string{"verbose", "format", "config"} {
		_ = opts.v.BindPFlag(name, flags.Lookup(name))
	}

	// Add subcommands
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewFollowCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// newLogger writes diagnostics to w, never to the transcript.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Logger returns the diagnostic logger configured by the global flags.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.logger
}

// configFile resolves the config file to use. An empty path means none was
// given and none was found.
func (o *RootOptions) configFile() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}

	finder := viper.New()
	for _, dir := range o.searchPaths {
		finder.AddConfigPath(dir)
	}
	finder.SetConfigName(".lavalog")
	finder.SetConfigType("yaml")

	if err := finder.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to locate config: %w", err)
	}
	return finder.ConfigFileUsed(), nil
}

// loadConfig returns the validated configuration, or the defaults when no
// config file is in use.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	path, err := o.configFile()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if path == "" {
		return config.Default(), nil
	}

	o.Logger().Debug("loading config", "path", path)

	cfg, err := config.Load(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		return nil, WrapExitError(ExitFailure, fmt.Sprintf("invalid config %s", path), err)
	}
	return cfg, nil
}
