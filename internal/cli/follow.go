package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/lavalog/internal/feed"
	"github.com/roach88/lavalog/internal/tail"
)

// FollowOptions holds flags for the follow command.
type FollowOptions struct {
	*RootOptions
	Database string
	Idle     time.Duration
	Poll     time.Duration
	FromEnd  bool
}

// NewFollowCommand creates the follow command.
func NewFollowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FollowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "follow <log-file>",
		Short: "Follow a growing job log",
		Long: `Follow a LAVA job log while the dispatcher appends to it.

Every record written to the file is fed to the follower and the transcript
is printed as it grows. Following stops when a section times out, a known
issue is detected, the file is removed, no output arrives for --idle or the
process is interrupted.

Exit codes:
  0 - The log ended normally
  1 - A section timed out, the job went silent or was interrupted
  2 - Command error (file not found, etc.)
  3 - A known infrastructure issue was detected, retry the job

Examples:
  lavalog follow ./job-1234.yaml
  lavalog follow ./job-1234.yaml --idle 10m --db ./lavalog.db
  lavalog follow ./job-1234.yaml --from-end`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runFollow(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().DurationVar(&opts.Idle, "idle", 0, "stop when no healthy output arrives for this long (0 disables)")
	cmd.Flags().DurationVar(&opts.Poll, "poll", tail.DefaultPollInterval, "fallback poll interval")
	cmd.Flags().BoolVar(&opts.FromEnd, "from-end", false, "skip what is already in the file")

	return cmd
}

func runFollow(ctx context.Context, opts *FollowOptions, path string, cmd *cobra.Command) error {
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "failed to open log", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	s, err := newSession(ctx, opts.RootOptions, cfg, path, opts.Database, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	q := feed.NewQueue()

	tailOpts := []tail.Option{
		tail.WithLogger(opts.Logger()),
		tail.WithPollInterval(opts.Poll),
	}
	if opts.FromEnd {
		tailOpts = append(tailOpts, tail.FromEnd())
	}
	tailer := tail.New(path, q, tailOpts...)

	pump := feed.NewPump(q, s.follower, s.sink,
		feed.WithIdleTimeout(opts.Idle),
		feed.WithPumpLogger(opts.Logger()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tailer.Run(gctx)
	})
	g.Go(func() error {
		return pump.Run(gctx)
	})
	runErr := g.Wait()

	report, exitErr := s.finish(ctx, runErr, pump.Stats())
	report.Skipped = tailer.Skipped()
	return writeReport(cmd.OutOrStdout(), opts.RootOptions, report, exitErr)
}
