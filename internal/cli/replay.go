package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lavalog/internal/feed"
	"github.com/roach88/lavalog/internal/logline"
)

// DefaultReplayBatch is how many records replay feeds at once, about what
// one poll of a running job returns.
const DefaultReplayBatch = 50

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Batch    int
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <log-file>",
		Short: "Replay a recorded job log",
		Long: `Replay a recorded LAVA job log through the follower.

The log is read completely, fed in batches and the resulting transcript is
printed. Section timeouts are measured on the wall clock, so a replay only
times out if the log itself stalls the follower.

Exit codes:
  0 - The log ended normally
  1 - A section timed out or the job failed
  2 - Command error (file not found, malformed log, etc.)
  3 - A known infrastructure issue was detected, retry the job

Examples:
  lavalog replay ./job-1234.yaml
  lavalog replay ./job-1234.yaml --batch 1
  lavalog replay ./job-1234.yaml --db ./lavalog.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().IntVar(&opts.Batch, "batch", DefaultReplayBatch, "records fed per batch")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, path string, cmd *cobra.Command) error {
	if opts.Batch < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid batch size %d: must be at least 1", opts.Batch))
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open log", err)
	}
	defer f.Close()

	lines, err := logline.Decode(f)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to decode %s", path), err)
	}
	opts.Logger().Debug("decoded log", "path", path, "records", len(lines))

	s, err := newSession(ctx, opts.RootOptions, cfg, path, opts.Database, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	q := feed.NewQueue()
	for start := 0; start < len(lines); start += opts.Batch {
		end := min(start+opts.Batch, len(lines))
		q.Enqueue(lines[start:end])
	}
	q.Close()

	pump := feed.NewPump(q, s.follower, s.sink, feed.WithPumpLogger(opts.Logger()))
	runErr := pump.Run(ctx)

	report, exitErr := s.finish(ctx, runErr, pump.Stats())
	return writeReport(cmd.OutOrStdout(), opts.RootOptions, report, exitErr)
}
