package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lavalog/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
}

// RunDetail is a run with its sections, as shown by history --run.
type RunDetail struct {
	store.Run
	SectionList []store.SectionRecord `json:"section_list"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `List the runs recorded by replay or follow with --db, newest first.

With --run, show the sections of one run and how long each of them took.

Examples:
  lavalog history --db ./lavalog.db
  lavalog history --db ./lavalog.db --limit 5
  lavalog history --db ./lavalog.db --run 0190f5c2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the sections of this run")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID != "" {
		run, err := st.GetRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return NewExitError(ExitFailure, fmt.Sprintf("run %s not found", opts.RunID))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		sections, err := st.ReadSections(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read sections", err)
		}

		detail := RunDetail{Run: run, SectionList: sections}
		if opts.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: detail})
		}
		outputRunText(cmd, detail)
		return nil
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: runs})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintln(w, styleHeading.Render(fmt.Sprintf("%d run(s)", len(runs))))
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-11s  %s  %3d sections  %8s  %s\n",
			r.ID,
			outcomeStyle(r.Outcome).Render(string(r.Outcome)),
			r.StartedAt.Format(time.DateTime),
			r.Sections,
			formatDuration(r.Duration()),
			r.Source,
		)
	}
	return nil
}

func outputRunText(cmd *cobra.Command, d RunDetail) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "%s %s\n", styleHeading.Render("Run "+d.ID), outcomeStyle(d.Outcome).Render(string(d.Outcome)))
	fmt.Fprintf(w, "  source:   %s\n", d.Source)
	fmt.Fprintf(w, "  started:  %s\n", d.StartedAt.Format(time.DateTime))
	if !d.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  duration: %s\n", formatDuration(d.Duration()))
	}
	if d.Reason != "" {
		fmt.Fprintf(w, "  reason:   %s\n", d.Reason)
	}

	if len(d.SectionList) == 0 {
		fmt.Fprintln(w, styleMuted.Render("  no sections"))
		return
	}
	fmt.Fprintln(w)
	for _, s := range d.SectionList {
		took := styleMuted.Render("open")
		if !s.FinishedAt.IsZero() {
			took = s.Duration().Round(time.Second).String()
		}
		fmt.Fprintf(w, "  %3d  %-12s  %-30s  %8s  %s\n", s.Seq, s.Type, s.SectionID, took, s.Header)
	}
}

// formatDuration rounds to seconds; "-" means the run is still going.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
