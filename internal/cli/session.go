package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/lavalog/internal/config"
	"github.com/roach88/lavalog/internal/feed"
	"github.com/roach88/lavalog/internal/follower"
	"github.com/roach88/lavalog/internal/store"
)

// RunReport is what replay and follow report once the job log ended.
type RunReport struct {
	RunID   string        `json:"run_id,omitempty"`
	Source  string        `json:"source"`
	Outcome store.Outcome `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
	Batches int           `json:"batches"`
	Lines   int           `json:"lines"`
	Skipped int           `json:"skipped,omitempty"`
	Reboots int           `json:"reboots,omitempty"`

	// NetworkErrors is the run of r8152 driver errors still pending when
	// the log ended.
	NetworkErrors int `json:"network_errors,omitempty"`

	Transcript []string `json:"transcript,omitempty"`
}

// session wires one follower run: the transcript sink, the console for
// direct prints and the optional run history.
type session struct {
	opts   *RootOptions
	source string

	follower *follower.Follower
	sink     io.Writer
	captured *bytes.Buffer

	db       *store.Store
	runID    string
	recorder *store.Recorder
}

// newSession opens the history database when dbPath is set and creates the
// follower. In json mode the transcript is captured for the report and
// direct console prints go to stderr.
func newSession(ctx context.Context, opts *RootOptions, cfg *config.Config, source, dbPath string, stdout, stderr io.Writer) (*session, error) {
	s := &session{opts: opts, source: source, sink: stdout}

	console := stdout
	if opts.Format == "json" {
		s.captured = &bytes.Buffer{}
		s.sink = s.captured
		console = stderr
	}

	followerOpts := []follower.Option{
		follower.WithBudgets(cfg.Budgets),
		follower.WithNetworkIssueThreshold(cfg.NetworkIssueThreshold),
		follower.WithClock(opts.clock),
		follower.WithConsole(console),
		follower.WithLogger(opts.Logger()),
	}

	if dbPath != "" {
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		s.db = db
		s.runID = opts.ids.Generate()

		if err := db.StartRun(ctx, s.runID, source, opts.clock.Now()); err != nil {
			db.Close()
			return nil, WrapExitError(ExitCommandError, "failed to record run", err)
		}
		s.recorder = store.NewRecorder(ctx, db, s.runID, opts.Logger())
		followerOpts = append(followerOpts, follower.WithSectionObserver(s.recorder))
	}

	f, err := follower.New(followerOpts...)
	if err != nil {
		s.closeDB()
		return nil, WrapExitError(ExitCommandError, "failed to create follower", err)
	}
	s.follower = f
	return s, nil
}

// finish records the outcome of runErr and builds the report. The returned
// error carries the exit code of the outcome.
func (s *session) finish(ctx context.Context, runErr error, stats feed.Stats) (*RunReport, *ExitError) {
	outcome, exitErr := classify(runErr)

	report := &RunReport{
		RunID:   s.runID,
		Source:  s.source,
		Outcome: outcome,
		Batches: stats.Batches,
		Lines:   stats.Lines,
	}
	hints := s.follower.Hints()
	report.Reboots = hints.Reboots()
	report.NetworkErrors = hints.NetworkErrors()
	if runErr != nil {
		report.Reason = runErr.Error()
	}
	if s.captured != nil {
		report.Transcript = splitLines(s.captured.String())
	}

	if s.db != nil {
		defer s.closeDB()

		if err := s.recorder.Err(); err != nil {
			s.opts.Logger().Warn("section history incomplete", "run_id", s.runID, "error", err)
		}
		// The run context may already be cancelled by an interrupt.
		if err := s.db.FinishRun(context.WithoutCancel(ctx), s.runID, outcome, report.Reason, s.opts.clock.Now()); err != nil {
			if exitErr == nil {
				exitErr = WrapExitError(ExitCommandError, "failed to record run outcome", err)
			}
			s.opts.Logger().Error("failed to record run outcome", "run_id", s.runID, "error", err)
		}
	}

	return report, exitErr
}

func (s *session) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.opts.Logger().Warn("failed to close database", "error", err)
	}
	s.db = nil
}

// writeReport prints the report and returns the command error.
func writeReport(w io.Writer, opts *RootOptions, report *RunReport, exitErr *ExitError) error {
	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: report}
		if exitErr != nil {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    errorCode(report.Outcome),
				Message: exitErr.Message,
				Details: report.Reason,
			}
		}
		if err := writeJSON(w, response); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s: %d lines in %d batches\n",
			outcomeStyle(report.Outcome).Render(strings.ToUpper(string(report.Outcome))),
			report.Source, report.Lines, report.Batches)
		if report.Skipped > 0 {
			fmt.Fprintln(w, styleMuted.Render(fmt.Sprintf("  %d malformed lines skipped", report.Skipped)))
		}
		if report.Reason != "" {
			fmt.Fprintf(w, "  %s\n", report.Reason)
		}
		if report.RunID != "" {
			fmt.Fprintln(w, styleMuted.Render("  run "+report.RunID))
		}
	}

	if exitErr != nil {
		return exitErr
	}
	return nil
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
