package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/lavalog/internal/config"
	"github.com/roach88/lavalog/internal/follower"
	"github.com/roach88/lavalog/internal/section"
	"github.com/roach88/lavalog/internal/testutil"
)

// Harness executes one scenario on a fake clock.
type Harness struct {
	follower *follower.Follower
	clock    *testutil.FakeClock
	console  bytes.Buffer
	result   *Result
}

// SectionStarted records the section id.
func (h *Harness) SectionStarted(s *section.Section) {
	h.result.Sections = append(h.result.Sections, s.ID)
}

// SectionFinished is a no-op.
func (h *Harness) SectionFinished(*section.Section) {}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Resolve budgets and create a follower on a fake clock at testutil.Epoch
// 2. For each step: advance the clock, feed the batch, validate the expect clause
// 3. Stop at the first fatal error
// 4. Close the follower and evaluate assertions against the full transcript
//
// An error is returned only when the scenario itself is unusable.
func Run(scenario *Scenario) (*Result, error) {
	cfg := config.Default()
	if scenario.Budgets != nil {
		var err error
		if cfg, err = config.FromFile(scenario.Budgets); err != nil {
			return nil, fmt.Errorf("invalid budgets: %w", err)
		}
	}

	h := &Harness{
		clock:  testutil.NewFakeClock(time.Time{}),
		result: NewResult(),
	}

	opts := []follower.Option{
		follower.WithClock(h.clock),
		follower.WithBudgets(cfg.Budgets),
		follower.WithNetworkIssueThreshold(cfg.NetworkIssueThreshold),
		follower.WithConsole(&h.console),
		follower.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in tests
		follower.WithSectionObserver(h),
	}

	if ss := scenario.StartSection; ss != nil {
		t, err := section.ParseType(ss.Type)
		if err != nil {
			return nil, fmt.Errorf("start_section: %w", err)
		}
		s := section.New(ss.ID, ss.Header, t, ss.Collapsed)
		s.Start(h.clock)
		opts = append(opts, follower.WithStartingSection(s))
	}

	f, err := follower.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create follower: %w", err)
	}
	h.follower = f

	for i, step := range scenario.Steps {
		if err := h.executeStep(i, step); err != nil {
			return nil, err
		}
		if h.result.Fatal != "" {
			break
		}
	}

	h.result.Transcript = append(h.result.Transcript, f.Close()...)
	h.result.Console = consoleLines(h.console.String())

	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

func (h *Harness) executeStep(i int, step Step) error {
	if step.Advance != "" {
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d].advance: %w", i, err)
		}
		h.clock.Advance(d)
	}

	healthy, feedErr := h.follower.Feed(step.Lines)
	out := h.follower.Flush()
	h.result.Transcript = append(h.result.Transcript, out...)

	fatal := fatalKind(feedErr)
	if feedErr != nil && fatal == "" {
		return fmt.Errorf("steps[%d]: %w", i, feedErr)
	}
	h.result.Fatal = fatal

	expect := step.Expect
	if expect == nil {
		expect = &Expect{}
	}

	if fatal != expect.Error {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected error %q, got %q (%v)", i, expect.Error, fatal, feedErr))
	}

	if expect.Healthy != nil && *expect.Healthy != healthy {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected healthy=%t, got %t", i, *expect.Healthy, healthy))
	}

	joined := strings.Join(out, "\n")
	for _, want := range expect.Contains {
		if !strings.Contains(joined, want) {
			h.result.AddError(fmt.Sprintf("steps[%d]: output does not contain %q", i, want))
		}
	}
	for _, unwanted := range expect.Excludes {
		if strings.Contains(joined, unwanted) {
			h.result.AddError(fmt.Sprintf("steps[%d]: output contains %q", i, unwanted))
		}
	}

	return nil
}

// fatalKind maps a Feed error onto the expect vocabulary.
func fatalKind(err error) string {
	var fe *follower.FatalError
	if !errors.As(err, &fe) {
		return ""
	}
	switch fe.Code {
	case follower.ErrCodeTimeout:
		return ExpectTimeout
	case follower.ErrCodeKnownIssue:
		return ExpectKnownIssue
	default:
		return string(fe.Code)
	}
}

func consoleLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
