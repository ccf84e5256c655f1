package follower

import (
	"io"
	"log/slog"
	"os"
	"regexp"

	"github.com/roach88/lavalog/internal/console"
	"github.com/roach88/lavalog/internal/logline"
	"github.com/roach88/lavalog/internal/section"
)

// kernelTimestamp matches the "[   12.345678] msg" prefix of kernel ring
// buffer lines.
var kernelTimestamp = regexp.MustCompile(`\[[\d\s]{5}\.[\d\s]{6}\] +\S{2,}`)

// SectionObserver is notified of every section transition.
type SectionObserver interface {
	SectionStarted(s *section.Section)
	SectionFinished(s *section.Section)
}

// Follower processes the log stream of one job.
//
// A Follower is not safe for concurrent use; exactly one caller feeds it.
type Follower struct {
	current  *section.Section
	budgets  section.Budgets
	registry section.Registry
	clock    section.Clock
	console  io.Writer
	logger   *slog.Logger
	observer SectionObserver

	networkIssueThreshold int

	buffer   []string
	repairer MarkerRepairer
	hints    *Hints
}

// Option configures a Follower.
type Option func(*Follower)

// WithStartingSection makes s the current section. s must already be started.
func WithStartingSection(s *section.Section) Option {
	return func(f *Follower) {
		f.current = s
	}
}

// WithBudgets sets the per-type section budgets.
func WithBudgets(b section.Budgets) Option {
	return func(f *Follower) {
		f.budgets = b
	}
}

// WithRegistry replaces the section detectors.
func WithRegistry(r section.Registry) Option {
	return func(f *Follower) {
		f.registry = r
	}
}

// WithClock sets the clock used for section timestamps and the watchdog.
func WithClock(c section.Clock) Option {
	return func(f *Follower) {
		f.clock = c
	}
}

// WithConsole sets where kernel dumps are printed. Defaults to os.Stdout.
func WithConsole(w io.Writer) Option {
	return func(f *Follower) {
		f.console = w
	}
}

// WithLogger sets the diagnostic logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Follower) {
		f.logger = l
	}
}

// WithNetworkIssueThreshold sets how many consecutive driver errors must
// precede an NFS timeout for it to count as a network failure.
func WithNetworkIssueThreshold(n int) Option {
	return func(f *Follower) {
		f.networkIssueThreshold = n
	}
}

// WithSectionObserver registers an observer for section transitions.
func WithSectionObserver(o SectionObserver) Option {
	return func(f *Follower) {
		f.observer = o
	}
}

// New creates a Follower.
//
// Returns ErrSectionNotStarted if a starting section was given that has not
// been started.
func New(opts ...Option) (*Follower, error) {
	f := &Follower{
		budgets:               section.DefaultBudgets(),
		registry:              section.DefaultRegistry(),
		clock:                 section.SystemClock{},
		console:               os.Stdout,
		logger:                slog.Default(),
		networkIssueThreshold: DefaultNetworkIssueThreshold,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.current != nil && !f.current.Started() {
		return nil, ErrSectionNotStarted
	}

	f.hints = NewHints(f.Phase, f.networkIssueThreshold)
	return f, nil
}

// Phase returns the type of the current section, or section.TypeUnknown.
func (f *Follower) Phase() section.Type {
	if f.current == nil {
		return section.TypeUnknown
	}
	return f.current.Type
}

// CurrentSection returns the open section, or nil.
func (f *Follower) CurrentSection() *section.Section {
	return f.current
}

// Hints returns the known-issue detector of this follower.
func (f *Follower) Hints() *Hints {
	return f.hints
}

// Feed processes a batch of lines in order.
//
// healthy is true when at least one line was not a kernel dump, meaning the
// device under test is still producing output. A *FatalError is returned when
// the open section timed out (checked before any line is processed) or a
// known issue was detected.
func (f *Follower) Feed(lines []logline.LogLine) (healthy bool, err error) {
	if err := f.watchdog(); err != nil {
		return false, err
	}

	for _, line := range lines {
		if f.detectKernelDump(line) {
			continue
		}

		healthy = true
		f.manageSections(line)
		if parsed := f.parseLine(&line); parsed != "" {
			f.buffer = append(f.buffer, parsed)
		}
	}

	if err := f.hints.DetectFailure(lines); err != nil {
		f.logger.Warn("known issue detected", "phase", f.Phase().String(), "error", err)
		return healthy, err
	}

	return healthy, nil
}

// Flush returns the buffered output and clears the buffer.
func (f *Follower) Flush() []string {
	out := f.buffer
	f.buffer = nil
	return out
}

// Close finishes the current section and returns the remaining output,
// including an opening marker half that never got its continuation.
func (f *Follower) Close() []string {
	if held, ok := f.repairer.Drain(); ok {
		f.buffer = append(f.buffer, held)
	}
	f.clearCurrentSection()
	return f.Flush()
}

func (f *Follower) watchdog() error {
	if f.current == nil {
		return nil
	}

	budget := f.budgets.For(f.current.Type)
	if elapsed := f.current.Elapsed(f.clock); elapsed > budget {
		f.logger.Warn("section timed out",
			"section", f.current.ID,
			"type", f.current.Type.String(),
			"elapsed", elapsed,
			"budget", budget,
		)
		return NewTimeoutError(f.current, budget)
	}
	return nil
}

// detectKernelDump prints kernel output straight to the console.
// Kernel lines interleave with everything else and would corrupt sections.
// A list message is only a dump at debug level.
func (f *Follower) detectKernelDump(line logline.LogLine) bool {
	switch line.Message.Kind {
	case logline.KindList:
		if line.Level != logline.LevelDebug {
			return false
		}
		for _, l := range line.Message.Lines {
			f.printLog(l)
		}
		return true
	case logline.KindText:
		if kernelTimestamp.MatchString(line.Message.Text) {
			f.printLog(line.Message.Text)
			return true
		}
	}
	return false
}

func (f *Follower) printLog(msg string) {
	console.PrintLog(f.console, f.clock.Now(), console.Bold+msg+console.Reset)
}

func (f *Follower) manageSections(line logline.LogLine) {
	if s := f.registry.Detect(line, f.budgets); s != nil {
		f.updateSection(s)
	}
}

// updateSection switches to s. The same boundary may be logged more than
// once (kmsg and stdout interleave), so a section with the current id is
// ignored.
func (f *Follower) updateSection(s *section.Section) {
	if f.current != nil && f.current.ID == s.ID {
		f.logger.Debug("redundant section boundary", "section", s.ID)
		return
	}

	f.clearCurrentSection()
	f.current = s
	f.buffer = append(f.buffer, s.Start(f.clock))
	f.logger.Debug("section started", "section", s.ID, "type", s.Type.String())

	if f.observer != nil {
		f.observer.SectionStarted(s)
	}
}

func (f *Follower) clearCurrentSection() {
	if f.current == nil || f.current.Finished() {
		return
	}

	s := f.current
	f.buffer = append(f.buffer, s.End(f.clock))
	f.current = nil
	f.logger.Debug("section finished", "section", s.ID, "elapsed", s.Elapsed(f.clock))

	if f.observer != nil {
		f.observer.SectionFinished(s)
	}
}

// parseLine formats line for the transcript. "" means nothing to output.
func (f *Follower) parseLine(line *logline.LogLine) string {
	prefix, suffix := "", ""

	switch line.Level {
	case logline.LevelResults, logline.LevelFeedback, logline.LevelDebug:
		return ""
	case logline.LevelWarning, logline.LevelError:
		prefix, suffix = console.FgRed, console.Reset
	case logline.LevelInput:
		prefix = "$ "
	case logline.LevelTarget:
		if recovered, ok := f.repairer.Process(line); ok {
			f.buffer = append(f.buffer, recovered)
		}
	default:
		if !line.Level.Known() {
			f.logger.Debug("unformatted level", "level", string(line.Level))
		}
	}

	msg := line.Message.String()
	if msg == "" && prefix == "" && suffix == "" {
		return ""
	}
	return prefix + msg + suffix
}
