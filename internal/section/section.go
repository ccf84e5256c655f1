package section

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/lavalog/internal/console"
)

// Escape clears the line before a marker; GitLab requires it in front of
// both halves of the marker.
const Escape = "\x1b[0K"

// headerColour is applied to section headers in start markers.
const headerColour = console.Bold + console.FgGreen

// idDisallowed matches the characters GitLab does not accept in section ids.
var idDisallowed = regexp.MustCompile(`[^\pL\pN_-]+`)

// FilterID normalizes id to NFC and replaces every run of characters other
// than letters, digits, '_' and '-' with a single '-'.
func FilterID(id string) string {
	return idDisallowed.ReplaceAllString(norm.NFC.String(id), "-")
}

// Section is one collapsible region of the transcript.
//
// A Section is created unstarted; Start records its start time and returns
// the start marker, End records its end time and returns the end marker.
type Section struct {
	ID        string
	Header    string
	Type      Type
	Collapsed bool

	start time.Time
	end   time.Time
}

// New creates an unstarted section. The id is passed through FilterID.
func New(id, header string, t Type, collapsed bool) *Section {
	return &Section{
		ID:        FilterID(id),
		Header:    header,
		Type:      t,
		Collapsed: collapsed,
	}
}

// Started reports whether Start has been called.
func (s *Section) Started() bool { return !s.start.IsZero() }

// Finished reports whether End has been called.
func (s *Section) Finished() bool { return !s.end.IsZero() }

// StartTime returns the time Start was called, or the zero time.
func (s *Section) StartTime() time.Time { return s.start }

// EndTime returns the time End was called, or the zero time.
func (s *Section) EndTime() time.Time { return s.end }

// Start marks the section as started and returns its start marker.
//
// Panics if the section has already finished.
func (s *Section) Start(clock Clock) string {
	if s.Finished() {
		panic(fmt.Sprintf("section %s: starting an already finished section", s.ID))
	}
	s.start = clock.Now()
	return s.marker("start", s.Header, s.start)
}

// End marks the section as finished and returns its end marker.
// The end time never precedes the start time.
//
// Panics if the section was never started.
func (s *Section) End(clock Clock) string {
	if !s.Started() {
		panic(fmt.Sprintf("section %s: ending an uninitialized section", s.ID))
	}
	s.end = clock.Now()
	if s.end.Before(s.start) {
		s.end = s.start
	}
	return s.marker("end", "", s.end)
}

// Elapsed returns how long the section has been (or was) open.
// Unstarted sections report zero.
func (s *Section) Elapsed(clock Clock) time.Duration {
	switch {
	case s.Finished():
		return s.end.Sub(s.start)
	case s.Started():
		return clock.Now().Sub(s.start)
	default:
		return 0
	}
}

// String identifies the section in diagnostics.
func (s *Section) String() string {
	return fmt.Sprintf("%s (%s)", s.ID, s.Type)
}

func (s *Section) marker(kind, header string, at time.Time) string {
	id := s.ID
	if kind == "start" && s.Collapsed {
		id += "[collapsed=true]"
	}

	before := strings.Join([]string{
		Escape + "section_" + kind,
		strconv.FormatInt(at.Unix(), 10),
		id,
	}, ":")

	colored := ""
	if header != "" {
		colored = headerColour + header + console.Reset
	}

	return before + "\r" + Escape + colored
}
