package follower

import (
	"regexp"

	"github.com/roach88/lavalog/internal/logline"
)

// The dispatcher-to-DUT transport turns the carriage return inside a GitLab
// section marker into a newline, so one marker arrives as two lines:
//
//	ESC[0Ksection_start:1700000000:my_id
//	ESC[0KMy header
//
// GitLab only recognizes the marker when both halves share a line.
var (
	openingHalfPattern  = regexp.MustCompile(`\x1b\[0K(section_\w+):(\d+):([^\s\r]+)$`)
	continuationPattern = regexp.MustCompile(`\x1b\[0K([\S ]+)?`)
)

type repairState int

const (
	repairIdle repairState = iota
	repairAwaiting
)

// MarkerRepairer merges split section markers back into one line.
//
// It holds at most one candidate opening half across calls. The zero value
// is ready to use.
type MarkerRepairer struct {
	state repairState
	held  string
}

// Process consumes one line and may rewrite its text in place:
//   - an opening half is held and the line's text is blanked, so the caller
//     must not output it on its own;
//   - a continuation following a held opening half becomes the merged marker
//     held + "\r" + text;
//   - any other line following a held opening half gives the held text back
//     as recovered (ok is true); the caller outputs it before the current
//     line, which is then evaluated as a new candidate.
func (r *MarkerRepairer) Process(line *logline.LogLine) (recovered string, ok bool) {
	if !line.Message.IsText() {
		return r.Drain()
	}
	text := line.Message.Text

	if r.state == repairAwaiting {
		held := r.held
		r.state, r.held = repairIdle, ""

		if continuationPattern.MatchString(text) {
			line.Message.Text = held + "\r" + text
			return "", false
		}
		recovered, ok = held, true
	}

	if openingHalfPattern.MatchString(text) {
		r.held = text
		r.state = repairAwaiting
		line.Message.Text = ""
	}

	return recovered, ok
}

// Drain gives back a held opening half, if any, and resets the repairer.
func (r *MarkerRepairer) Drain() (held string, ok bool) {
	if r.state != repairAwaiting {
		return "", false
	}
	held = r.held
	r.state, r.held = repairIdle, ""
	return held, true
}

// Pending reports whether an opening half is held.
func (r *MarkerRepairer) Pending() bool {
	return r.state == repairAwaiting
}
