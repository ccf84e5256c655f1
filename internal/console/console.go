// Package console holds the ANSI sequences used in CI transcripts and the
// helpers that print straight to the job console, bypassing any buffering.
package console

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ANSI sequences understood by the GitLab job log viewer.
//
// The foreground colors carry the 256-color suffix used by the CI scripts so
// transcripts render identically to the jobs they replace.
const (
	FgGreen    = "\x1b[1;32;5;197m"
	FgRed      = "\x1b[1;38;5;197m"
	FgYellow   = "\x1b[1;33;5;197m"
	FgMagenta  = "\x1b[1;35;5;197m"
	Reset      = "\x1b[0m"
	Underlined = "\x1b[3m"
	Bold       = "\x1b[1m"
	Dim        = "\x1b[2m"
)

// TimestampLayout is the layout of the timestamp PrintLog puts in front of
// every message.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Colorize wraps s in color and a trailing reset.
func Colorize(color, s string) string {
	return color + s + Reset
}

// PrintLog writes msg to w prefixed with a timestamp.
// The reset in front keeps a previous colored message from tinting the timestamp.
func PrintLog(w io.Writer, now time.Time, msg string) {
	fmt.Fprintf(w, "%s%s: %s\n", Reset, now.Format(TimestampLayout), msg)
}

// HideSensitiveData drops every line of data that contains tag.
// Line terminators of the kept lines are preserved.
func HideSensitiveData(data, tag string) string {
	if tag == "" {
		tag = "HIDEME"
	}

	var b strings.Builder
	for _, line := range strings.SplitAfter(data, "\n") {
		if strings.Contains(line, tag) {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}
