// Package logline defines the decoded log records a LAVA dispatcher emits for
// a job: a severity level and a message payload.
package logline

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity LAVA attaches to every record.
type Level string

const (
	LevelResults  Level = "results"
	LevelFeedback Level = "feedback"
	LevelDebug    Level = "debug"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelInput    Level = "input"
	LevelTarget   Level = "target"
)

// Known reports whether l is one of the levels the follower formats specially.
// Other levels (info, exception, ...) are passed through verbatim.
func (l Level) Known() bool {
	switch l {
	case LevelResults, LevelFeedback, LevelDebug, LevelWarning, LevelError, LevelInput, LevelTarget:
		return true
	}
	return false
}

// MessageKind tells which variant a Message carries.
type MessageKind int

const (
	// KindText is a plain string message. Almost every record is one.
	KindText MessageKind = iota
	// KindList is a sequence of strings, only seen for kernel dumps.
	KindList
	// KindMapping is a structured payload, only seen at the results level.
	KindMapping
)

// Message is the payload of a LogLine.
type Message struct {
	Kind   MessageKind
	Text   string
	Lines  []string
	Fields map[string]any
}

// Text returns a text message.
func Text(s string) Message {
	return Message{Kind: KindText, Text: s}
}

// List returns a sequence message.
func List(lines ...string) Message {
	if lines == nil {
		lines = []string{}
	}
	return Message{Kind: KindList, Lines: lines}
}

// IsList reports whether the message is a sequence (kernel dump).
func (m Message) IsList() bool { return m.Kind == KindList }

// IsText reports whether the message is a plain string.
func (m Message) IsText() bool { return m.Kind == KindText }

// String renders the message for display.
func (m Message) String() string {
	switch m.Kind {
	case KindList:
		return strings.Join(m.Lines, "\n")
	case KindMapping:
		return fmt.Sprint(m.Fields)
	default:
		return m.Text
	}
}

// LogLine is one decoded record.
type LogLine struct {
	// Time is the dispatcher timestamp when the record carried one.
	// It is informational only; timing decisions use the follower clock.
	Time    time.Time
	Level   Level
	Message Message
}

// New returns a text LogLine.
func New(level Level, text string) LogLine {
	return LogLine{Level: level, Message: Text(text)}
}

// NewDump returns a kernel dump LogLine at the debug level.
func NewDump(lines ...string) LogLine {
	return LogLine{Level: LevelDebug, Message: List(lines...)}
}

// Text returns the message text, or "" for non-text messages.
func (l LogLine) Text() string {
	if l.Message.Kind != KindText {
		return ""
	}
	return l.Message.Text
}
