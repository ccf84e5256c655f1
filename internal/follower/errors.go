package follower

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/lavalog/internal/console"
	"github.com/roach88/lavalog/internal/section"
)

// ErrSectionNotStarted is returned by New when the starting section has not
// been started.
var ErrSectionNotStarted = errors.New("can't follow logs beginning from uninitialized GitLab sections")

// FatalCode categorizes fatal conditions.
type FatalCode string

const (
	// ErrCodeTimeout indicates the open section exceeded its budget.
	// The job attempt should be aborted.
	ErrCodeTimeout FatalCode = "TIMEOUT"

	// ErrCodeKnownIssue indicates a recognized transient infrastructure
	// failure. The job should be retried.
	ErrCodeKnownIssue FatalCode = "KNOWN_ISSUE"
)

// FatalError is raised by Feed when the job must stop.
//
// FatalError includes structured fields so callers can pick between abort
// and retry without parsing messages.
type FatalError struct {
	// Code identifies the error category.
	Code FatalCode

	// Message is a human-readable description. Known-issue messages are
	// colorized for the job console.
	Message string

	// Section is the section that timed out (TIMEOUT only).
	Section *section.Section

	// Budget is the exceeded budget (TIMEOUT only).
	Budget time.Duration
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Section != nil {
		return fmt.Sprintf("%s: %s (section=%s, budget=%s)", e.Code, e.Message, e.Section.ID, e.Budget)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewTimeoutError creates a FatalError for a section that overran budget.
func NewTimeoutError(s *section.Section, budget time.Duration) *FatalError {
	return &FatalError{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("GitLab section %s has timed out", s),
		Section: s,
		Budget:  budget,
	}
}

// NewKnownIssueError creates a FatalError for a known issue.
func NewKnownIssueError(message string) *FatalError {
	return &FatalError{
		Code:    ErrCodeKnownIssue,
		Message: "Found known issue: " + console.Colorize(console.FgMagenta, message),
	}
}

// IsTimeout returns true if the error is a section timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Code == ErrCodeTimeout
	}
	return false
}

// IsKnownIssue returns true if the error is a known issue.
// Uses errors.As to handle wrapped errors.
func IsKnownIssue(err error) bool {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Code == ErrCodeKnownIssue
	}
	return false
}
