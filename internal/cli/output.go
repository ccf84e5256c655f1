package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/lavalog/internal/feed"
	"github.com/roach88/lavalog/internal/follower"
	"github.com/roach88/lavalog/internal/store"
	"github.com/roach88/lavalog/internal/tail"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Job failure (section timeout, failed scenarios, invalid config, etc.)
	ExitCommandError = 2 // Command error (invalid paths, database not found, etc.)
	ExitRetry        = 3 // Known infrastructure issue, the job should be retried
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure, ExitCommandError or ExitRetry)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E_TIMEOUT", "E_KNOWN_ISSUE", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// writeJSON encodes response indented, as every command does in json mode.
func writeJSON(w io.Writer, response CLIResponse) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleRetry   = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleHeading = lipgloss.NewStyle().Bold(true).Underline(true)
)

// outcomeStyle picks the summary color of a run outcome.
func outcomeStyle(o store.Outcome) lipgloss.Style {
	switch o {
	case store.OutcomePassed:
		return styleOK
	case store.OutcomeKnownIssue, store.OutcomeInterrupted:
		return styleRetry
	case store.OutcomeRunning:
		return styleMuted
	default:
		return styleFail
	}
}

// classify maps the error a follow or replay ended with to the recorded
// outcome and the error the command returns.
func classify(err error) (store.Outcome, *ExitError) {
	switch {
	case err == nil:
		return store.OutcomePassed, nil
	case follower.IsTimeout(err):
		return store.OutcomeTimeout, &ExitError{Code: ExitFailure, Message: "job timed out", Err: err}
	case follower.IsKnownIssue(err):
		return store.OutcomeKnownIssue, &ExitError{Code: ExitRetry, Message: "known issue detected, retry the job", Err: err}
	case errors.Is(err, feed.ErrIdle):
		return store.OutcomeTimeout, &ExitError{Code: ExitFailure, Message: "job went silent", Err: err}
	case errors.Is(err, context.Canceled):
		return store.OutcomeInterrupted, &ExitError{Code: ExitFailure, Message: "interrupted", Err: err}
	case errors.Is(err, tail.ErrFileRemoved):
		return store.OutcomeFailed, &ExitError{Code: ExitFailure, Message: "log file went away", Err: err}
	default:
		return store.OutcomeFailed, &ExitError{Code: ExitFailure, Message: "job failed", Err: err}
	}
}

// errorCode is the CLIError code reported for an outcome.
func errorCode(o store.Outcome) string {
	switch o {
	case store.OutcomeTimeout:
		return "E_TIMEOUT"
	case store.OutcomeKnownIssue:
		return "E_KNOWN_ISSUE"
	case store.OutcomeInterrupted:
		return "E_INTERRUPTED"
	default:
		return "E_FAILED"
	}
}
