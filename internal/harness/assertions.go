package harness

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Diff     string // cmp.Diff output (-want +got), if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Diff != "" {
		fmt.Fprintf(&buf, "\nDiff (-want +got):\n%s", e.Diff)
	}

	return buf.String()
}

// assertSectionStarts checks the exact sequence of started section ids.
func assertSectionStarts(result *Result, a Assertion) error {
	want := a.Sections
	if want == nil {
		want = []string{}
	}
	if diff := cmp.Diff(want, result.Sections); diff != "" {
		return &AssertionError{
			Type:     AssertSectionStarts,
			Expected: fmt.Sprintf("%d sections %q", len(want), want),
			Actual:   fmt.Sprintf("%d sections %q", len(result.Sections), result.Sections),
			Diff:     diff,
		}
	}
	return nil
}

// assertOutputEquals checks the transcript line for line.
func assertOutputEquals(result *Result, a Assertion) error {
	if diff := cmp.Diff(a.Lines, result.Transcript); diff != "" {
		return &AssertionError{
			Type:     AssertOutputEquals,
			Expected: fmt.Sprintf("%d lines", len(a.Lines)),
			Actual:   fmt.Sprintf("%d lines", len(result.Transcript)),
			Diff:     diff,
		}
	}
	return nil
}

// assertOutputOrder checks that each fragment appears in a later transcript
// line than the previous one.
func assertOutputOrder(result *Result, a Assertion) error {
	pos := 0
	for _, fragment := range a.Lines {
		found := false
		for pos < len(result.Transcript) {
			line := result.Transcript[pos]
			pos++
			if strings.Contains(line, fragment) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertOutputOrder,
				Expected: fmt.Sprintf("fragments in order %q", a.Lines),
				Actual:   fmt.Sprintf("%q not found after the previous fragment", fragment),
			}
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertSectionStarts:
			err = assertSectionStarts(result, a)
		case AssertOutputEquals:
			err = assertOutputEquals(result, a)
		case AssertOutputOrder:
			err = assertOutputOrder(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}
