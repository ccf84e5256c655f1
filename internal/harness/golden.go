package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a result for golden comparison. Every line is quoted
// with %q so escape sequences and carriage returns are visible and stable.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", name)
	b.WriteString("transcript:\n")
	for _, line := range result.Transcript {
		fmt.Fprintf(&b, "  %q\n", line)
	}
	if len(result.Console) > 0 {
		b.WriteString("console:\n")
		for _, line := range result.Console {
			fmt.Fprintf(&b, "  %q\n", line)
		}
	}
	if result.Fatal != "" {
		fmt.Fprintf(&b, "fatal: %s\n", result.Fatal)
	}

	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares the transcript against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the transcript doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
