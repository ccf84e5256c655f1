package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lavalog/internal/config"
	"github.com/roach88/lavalog/internal/logline"
	"github.com/roach88/lavalog/internal/section"
)

// Scenario defines a follower scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Budgets overrides the default section budgets, in the configuration
	// file format.
	Budgets *config.File `yaml:"budgets,omitempty"`

	// StartSection is an already started section the follower begins in.
	StartSection *StartSection `yaml:"start_section,omitempty"`

	// Steps are fed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the complete run.
	// Supported types: section_starts, output_equals, output_order
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// StartSection describes the section a job is already in when following
// begins, typically the dispatcher boot.
type StartSection struct {
	ID        string `yaml:"id"`
	Header    string `yaml:"header"`
	Type      string `yaml:"type"`
	Collapsed bool   `yaml:"collapsed,omitempty"`
}

// Step is one batch.
type Step struct {
	// Advance moves the clock before the batch is fed (Go duration).
	Advance string `yaml:"advance,omitempty"`

	// Lines are the records of the batch.
	Lines []logline.LogLine `yaml:"lines,omitempty"`

	// Expect validates the outcome of this batch.
	// If nil, any non-fatal outcome is accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of one batch.
type Expect struct {
	// Healthy is the expected healthy flag. Unchecked if nil.
	Healthy *bool `yaml:"healthy,omitempty"`

	// Error is the expected fatal condition: "timeout" or "known_issue".
	// Empty means the batch must not fail.
	Error string `yaml:"error,omitempty"`

	// Contains lists substrings that must appear in the batch output.
	Contains []string `yaml:"contains,omitempty"`

	// Excludes lists substrings that must not appear in the batch output.
	Excludes []string `yaml:"excludes,omitempty"`
}

// Assertion validates the whole transcript.
type Assertion struct {
	// Type specifies the assertion type:
	// - "section_starts": the ids of started sections, in order, are exactly Sections
	// - "output_equals": the transcript is exactly Lines
	// - "output_order": every entry of Lines is a substring of a transcript
	//   line, in order (other lines may come in between)
	Type string `yaml:"type"`

	// Sections are the expected section ids (used by section_starts).
	Sections []string `yaml:"sections,omitempty"`

	// Lines are transcript lines or fragments (used by output_equals and
	// output_order).
	Lines []string `yaml:"lines,omitempty"`
}

// Assertion type constants.
const (
	AssertSectionStarts = "section_starts"
	AssertOutputEquals  = "output_equals"
	AssertOutputOrder   = "output_order"
)

// Expected error values.
const (
	ExpectTimeout    = "timeout"
	ExpectKnownIssue = "known_issue"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file of dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.StartSection != nil {
		if s.StartSection.ID == "" {
			return fmt.Errorf("start_section: id is required")
		}
		if _, err := section.ParseType(s.StartSection.Type); err != nil {
			return fmt.Errorf("start_section: %w", err)
		}
	}

	for i, step := range s.Steps {
		if step.Advance != "" {
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return fmt.Errorf("steps[%d].advance: %w", i, err)
			}
		}
		if step.Expect != nil {
			switch step.Expect.Error {
			case "", ExpectTimeout, ExpectKnownIssue:
			default:
				return fmt.Errorf("steps[%d].expect: unknown error %q", i, step.Expect.Error)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertSectionStarts:
		return nil
	case AssertOutputEquals, AssertOutputOrder:
		if len(a.Lines) == 0 {
			return fmt.Errorf("assertions[%d]: lines is required for %s", index, a.Type)
		}
		return nil
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
}
