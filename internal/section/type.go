package section

import (
	"fmt"
	"time"
)

// Type classifies a section. The zero value is TypeUnknown, the phase of a
// follower with no open section.
type Type int

const (
	TypeUnknown Type = iota
	TypeLavaBoot
	TypeTestDutSuite
	TypeTestSuite
	TypeTestCase
	TypeLavaPostProcessing
)

var typeNames = map[Type]string{
	TypeUnknown:            "unknown",
	TypeLavaBoot:           "lava_boot",
	TypeTestDutSuite:       "test_dut_suite",
	TypeTestSuite:          "test_suite",
	TypeTestCase:           "test_case",
	TypeLavaPostProcessing: "lava_post_processing",
}

// String returns the snake_case name used in configuration files.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType is the inverse of Type.String.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown section type %q", name)
}

// Types returns every Type in declaration order.
func Types() []Type {
	return []Type{
		TypeUnknown,
		TypeLavaBoot,
		TypeTestDutSuite,
		TypeTestSuite,
		TypeTestCase,
		TypeLavaPostProcessing,
	}
}

// Default budgets, in minutes.
const (
	DefaultLavaBootTimeout           = 9 * time.Minute
	DefaultTestDutSuiteTimeout       = 60 * time.Minute
	DefaultTestSuiteTimeout          = 5 * time.Minute
	DefaultTestCaseTimeout           = 60 * time.Minute
	DefaultLavaPostProcessingTimeout = 5 * time.Minute
	DefaultFallbackTimeout           = 10 * time.Minute
)

// Budgets maps section types to the longest time a section of that type may
// stay open. Types without an entry use Fallback.
type Budgets struct {
	PerType  map[Type]time.Duration
	Fallback time.Duration
}

// DefaultBudgets returns the budgets used when no configuration is supplied.
func DefaultBudgets() Budgets {
	return Budgets{
		PerType: map[Type]time.Duration{
			TypeLavaBoot:           DefaultLavaBootTimeout,
			TypeTestDutSuite:       DefaultTestDutSuiteTimeout,
			TypeTestSuite:          DefaultTestSuiteTimeout,
			TypeTestCase:           DefaultTestCaseTimeout,
			TypeLavaPostProcessing: DefaultLavaPostProcessingTimeout,
		},
		Fallback: DefaultFallbackTimeout,
	}
}

// For returns the budget for t.
func (b Budgets) For(t Type) time.Duration {
	if d, ok := b.PerType[t]; ok {
		return d
	}
	return b.Fallback
}
