// Package config loads section budgets and hint thresholds from YAML.
//
// A configuration file looks like:
//
//	timeouts:
//	  lava_boot: 9m
//	  test_case: 60m
//	fallback_timeout: 10m
//	network_issue_threshold: 10
//
// Every key is optional. Missing values keep their defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lavalog/internal/follower"
	"github.com/roach88/lavalog/internal/section"
)

//go:embed schema.cue
var schemaSource string

// File is the on-disk shape of a configuration file.
type File struct {
	Timeouts              map[string]string `yaml:"timeouts,omitempty" json:"timeouts,omitempty"`
	FallbackTimeout       string            `yaml:"fallback_timeout,omitempty" json:"fallback_timeout,omitempty"`
	NetworkIssueThreshold int               `yaml:"network_issue_threshold,omitempty" json:"network_issue_threshold,omitempty"`
}

// Config is a validated configuration.
type Config struct {
	Budgets               section.Budgets
	NetworkIssueThreshold int
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Budgets:               section.DefaultBudgets(),
		NetworkIssueThreshold: follower.DefaultNetworkIssueThreshold,
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
// Unknown fields are rejected both by the YAML decoder and by the schema.
func Parse(data []byte) (*Config, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return FromFile(&f)
}

// FromFile validates f and resolves it on top of the defaults.
func FromFile(f *File) (*Config, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	return f.resolve()
}

// Validate checks f against the CUE schema.
func Validate(f *File) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("invalid config schema: %w", err)
	}

	value := ctx.Encode(f)
	if err := value.Err(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}
	return nil
}

// ValidationError reports a configuration that does not satisfy the schema.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Details
}

func (f *File) resolve() (*Config, error) {
	cfg := Default()

	for name, raw := range f.Timeouts {
		t, err := section.ParseType(name)
		if err != nil {
			return nil, err
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("timeouts.%s: %w", name, err)
		}
		cfg.Budgets.PerType[t] = d
	}

	if f.FallbackTimeout != "" {
		d, err := time.ParseDuration(f.FallbackTimeout)
		if err != nil {
			return nil, fmt.Errorf("fallback_timeout: %w", err)
		}
		cfg.Budgets.Fallback = d
	}

	if f.NetworkIssueThreshold > 0 {
		cfg.NetworkIssueThreshold = f.NetworkIssueThreshold
	}

	return cfg, nil
}

// File returns the fully populated file form of c.
func (c *Config) File() *File {
	f := &File{
		Timeouts:              make(map[string]string),
		FallbackTimeout:       c.Budgets.Fallback.String(),
		NetworkIssueThreshold: c.NetworkIssueThreshold,
	}
	for _, t := range section.Types() {
		if d, ok := c.Budgets.PerType[t]; ok {
			f.Timeouts[t.String()] = d.String()
		}
	}
	return f
}

// Marshal renders c as a configuration document that Parse accepts.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(c.File()); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TypeNames returns the section type names accepted under timeouts, sorted.
func TypeNames() []string {
	var names []string
	for _, t := range section.Types() {
		if t != section.TypeUnknown {
			names = append(names, t.String())
		}
	}
	slices.Sort(names)
	return names
}
