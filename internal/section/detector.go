package section

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/roach88/lavalog/internal/logline"
)

// Detector recognizes, from a single log line, that a new section begins.
//
// IDTemplate and HeaderTemplate are regexp.Expand templates ("$1") over the
// submatches of Pattern. The same boundary can reach the log through more than
// one channel with slightly different text; detectors are written so every
// variant yields the same id.
type Detector struct {
	Name           string
	Pattern        *regexp.Regexp
	Levels         []logline.Level
	IDTemplate     string
	HeaderTemplate string
	Type           Type
	Collapsed      bool
}

// Match returns the section announced by line, or nil.
// The header gets the budget of the section type appended.
func (d Detector) Match(line logline.LogLine, budgets Budgets) *Section {
	if !line.Message.IsText() || !slices.Contains(d.Levels, line.Level) {
		return nil
	}

	text := line.Message.Text
	loc := d.Pattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}

	id := d.Pattern.ExpandString(nil, d.IDTemplate, text, loc)
	header := d.Pattern.ExpandString(nil, d.HeaderTemplate, text, loc)

	return New(
		string(id),
		fmt.Sprintf("%s - Timeout: %s", header, budgets.For(d.Type)),
		d.Type,
		d.Collapsed,
	)
}

// Registry is an ordered list of detectors. The first match wins.
type Registry []Detector

// Detect returns the section announced by line, or nil when no detector
// matches.
func (r Registry) Detect(line logline.LogLine, budgets Budgets) *Section {
	for _, d := range r {
		if s := d.Match(line, budgets); s != nil {
			return s
		}
	}
	return nil
}

// DefaultRegistry returns the detectors for LAVA jobs, in priority order.
func DefaultRegistry() Registry {
	return Registry{
		{
			Name:           "lava_boot",
			Pattern:        regexp.MustCompile(`^start: (\d+(?:\.\d+)*) (\S*(?:boot|login)\S*)`),
			Levels:         []logline.Level{logline.LevelDebug},
			IDTemplate:     "boot-$1",
			HeaderTemplate: "LAVA boot $2",
			Type:           TypeLavaBoot,
			Collapsed:      true,
		},
		{
			Name:           "test_case",
			Pattern:        regexp.MustCompile(`<?STARTTC>? ([^>]*)`),
			Levels:         []logline.Level{logline.LevelTarget, logline.LevelDebug},
			IDTemplate:     "$1",
			HeaderTemplate: "test_case $1",
			Type:           TypeTestCase,
		},
		{
			Name:           "test_dut_suite",
			Pattern:        regexp.MustCompile(`<?STARTRUN>? ([^>]*ssh.*server.*)`),
			Levels:         []logline.Level{logline.LevelDebug},
			IDTemplate:     "$1",
			HeaderTemplate: "[dut] test_suite $1",
			Type:           TypeTestDutSuite,
		},
		{
			Name:           "test_suite",
			Pattern:        regexp.MustCompile(`<?STARTRUN>? ([^>]*)`),
			Levels:         []logline.Level{logline.LevelDebug},
			IDTemplate:     "$1",
			HeaderTemplate: "[docker] test_suite $1",
			Type:           TypeTestSuite,
		},
		{
			Name:           "lava_post_processing",
			Pattern:        regexp.MustCompile(`ENDTC>? ([^>]+)`),
			Levels:         []logline.Level{logline.LevelTarget, logline.LevelDebug},
			IDTemplate:     "post-$1",
			HeaderTemplate: "Post test_case $1",
			Type:           TypeLavaPostProcessing,
			Collapsed:      true,
		},
	}
}
