package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the subset of testing.T the asserters report through
type TestingT interface {
	Errorf(format string, args ...any)
}

// TextAssertOptions controls how compared text is normalized before diffing.
// The zero value compares byte-for-byte.
type TextAssertOptions struct {
	TrimSpace                bool `default:"false"`
	IgnoreLeadingWhitespace  bool `default:"false"`
	IgnoreTrailingWhitespace bool `default:"false"`
	IgnoreEmptyLines         bool `default:"false"`

	EnableColors bool `default:"false"`
}

// TextOption adjusts TextAssertOptions before the first Assert call
type TextOption func(*TextAssertOptions)

// TextAsserter compares multi-line text and reports mismatches as a unified
// diff, which keeps failures readable for rendered report blocks and other
// terminal output.
type TextAsserter struct {
	t       TestingT
	options TextAssertOptions
}

// NewTextAsserter creates a TextAsserter with default options
func NewTextAsserter(t *testing.T) *TextAsserter {
	return NewTextAsserterWithInterface(t)
}

// NewTextAsserterWithInterface is NewTextAsserter for any TestingT, which
// lets tests capture assertion failures instead of failing.
func NewTextAsserterWithInterface(t TestingT) *TextAsserter {
	var opts TextAssertOptions
	defaults.SetDefaults(&opts)
	return &TextAsserter{t: t, options: opts}
}

// WithOptions applies functional options and returns the asserter
func (ta *TextAsserter) WithOptions(opts ...TextOption) *TextAsserter {
	for _, apply := range opts {
		apply(&ta.options)
	}
	return ta
}

// Assert compares actual against expected and reports a unified diff on
// mismatch.
func (ta *TextAsserter) Assert(actual, expected string) {
	if diff := ta.render(actual, expected); diff != "" {
		ta.t.Errorf("Text assertion failed:\n%s", diff)
	}
}

// render returns "" when the normalized texts match, otherwise a unified
// diff from expected to actual.
func (ta *TextAsserter) render(actual, expected string) string {
	normActual := ta.normalize(actual)
	normExpected := ta.normalize(expected)

	if normActual == normExpected {
		return ""
	}

	edits := myers.ComputeEdits("", normExpected, normActual)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", normExpected, edits))

	return "Text assertion failed - unified diff:\n" + ta.colorize(unified)
}

// normalize applies the configured whitespace and empty-line rules
func (ta *TextAsserter) normalize(text string) string {
	if ta.options.TrimSpace {
		text = strings.TrimSpace(text)
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if ta.options.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		if ta.options.IgnoreLeadingWhitespace {
			line = strings.TrimLeft(line, " \t")
		}
		if ta.options.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// colorize colors a unified diff for terminal reading. Changed lines get
// their whitespace made visible so indentation mismatches are spottable.
func (ta *TextAsserter) colorize(diff string) string {
	if !ta.options.EnableColors {
		return diff
	}

	// Forced on: assertion output should colorize even under go test
	forced := func(attr color.Attribute) *color.Color {
		c := color.New(attr)
		c.EnableColor()
		return c
	}
	red := forced(color.FgRed)
	green := forced(color.FgGreen)
	cyan := forced(color.FgCyan)
	yellow := forced(color.FgYellow)

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
			lines[i] = yellow.Sprint(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(markWhitespace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(markWhitespace(line))
		}
	}

	return strings.Join(lines, "\n")
}

// markWhitespace replaces spaces and tabs with visible marker runes
func markWhitespace(line string) string {
	line = strings.ReplaceAll(line, " ", "·")
	return strings.ReplaceAll(line, "\t", "→")
}

// WithIgnoreLeadingWhitespace ignores leading whitespace on each line
func WithIgnoreLeadingWhitespace(ignore bool) TextOption {
	return func(o *TextAssertOptions) {
		o.IgnoreLeadingWhitespace = ignore
	}
}

// WithIgnoreTrailingWhitespace ignores trailing whitespace on each line
func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(o *TextAssertOptions) {
		o.IgnoreTrailingWhitespace = ignore
	}
}

// WithIgnoreEmptyLines skips lines that are empty after trimming
func WithIgnoreEmptyLines(ignore bool) TextOption {
	return func(o *TextAssertOptions) {
		o.IgnoreEmptyLines = ignore
	}
}

// WithTrimSpace trims leading and trailing whitespace from the whole text
func WithTrimSpace(trim bool) TextOption {
	return func(o *TextAssertOptions) {
		o.TrimSpace = trim
	}
}

// WithEnableColors enables colored diff output
func WithEnableColors(enable bool) TextOption {
	return func(o *TextAssertOptions) {
		o.EnableColors = enable
	}
}
