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

// TestingT is the part of testing.T the asserter needs.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

// TranscriptOptions controls how shell transcripts are normalized before they
// are compared. Pty output uses CRLF line endings, so NormalizeNewlines is on
// by default.
type TranscriptOptions struct {
	NormalizeNewlines        bool   `default:"true"`
	IgnoreTrailingWhitespace bool   `default:"true"`
	IgnoreEmptyLines         bool   `default:"false"`
	TrimSpace                bool   `default:"false"`
	DropLinesWithPrefix      string `default:""`
	EnableColors             bool   `default:"false"`
}

// TranscriptOption is a functional option for TextAsserter.
type TranscriptOption func(*TranscriptOptions)

// TextAsserter compares captured terminal output against an expected
// transcript and reports a unified diff on mismatch.
type TextAsserter struct {
	t       TestingT
	options TranscriptOptions
}

// NewTextAsserter creates an asserter with default options.
func NewTextAsserter(t *testing.T) *TextAsserter {
	return NewTextAsserterWithInterface(t)
}

// NewTextAsserterWithInterface is NewTextAsserter for any TestingT.
func NewTextAsserterWithInterface(t TestingT) *TextAsserter {
	opts := TranscriptOptions{}
	defaults.SetDefaults(&opts)
	return &TextAsserter{t: t, options: opts}
}

// WithOptions applies functional options.
func (ta *TextAsserter) WithOptions(opts ...TranscriptOption) *TextAsserter {
	for _, opt := range opts {
		opt(&ta.options)
	}
	return ta
}

// Options returns a copy of the current options.
func (ta *TextAsserter) Options() TranscriptOptions {
	return ta.options
}

// Assert fails the test when actual differs from expected after normalization.
func (ta *TextAsserter) Assert(actual, expected string) bool {
	if diff := ta.diff(actual, expected); diff != "" {
		ta.t.Errorf("Transcript mismatch:\n%s", diff)
		return false
	}
	return true
}

// AssertContainsLines fails the test unless every expected line appears in
// actual, in order, possibly with other lines in between.
func (ta *TextAsserter) AssertContainsLines(actual string, expected ...string) bool {
	lines := strings.Split(ta.Normalize(actual), "\n")
	next := 0
	for _, line := range lines {
		if next < len(expected) && line == expected[next] {
			next++
		}
	}
	if next == len(expected) {
		return true
	}
	ta.t.Errorf("Transcript is missing line %q (matched %d of %d):\n%s",
		expected[next], next, len(expected), ta.Normalize(actual))
	return false
}

func (ta *TextAsserter) diff(actual, expected string) string {
	normalizedActual := ta.Normalize(actual)
	normalizedExpected := ta.Normalize(expected)
	if normalizedActual == normalizedExpected {
		return ""
	}

	edits := myers.ComputeEdits("", normalizedExpected, normalizedActual)
	unified := gotextdiff.ToUnified("expected", "actual", normalizedExpected, edits)
	return ta.colorize(fmt.Sprint(unified))
}

func (ta *TextAsserter) colorize(diff string) string {
	if !ta.options.EnableColors {
		return diff
	}

	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(visibleWhitespace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(visibleWhitespace(line))
		}
	}
	return strings.Join(lines, "\n")
}

// visibleWhitespace shows spaces, tabs and stray carriage returns.
func visibleWhitespace(line string) string {
	r := strings.NewReplacer(" ", "·", "\t", "→", "\r", "␍")
	return r.Replace(line)
}

// Normalize applies the configured transformations to text.
func (ta *TextAsserter) Normalize(text string) string {
	if ta.options.NormalizeNewlines {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	if ta.options.TrimSpace {
		text = strings.TrimSpace(text)
	}

	lines := strings.Split(text, "\n")
	result := lines[:0]
	for _, line := range lines {
		if ta.options.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t\r")
		}
		if ta.options.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		if p := ta.options.DropLinesWithPrefix; p != "" && strings.HasPrefix(line, p) {
			continue
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

// WithNormalizeNewlines turns CRLF into LF before comparing.
func WithNormalizeNewlines(enable bool) TranscriptOption {
	return func(opts *TranscriptOptions) { opts.NormalizeNewlines = enable }
}

// WithIgnoreTrailingWhitespace strips trailing blanks from every line.
func WithIgnoreTrailingWhitespace(ignore bool) TranscriptOption {
	return func(opts *TranscriptOptions) { opts.IgnoreTrailingWhitespace = ignore }
}

// WithIgnoreEmptyLines drops blank lines.
func WithIgnoreEmptyLines(ignore bool) TranscriptOption {
	return func(opts *TranscriptOptions) { opts.IgnoreEmptyLines = ignore }
}

// WithTrimSpace trims the whole text.
func WithTrimSpace(trim bool) TranscriptOption {
	return func(opts *TranscriptOptions) { opts.TrimSpace = trim }
}

// WithDropLinesWithPrefix removes lines starting with prefix, e.g. a prompt.
func WithDropLinesWithPrefix(prefix string) TranscriptOption {
	return func(opts *TranscriptOptions) { opts.DropLinesWithPrefix = prefix }
}

// WithEnableColors colors the diff output.
func WithEnableColors(enable bool) TranscriptOption {
	return func(opts *TranscriptOptions) { opts.EnableColors = enable }
}
