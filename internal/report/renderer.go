// Package report prints test outcomes for humans.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/dangazineu/tryexpand/internal/snapshot"
)

const (
	comparisonContext = 2
	dumpContext       = 5
	maxBlockLines     = 100
	separator         = "--------------------------"
)

var (
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	blue   = color.New(color.FgBlue)
	cyan   = color.New(color.FgCyan)
)

// Renderer writes outcomes to Out. It never affects a test's verdict.
type Renderer struct {
	Out io.Writer
	// Truncate caps every printed block at a fixed number of lines.
	Truncate bool
	// OverwriteHint is the assignment suggested for updating snapshots, e.g.
	// "TRYEXPAND=overwrite".
	OverwriteHint string
}

// NewRenderer returns a renderer writing to out, or to stderr when out is nil.
func NewRenderer(out io.Writer, truncate bool) *Renderer {
	if out == nil {
		out = os.Stderr
	}
	return &Renderer{Out: out, Truncate: truncate, OverwriteHint: "TRYEXPAND=overwrite"}
}

// Render prints one outcome of the test at sourcePath.
func (r *Renderer) Render(sourcePath string, outcome snapshot.Outcome) {
	switch outcome.Kind {
	case snapshot.Match:
		r.status(sourcePath, green, "ok")

	case snapshot.Mismatch:
		r.status(sourcePath, red, "MISMATCH")
		r.line(separator)
		r.line(fmt.Sprintf("Unexpected mismatch in file %s:", outcome.SnapshotPath))
		r.blank()
		r.diff(outcome.Expected, outcome.Actual, comparisonContext)
		r.blank()
		r.overwriteHint()
		r.line(separator)

	case snapshot.Created:
		r.status(sourcePath, yellow, "created")
		r.line(separator)
		r.colored(green, fmt.Sprintf("Snapshot created at path %s", outcome.SnapshotPath))
		r.blank()
		r.diff("", outcome.After, dumpContext)
		r.line(separator)

	case snapshot.Updated:
		r.status(sourcePath, yellow, "updated")
		r.line(separator)
		r.colored(green, fmt.Sprintf("Snapshot updated at path %s", outcome.SnapshotPath))
		r.blank()
		r.diff(outcome.Before, outcome.After, comparisonContext)
		r.line(separator)

	case snapshot.ExpectedButMissing:
		r.status(sourcePath, red, "MISSING")
		r.line(separator)
		r.colored(red, fmt.Sprintf("Expected snapshot at %s with content:", outcome.SnapshotPath))
		r.blank()
		r.dump(outcome.Content, red)
		r.blank()
		r.overwriteHint()
		r.line(separator)

	case snapshot.UnexpectedlyPresent:
		r.status(sourcePath, red, "ERROR")
		r.line(separator)
		r.colored(red, fmt.Sprintf("Unexpected snapshot at %s with content:", outcome.SnapshotPath))
		r.blank()
		r.dump(outcome.Content, red)
		r.blank()
		r.colored(cyan, fmt.Sprintf("help: To remove the snapshot file run `rm %q`.", outcome.SnapshotPath))
		r.line(separator)

	case snapshot.UnexpectedSuccess:
		r.status(sourcePath, red, "ERROR")
		r.line(separator)
		r.colored(red, "Unexpected success!")
		r.blank()
		r.line("STDOUT:")
		r.blank()
		r.dump(outcome.Stdout, blue)
		if outcome.HasStderr {
			r.blank()
			r.line("STDERR:")
			r.blank()
			r.dump(outcome.Stderr, red)
		}
		r.line(separator)

	case snapshot.UnexpectedFailure:
		r.status(sourcePath, red, "ERROR")
		r.line(separator)
		r.colored(red, "Unexpected failure!")
		r.blank()
		if outcome.HasStdout {
			r.line("STDOUT:")
			r.blank()
			r.dump(outcome.Stdout, blue)
			r.blank()
		}
		r.line("STDERR:")
		r.blank()
		r.dump(outcome.Stderr, red)
		r.line(separator)
	}
}

// CommandFailure reports an error that kept the test at sourcePath from
// producing a verdict.
func (r *Renderer) CommandFailure(sourcePath string, err error) {
	message := strings.TrimSpace(err.Error())

	r.status(sourcePath, red, "ERROR")
	r.line(separator)
	r.colored(red, "Command failure:")
	r.blank()
	r.colored(red, message)
	r.blank()
	if strings.Contains(message, "no such subcommand: `expand`") || strings.Contains(message, "no such command: `expand`") {
		r.colored(cyan, "help: Perhaps, `cargo expand` is not installed?")
		r.colored(cyan, "      Install it by running:")
		r.blank()
		r.colored(cyan, "      $ cargo install cargo-expand")
	}
	r.line(separator)
}

// Abort announces that the suite has seen too many command failures.
func (r *Renderer) Abort(errorCount int) {
	r.colored(red, fmt.Sprintf("Aborting due to %d previous errors.", errorCount))
	r.blank()
}

// Progress announces a suite before its first test runs.
func (r *Renderer) Progress(count int, callSite string) {
	noun := "tests"
	if count == 1 {
		noun = "test"
	}
	r.blank()
	r.line(fmt.Sprintf("Running %d macro expansion %s from %s", count, noun, callSite))
	r.blank()
}

// Summary prints the final tally of a suite.
func (r *Renderer) Summary(failed []string, total int) {
	r.blank()
	if len(failed) == 0 {
		r.colored(green, fmt.Sprintf("All %d tests passed.", total))
		return
	}
	r.colored(red, fmt.Sprintf("%d of %d tests failed:", len(failed), total))
	r.blank()
	for _, path := range failed {
		r.line("    " + path)
	}
}

func (r *Renderer) status(path string, c *color.Color, label string) {
	fmt.Fprintf(r.Out, "%s - %s\n", path, c.Sprint(label))
}

func (r *Renderer) line(text string) {
	fmt.Fprintln(r.Out, text)
}

func (r *Renderer) blank() {
	fmt.Fprintln(r.Out)
}

func (r *Renderer) colored(c *color.Color, text string) {
	fmt.Fprintln(r.Out, c.Sprint(text))
}

func (r *Renderer) overwriteHint() {
	if r.OverwriteHint == "" {
		return
	}
	r.colored(cyan, fmt.Sprintf("help: To update the snapshot file run your tests with `%s`.", r.OverwriteHint))
}

func (r *Renderer) dump(text string, c *color.Color) {
	for _, line := range r.cap(trimInfix(splitLines(text), dumpContext)) {
		r.colored(c, line)
	}
}

func (r *Renderer) diff(before, after string, context int) {
	for _, run := range diffRuns(splitLines(before), splitLines(after)) {
		switch run.tag {
		case 'e':
			for _, line := range r.cap(trimInfix(run.lines, context)) {
				r.colored(blue, "  "+line)
			}
		case 'd':
			for _, line := range r.cap(run.lines) {
				r.colored(red, "- "+line)
			}
		case 'i':
			for _, line := range r.cap(run.lines) {
				r.colored(green, "+ "+line)
			}
		}
	}
}

// cap applies the block limit when truncation is enabled.
func (r *Renderer) cap(lines []string) []string {
	if !r.Truncate || len(lines) <= maxBlockLines {
		return lines
	}
	return trimInfix(lines, (maxBlockLines-1)/2)
}

type run struct {
	tag   byte
	lines []string
}

// diffRuns groups the line diff of a and b into runs of equal, deleted and
// inserted lines. A replacement becomes a deletion followed by an insertion.
func diffRuns(a, b []string) []run {
	matcher := difflib.NewMatcher(a, b)
	var runs []run
	add := func(tag byte, lines []string) {
		if len(lines) == 0 {
			return
		}
		if n := len(runs); n > 0 && runs[n-1].tag == tag {
			runs[n-1].lines = append(runs[n-1].lines, lines...)
			return
		}
		runs = append(runs, run{tag: tag, lines: append([]string(nil), lines...)})
	}
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			add('e', a[op.I1:op.I2])
		case 'd':
			add('d', a[op.I1:op.I2])
		case 'i':
			add('i', b[op.J1:op.J2])
		case 'r':
			add('d', a[op.I1:op.I2])
			add('i', b[op.J1:op.J2])
		}
	}
	return runs
}

// trimInfix keeps at most keep lines at each end of lines and replaces the
// rest with an elision marker.
func trimInfix(lines []string, keep int) []string {
	if len(lines) <= 2*keep+1 {
		return lines
	}
	omitted := len(lines) - 2*keep
	trimmed := make([]string, 0, 2*keep+1)
	trimmed = append(trimmed, lines[:keep]...)
	trimmed = append(trimmed, fmt.Sprintf("... (%d lines omitted)", omitted))
	return append(trimmed, lines[len(lines)-keep:]...)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
