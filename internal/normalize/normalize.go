// Package normalize turns raw build-tool output into the deterministic text
// stored in snapshots.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/rustsyntax"
)

// Stream identifies stdout or stderr.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stdout {
		return "stdout"
	}
	return "stderr"
}

// Kind selects the rules applied to one captured stream.
type Kind struct {
	Action     cargo.Action
	Stream     Stream
	Evaluation cargo.Evaluation
}

// Context carries the machine-specific identifiers scrubbed from output.
type Context struct {
	// Bin is the synthesized binary target of the test.
	Bin string
	// CrateName is the synthesized crate name.
	CrateName string
	// SourceDirs are absolute directories whose paths are deleted.
	SourceDirs []string
}

// Filter is a caller-supplied regex replacement scoped to one stream.
type Filter struct {
	Stream      Stream
	Pattern     *regexp.Regexp
	Replacement string
}

const (
	BinPlaceholder   = "<BIN>"
	CratePlaceholder = "<CRATE>"
	TimePlaceholder  = "<TIME>"
)

var testDuration = regexp.MustCompile(`; finished in .+$`)

// Output normalizes raw. It returns false when nothing meaningful is left, in
// which case no snapshot may exist for the stream. The same input always
// yields the same output.
func Output(kind Kind, raw string, ctx Context, filters []Filter) (string, bool) {
	if kind.Action == cargo.Check && kind.Stream == Stdout {
		return "", false
	}

	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	lines := strings.Split(text, "\n")

	if kind.Stream == Stderr && (kind.Action == cargo.Expand || kind.Action == cargo.Check) {
		lines = errorLines(lines)
	}
	if kind.Action == cargo.Test && kind.Stream == Stdout {
		for i, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "test result:") {
				lines[i] = testDuration.ReplaceAllString(line, "; finished in "+TimePlaceholder)
			}
		}
	}

	replacer := ctx.replacer()
	for i, line := range lines {
		lines[i] = replacer.Replace(line)
	}
	text = strings.Join(lines, "\n")

	if kind.Action == cargo.Expand && kind.Stream == Stdout && kind.Evaluation == cargo.Success {
		text = stripPrelude(text)
	}

	for _, filter := range filters {
		if filter.Stream == kind.Stream {
			text = filter.Pattern.ReplaceAllString(text, filter.Replacement)
		}
	}

	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return strings.TrimRight(text, "\n") + "\n", true
}

// errorLines drops the build chatter preceding the first error as well as
// progress and warning lines after it.
func errorLines(lines []string) []string {
	var result []string
	seenError := false
	for _, line := range lines {
		if !seenError {
			if !cargo.LineIsError(line) {
				continue
			}
			seenError = true
		}
		if cargo.LineShouldBeOmitted(line) || cargo.LineIsWarning(line) {
			continue
		}
		result = append(result, line)
	}
	return result
}

// replacer substitutes the bin before the crate name, which it contains, and
// longer directories before their prefixes.
func (c Context) replacer() *strings.Replacer {
	var pairs []string
	if c.Bin != "" {
		pairs = append(pairs, c.Bin, BinPlaceholder)
	}
	if c.CrateName != "" {
		pairs = append(pairs, c.CrateName, CratePlaceholder)
	}
	dirs := append([]string(nil), c.SourceDirs...)
	sort.SliceStable(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		dir = strings.TrimRight(dir, "/\\")
		if dir == "" {
			continue
		}
		pairs = append(pairs, dir+"/", "", dir+"\\", "", dir, "")
	}
	return strings.NewReplacer(pairs...)
}

// stripPrelude removes the boilerplate the compiler injects into every
// expansion and prints the rest canonically. Text that does not parse is
// returned unchanged.
func stripPrelude(text string) string {
	file, err := rustsyntax.Parse(text)
	if err != nil {
		return text
	}

	attrs := file.Attrs[:0]
	for _, attr := range file.Attrs {
		if !rustsyntax.IsPreludeFeature(attr) {
			attrs = append(attrs, attr)
		}
	}
	file.Attrs = attrs

	items := file.Items[:0]
	for _, item := range file.Items {
		if rustsyntax.IsPreludeImport(item) || rustsyntax.IsExternStd(item) {
			continue
		}
		items = append(items, item)
	}
	file.Items = items

	return rustsyntax.Print(file)
}
