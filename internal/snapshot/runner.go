// Package snapshot runs a single test case and decides its outcome against
// the snapshot files stored next to its source.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/errors"
	"github.com/dangazineu/tryexpand/internal/normalize"
	"github.com/dangazineu/tryexpand/internal/project"
)

// Behavior decides what happens when a snapshot differs or is missing.
type Behavior int

const (
	// ExpectOnly compares against existing snapshots and never writes.
	ExpectOnly Behavior = iota
	// Overwrite creates and updates snapshots to match the actual output.
	Overwrite
)

func (b Behavior) String() string {
	if b == Overwrite {
		return "overwrite"
	}
	return "expect"
}

// Plan is what a suite asks of every test case.
type Plan struct {
	Action cargo.Action
	// PostAction, when set, runs only after a successful Action.
	PostAction  *cargo.Action
	Behavior    Behavior
	Expectation cargo.Evaluation
}

// Options are caller-supplied extras shared by all test cases of a suite.
type Options struct {
	Args          []string
	Env           map[string]string
	Filters       []normalize.Filter
	SkipOverwrite bool
}

// Executor runs one build-tool action.
type Executor interface {
	Execute(ctx context.Context, action cargo.Action, target cargo.Target, inv cargo.Invocation) (*cargo.Output, error)
}

// Report combines the outputs of the primary and optional post action.
type Report struct {
	Primary *cargo.Output
	Post    *cargo.Output
}

// Evaluation is Success only if every action that ran succeeded.
func (r *Report) Evaluation() cargo.Evaluation {
	evaluation := r.Primary.Evaluation
	if r.Post != nil {
		evaluation = evaluation.And(r.Post.Evaluation)
	}
	return evaluation
}

// Runner executes test cases of one project.
type Runner struct {
	Executor Executor
	Project  *project.Project
	Plan     Plan
	Options  Options
	// Observe receives every outcome before the test's verdict is decided.
	Observe func(test project.TestCase, outcome Outcome)
}

type normalized struct {
	text    string
	present bool
}

// Run executes test and returns Success when it passed. Errors are
// infrastructure or command failures that prevented a verdict.
func (r *Runner) Run(ctx context.Context, test project.TestCase) (cargo.Evaluation, error) {
	report, err := r.execute(ctx, test)
	if err != nil {
		return cargo.Failure, err
	}

	if report.Evaluation() != r.Plan.Expectation {
		outcome, err := r.unexpected(test, report)
		if err != nil {
			return cargo.Failure, err
		}
		r.observe(test, outcome)
		return cargo.Failure, nil
	}

	behavior := r.Plan.Behavior
	if r.Options.SkipOverwrite {
		behavior = ExpectOnly
	}

	var outcomes []Outcome
	for _, output := range []*cargo.Output{report.Primary, report.Post} {
		if output == nil {
			continue
		}
		for _, stream := range []normalize.Stream{normalize.Stdout, normalize.Stderr} {
			path, ok := Path(test.Path, output.Action, stream)
			if !ok {
				continue
			}
			actual := r.normalize(test, output, stream)
			if output.Action == cargo.Expand && stream == normalize.Stderr && output.Evaluation == cargo.Success {
				actual = normalized{}
			}

			outcome, emitted, err := r.resolve(path, actual, behavior)
			if err != nil {
				return cargo.Failure, err
			}
			if emitted {
				outcomes = append(outcomes, outcome)
			}
		}
	}

	verdict := cargo.Success
	for _, outcome := range outcomes {
		r.observe(test, outcome)
		verdict = verdict.And(outcome.Status())
	}
	return verdict, nil
}

func (r *Runner) execute(ctx context.Context, test project.TestCase) (*Report, error) {
	target := r.Project.Target(test.Bin)
	inv := cargo.Invocation{Args: r.Options.Args, Env: r.Options.Env}

	primary, err := r.Executor.Execute(ctx, r.Plan.Action, target, inv)
	if err != nil {
		return nil, err
	}
	report := &Report{Primary: primary}

	if r.Plan.PostAction != nil && primary.Evaluation == cargo.Success {
		post, err := r.Executor.Execute(ctx, *r.Plan.PostAction, target, inv)
		if err != nil {
			return nil, err
		}
		report.Post = post
	}
	return report, nil
}

func (r *Runner) normalize(test project.TestCase, output *cargo.Output, stream normalize.Stream) normalized {
	raw := output.Stdout
	if stream == normalize.Stderr {
		raw = output.Stderr
	}
	kind := normalize.Kind{Action: output.Action, Stream: stream, Evaluation: output.Evaluation}
	ctx := normalize.Context{
		Bin:        test.Bin,
		CrateName:  r.Project.Name,
		SourceDirs: []string{r.Project.SourceDir, r.Project.ManifestDir, r.Project.Dir},
	}
	text, present := normalize.Output(kind, raw, ctx, r.Options.Filters)
	return normalized{text: text, present: present}
}

// unexpected builds the terminal outcome for a test whose evaluation
// contradicts the expectation. The streams shown are those of the last action
// that ran, falling back to the expansion for stdout.
func (r *Runner) unexpected(test project.TestCase, report *Report) (Outcome, error) {
	source, err := os.ReadFile(r.Project.SourcePath(test))
	if err != nil {
		return Outcome{}, errors.Wrapf(err, errors.CodeInfrastructure, "failed to read %s", test.Path)
	}

	last := report.Primary
	if report.Post != nil {
		last = report.Post
	}
	stdout := r.normalize(test, last, normalize.Stdout)
	if !stdout.present && last != report.Primary {
		stdout = r.normalize(test, report.Primary, normalize.Stdout)
	}
	stderr := r.normalize(test, last, normalize.Stderr)

	outcome := Outcome{
		Source:    string(source),
		Stdout:    stdout.text,
		HasStdout: stdout.present,
		Stderr:    stderr.text,
		HasStderr: stderr.present,
	}

	if report.Evaluation() == cargo.Success {
		outcome.Kind = UnexpectedSuccess
		return outcome, nil
	}

	outcome.Kind = UnexpectedFailure
	if !failureVisible(last.Action, stdout, stderr) {
		return Outcome{}, errors.Newf(errors.CodeEmptyFailureStream,
			"`cargo %s` failed for %s without producing any error output", last.Action.Subcommand(), test.Path)
	}
	return outcome, nil
}

// failureVisible reports whether a failed action left a stream explaining
// why. Expansion and checking report on stderr; programs and test harnesses
// may use either stream.
func failureVisible(action cargo.Action, stdout, stderr normalized) bool {
	if action == cargo.Expand || action == cargo.Check {
		return stderr.present
	}
	return stderr.present || stdout.present
}

// resolve compares actual against the snapshot at path. The boolean result is
// false when Overwrite found nothing to report.
func (r *Runner) resolve(path string, actual normalized, behavior Behavior) (Outcome, bool, error) {
	expected, err := r.read(path)
	if err != nil {
		return Outcome{}, false, err
	}

	switch behavior {
	case Overwrite:
		if !actual.present {
			return Outcome{}, false, nil
		}
		if !expected.present {
			if err := r.write(path, actual.text); err != nil {
				return Outcome{}, false, err
			}
			return Outcome{Kind: Created, SnapshotPath: path, After: actual.text}, true, nil
		}
		if actual.text == expected.text {
			return Outcome{}, false, nil
		}
		if err := r.write(path, actual.text); err != nil {
			return Outcome{}, false, err
		}
		return Outcome{Kind: Updated, SnapshotPath: path, Before: expected.text, After: actual.text}, true, nil

	default:
		switch {
		case !actual.present && !expected.present:
			return Outcome{Kind: Match, SnapshotPath: path}, true, nil
		case !actual.present:
			return Outcome{Kind: UnexpectedlyPresent, SnapshotPath: path, Content: expected.text}, true, nil
		case !expected.present:
			return Outcome{Kind: ExpectedButMissing, SnapshotPath: path, Content: actual.text}, true, nil
		case sameLines(actual.text, expected.text):
			return Outcome{Kind: Match, SnapshotPath: path}, true, nil
		default:
			return Outcome{Kind: Mismatch, SnapshotPath: path, Actual: actual.text, Expected: expected.text}, true, nil
		}
	}
}

func (r *Runner) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.Project.SourceDir, path)
}

func (r *Runner) read(path string) (normalized, error) {
	data, err := os.ReadFile(r.resolvePath(path))
	if os.IsNotExist(err) {
		return normalized{}, nil
	}
	if err != nil {
		return normalized{}, errors.Wrapf(err, errors.CodeInfrastructure, "failed to read snapshot %s", path)
	}
	return normalized{text: string(data), present: true}, nil
}

func (r *Runner) write(path, content string) error {
	if err := os.WriteFile(r.resolvePath(path), []byte(content), 0644); err != nil {
		return errors.Wrapf(err, errors.CodeInfrastructure, "failed to write snapshot %s", path)
	}
	return nil
}

func (r *Runner) observe(test project.TestCase, outcome Outcome) {
	if r.Observe != nil {
		r.Observe(test, outcome)
	}
}

// sameLines compares line by line, ignoring line terminators.
func sameLines(a, b string) bool {
	la, lb := lines(a), lines(b)
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if la[i] != lb[i] {
			return false
		}
	}
	return true
}

func lines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, part := range parts {
		parts[i] = strings.TrimSuffix(part, "\r")
	}
	return parts
}

// String renders the plan for progress messages.
func (p Plan) String() string {
	if p.PostAction == nil {
		return p.Action.String()
	}
	return fmt.Sprintf("%s and %s", p.Action, *p.PostAction)
}
