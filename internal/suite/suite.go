// Package suite runs every test file matched by a set of patterns inside one
// synthesized project and aggregates the verdicts.
package suite

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/config"
	"github.com/dangazineu/tryexpand/internal/errors"
	"github.com/dangazineu/tryexpand/internal/normalize"
	"github.com/dangazineu/tryexpand/internal/pathglob"
	"github.com/dangazineu/tryexpand/internal/project"
	"github.com/dangazineu/tryexpand/internal/report"
	"github.com/dangazineu/tryexpand/internal/snapshot"
)

// MaxCommandErrors is the number of command failures a suite tolerates
// before it announces that it is aborting.
const MaxCommandErrors = 2

// Executor runs build-tool actions, including the dependency warm-up.
type Executor interface {
	snapshot.Executor
	WarmUp(ctx context.Context, action cargo.Action, target cargo.Target, inv cargo.Invocation, out io.Writer) error
}

// Suite is a group of test files sharing one action, expectation and set of
// options. Builder methods record the first invalid input and Run reports it.
type Suite struct {
	action   cargo.Action
	post     *cargo.Action
	callSite string
	env      *config.Env
	dir      string
	paths    []string
	options  snapshot.Options

	out      io.Writer
	logger   logrus.FieldLogger
	executor Executor

	err error
}

// Option customizes a Suite at construction.
type Option func(*Suite)

// WithDir resolves patterns and locates the host crate from dir instead of the
// working directory.
func WithDir(dir string) Option {
	return func(s *Suite) { s.dir = dir }
}

// WithOutput sends human-facing output to w instead of stderr.
func WithOutput(w io.Writer) Option {
	return func(s *Suite) { s.out = w }
}

// WithLogger replaces the default logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Suite) { s.logger = logger }
}

// WithExecutor replaces the cargo executor.
func WithExecutor(executor Executor) Option {
	return func(s *Suite) { s.executor = executor }
}

// New expands patterns into test files. callSite identifies the code that
// declared the suite and determines its project directory.
func New(patterns []string, action cargo.Action, callSite string, env *config.Env, opts ...Option) (*Suite, error) {
	s := &Suite{
		action:   action,
		callSite: callSite,
		env:      env,
		options:  snapshot.Options{Env: make(map[string]string)},
		out:      os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.env == nil {
		resolved, err := config.FromProcess()
		if err != nil {
			return nil, err
		}
		s.env = resolved
	}
	if s.logger == nil {
		s.logger = config.NewLogger(s.env.DebugLog, s.out)
		s.env.LogWarnings(s.logger)
	}
	if s.executor == nil {
		s.executor = cargo.NewExecutor(s.env.Cargo, s.logger)
	}
	if s.dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfiguration, "failed to determine working directory")
		}
		s.dir = wd
	}

	paths, err := expandPatterns(s.dir, patterns)
	if err != nil {
		return nil, err
	}
	s.paths = paths
	return s, nil
}

func expandPatterns(dir string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, errors.New(errors.CodeConfiguration, "no file patterns provided")
	}

	unique := make(map[string]struct{})
	var unmatched []string
	for _, pattern := range patterns {
		matches, err := pathglob.Expand(dir, pattern)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeConfiguration, "invalid file pattern '%s'", pattern)
		}
		found := false
		for _, match := range matches {
			if snapshot.IsSnapshot(match) {
				continue
			}
			unique[match] = struct{}{}
			found = true
		}
		if !found {
			unmatched = append(unmatched, pattern)
		}
	}

	if len(unmatched) > 0 {
		var b strings.Builder
		b.WriteString("no matching files found for:")
		seen := make(map[string]bool)
		for _, pattern := range unmatched {
			if seen[pattern] {
				continue
			}
			seen[pattern] = true
			b.WriteString("\n    " + pattern)
		}
		return nil, errors.New(errors.CodeConfiguration, b.String())
	}

	paths := make([]string, 0, len(unique))
	for path := range unique {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// Paths returns the matched test files, sorted.
func (s *Suite) Paths() []string {
	return append([]string(nil), s.paths...)
}

// CallSite returns the identity the suite was declared with.
func (s *Suite) CallSite() string {
	return s.callSite
}

// Err returns the first error recorded by a builder method.
func (s *Suite) Err() error {
	return s.err
}

func (s *Suite) fail(err error) *Suite {
	if s.err == nil {
		s.err = err
	}
	return s
}

// Arg appends one argument to every build-tool invocation.
func (s *Suite) Arg(arg string) *Suite {
	return s.Args(arg)
}

// Args appends arguments to every build-tool invocation.
func (s *Suite) Args(args ...string) *Suite {
	s.options.Args = append(s.options.Args, args...)
	return s
}

// Env sets an environment variable for every build-tool invocation.
func (s *Suite) Env(key, value string) *Suite {
	s.options.Env[key] = value
	return s
}

// Envs sets several environment variables.
func (s *Suite) Envs(envs map[string]string) *Suite {
	for key, value := range envs {
		s.options.Env[key] = value
	}
	return s
}

// SkipOverwrite never writes snapshots, whatever the behavior.
func (s *Suite) SkipOverwrite() *Suite {
	s.options.SkipOverwrite = true
	return s
}

// FilterStdout replaces every match of pattern in normalized stdout.
func (s *Suite) FilterStdout(pattern, replacement string) *Suite {
	return s.filter(normalize.Stdout, pattern, replacement)
}

// FilterStderr replaces every match of pattern in normalized stderr.
func (s *Suite) FilterStderr(pattern, replacement string) *Suite {
	return s.filter(normalize.Stderr, pattern, replacement)
}

func (s *Suite) filter(stream normalize.Stream, pattern, replacement string) *Suite {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return s.fail(errors.Wrapf(err, errors.CodeConfiguration, "invalid regex pattern '%s'", pattern))
	}
	s.options.Filters = append(s.options.Filters, normalize.Filter{Stream: stream, Pattern: re, Replacement: replacement})
	return s
}

// AndCheck checks every successful expansion.
func (s *Suite) AndCheck() *Suite {
	return s.then(cargo.Check)
}

// AndRun runs every successful expansion.
func (s *Suite) AndRun() *Suite {
	return s.then(cargo.Run)
}

// AndRunTests runs the tests of every successful expansion.
func (s *Suite) AndRunTests() *Suite {
	return s.then(cargo.Test)
}

// Then sets the post action.
func (s *Suite) Then(action cargo.Action) *Suite {
	return s.then(action)
}

func (s *Suite) then(action cargo.Action) *Suite {
	switch {
	case s.post != nil:
		return s.fail(errors.Newf(errors.CodeConfiguration, "post-expand action already set to `cargo %s`", s.post.Subcommand()))
	case !action.IsPostAction():
		return s.fail(errors.Newf(errors.CodeConfiguration, "unexpected `%s` as post-action", action.Subcommand()))
	case s.action != cargo.Expand:
		return s.fail(errors.Newf(errors.CodeConfiguration, "`%s` can only follow an expansion, not `%s`", action.Subcommand(), s.action.Subcommand()))
	}
	s.post = &action
	return s
}

// Result summarizes a completed suite.
type Result struct {
	CallSite string
	Total    int
	// Failed lists the paths of failed tests, sorted.
	Failed        []string
	CommandErrors int
	Outcomes      map[snapshot.Kind]int
}

// Passed reports whether every test passed.
func (r *Result) Passed() bool {
	return len(r.Failed) == 0
}

// Run executes every test and returns an error coded CodeTestsFailed when any
// of them failed. The result is returned in either case once tests ran.
func (s *Suite) Run(ctx context.Context, expectation cargo.Evaluation) (*Result, error) {
	if s.err != nil {
		return nil, s.err
	}

	meta, err := cargo.LoadMetadata(ctx, s.env.Cargo, s.dir)
	if err != nil {
		return nil, err
	}
	pkg, err := meta.FindPackage(s.env.CargoPkgName, s.dir)
	if err != nil {
		return nil, err
	}
	targetDir := s.env.CargoTargetDir
	if targetDir == "" {
		targetDir = meta.TargetDirectory
	}

	proj, err := project.New(meta, pkg, project.SuiteID(s.callSite), targetDir, s.dir, s.paths)
	if err != nil {
		return nil, err
	}
	defer proj.Guard(s.env.KeepArtifacts, s.logger)()
	if err := proj.Materialize(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"project": proj.Dir,
		"tests":   len(proj.Tests),
		"plan":    s.plan(expectation).String(),
	}).Debug("synthesized project")

	renderer := report.NewRenderer(s.out, s.env.TruncateOutput)
	renderer.Progress(len(proj.Tests), s.callSite)

	inv := cargo.Invocation{Args: s.options.Args, Env: s.options.Env}
	if err := s.executor.WarmUp(ctx, s.action, proj.Target(proj.WarmUpBin()), inv, s.out); err != nil {
		return nil, err
	}

	result := &Result{
		CallSite: s.callSite,
		Total:    len(proj.Tests),
		Outcomes: make(map[snapshot.Kind]int),
	}
	failed := make(map[string]bool)

	runner := &snapshot.Runner{
		Executor: s.executor,
		Project:  proj,
		Plan:     s.plan(expectation),
		Options:  s.options,
		Observe: func(test project.TestCase, outcome snapshot.Outcome) {
			renderer.Render(test.Path, outcome)
			result.Outcomes[outcome.Kind]++
			if outcome.Status() == cargo.Failure {
				failed[test.Path] = true
			}
		},
	}

	for _, test := range proj.Tests {
		evaluation, err := runner.Run(ctx, test)
		if err != nil {
			renderer.CommandFailure(test.Path, err)
			failed[test.Path] = true
			result.CommandErrors++
			if result.CommandErrors > MaxCommandErrors {
				renderer.Abort(result.CommandErrors)
			}
			continue
		}
		if evaluation == cargo.Failure {
			failed[test.Path] = true
		}
	}

	for path := range failed {
		result.Failed = append(result.Failed, path)
	}
	sort.Strings(result.Failed)

	if !result.Passed() {
		var b strings.Builder
		fmt.Fprintf(&b, "%d of %d tests failed:\n", len(result.Failed), result.Total)
		for _, path := range result.Failed {
			b.WriteString("\n    " + path)
		}
		return result, errors.New(errors.CodeTestsFailed, b.String())
	}
	return result, nil
}

func (s *Suite) plan(expectation cargo.Evaluation) snapshot.Plan {
	behavior := snapshot.ExpectOnly
	if s.env.Overwrite {
		behavior = snapshot.Overwrite
	}
	return snapshot.Plan{
		Action:      s.action,
		PostAction:  s.post,
		Behavior:    behavior,
		Expectation: expectation,
	}
}
