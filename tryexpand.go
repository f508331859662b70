// Package tryexpand snapshot-tests Rust macro expansion from Go tests.
//
// A suite collects source files by pattern, expands each with `cargo expand`
// inside a throwaway crate that depends on the crate under test, and compares
// the normalized output against snapshot files stored next to the sources:
//
//	func TestMacros(t *testing.T) {
//		tryexpand.Expand("tests/expand/pass/*.rs").ExpectPass(t)
//		tryexpand.Expand("tests/expand/fail/*.rs").ExpectFail(t)
//	}
//
// Set TRYEXPAND=overwrite to create or update snapshots instead of comparing.
// Check, Run and RunTests start suites driven by `cargo check`, `cargo run`
// and `cargo test` instead.
package tryexpand

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/errors"
	"github.com/dangazineu/tryexpand/internal/suite"
)

// Result describes a suite that ran to completion.
type Result = suite.Result

// Expand starts a suite expanding every file matched by patterns.
func Expand(patterns ...string) *ExpandSuite {
	return &ExpandSuite{newBuilder(patterns, cargo.Expand, callSite())}
}

// Check starts a suite running `cargo check` on every matched file.
func Check(patterns ...string) *BuildSuite {
	return &BuildSuite{newBuilder(patterns, cargo.Check, callSite())}
}

// Run starts a suite running every matched file as a binary.
func Run(patterns ...string) *BuildSuite {
	return &BuildSuite{newBuilder(patterns, cargo.Run, callSite())}
}

// RunTests starts a suite running the unit tests of every matched file.
func RunTests(patterns ...string) *BuildSuite {
	return &BuildSuite{newBuilder(patterns, cargo.Test, callSite())}
}

// callSite identifies the test code that declared a suite. It must be called
// directly from an exported constructor.
func callSite() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, file); err == nil {
			file = rel
		}
	}
	return fmt.Sprintf("%s:%d", filepath.ToSlash(file), line)
}

type builder struct {
	suite *suite.Suite
	err   error
}

func newBuilder(patterns []string, action cargo.Action, site string) builder {
	s, err := suite.New(patterns, action, site, nil)
	return builder{suite: s, err: err}
}

func (b builder) apply(f func(s *suite.Suite)) {
	if b.err == nil {
		f(b.suite)
	}
}

func (b builder) run(t testing.TB, expectation cargo.Evaluation) *Result {
	t.Helper()
	err := b.err
	if err == nil {
		err = b.suite.Err()
	}
	if err != nil {
		t.Fatal(errors.Message(err))
		return nil
	}

	result, err := b.suite.Run(t.Context(), expectation)
	if err != nil {
		t.Fatal(errors.Message(err))
	}
	return result
}

// ExpandSuite is a suite driven by `cargo expand`. After a successful
// expansion it may additionally check, run or test the file.
type ExpandSuite struct {
	b builder
}

// Arg passes an extra argument to every cargo invocation.
func (s *ExpandSuite) Arg(arg string) *ExpandSuite {
	s.b.apply(func(x *suite.Suite) { x.Arg(arg) })
	return s
}

// Args passes extra arguments to every cargo invocation.
func (s *ExpandSuite) Args(args ...string) *ExpandSuite {
	s.b.apply(func(x *suite.Suite) { x.Args(args...) })
	return s
}

// Env sets an environment variable for every cargo invocation.
func (s *ExpandSuite) Env(key, value string) *ExpandSuite {
	s.b.apply(func(x *suite.Suite) { x.Env(key, value) })
	return s
}

// Envs sets environment variables for every cargo invocation.
func (s *ExpandSuite) Envs(envs map[string]string) *ExpandSuite {
	s.b.apply(func(x *suite.Suite) { x.Envs(envs) })
	return s
}

// SkipOverwrite keeps snapshots untouched even when TRYEXPAND=overwrite.
func (s *ExpandSuite) SkipOverwrite() *ExpandSuite {
	s.b.apply(func(x *suite.Suite) { x.SkipOverwrite() })
	return s
}

// FilterStdout replaces matches of the regular expression pattern in
// normalized stdout before it is compared.
func (s *ExpandSuite) FilterStdout(pattern, replacement string) *ExpandSuite {
	s.b.apply(func(x *suite.Suite) { x.FilterStdout(pattern, replacement) })
	return s
}

// FilterStderr is FilterStdout for stderr.
func (s *ExpandSuite) FilterStderr(pattern, replacement string) *ExpandSuite {
	s.b.apply(func(x *suite.Suite) { x.FilterStderr(pattern, replacement) })
	return s
}

// AndCheck runs `cargo check` on every file that expanded successfully.
func (s *ExpandSuite) AndCheck() *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.AndCheck() })
	return &BuildSuite{s.b}
}

// AndRun runs every file that expanded successfully.
func (s *ExpandSuite) AndRun() *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.AndRun() })
	return &BuildSuite{s.b}
}

// AndRunTests runs the tests of every file that expanded successfully.
func (s *ExpandSuite) AndRunTests() *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.AndRunTests() })
	return &BuildSuite{s.b}
}

// ExpectPass runs the suite, expecting every file to succeed, and fails t
// when any test fails.
func (s *ExpandSuite) ExpectPass(t testing.TB) *Result {
	t.Helper()
	return s.b.run(t, cargo.Success)
}

// ExpectFail runs the suite, expecting every file to fail.
func (s *ExpandSuite) ExpectFail(t testing.TB) *Result {
	t.Helper()
	return s.b.run(t, cargo.Failure)
}

// BuildSuite is a suite whose last action builds the file.
type BuildSuite struct {
	b builder
}

// Arg passes an extra argument to every cargo invocation.
func (s *BuildSuite) Arg(arg string) *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.Arg(arg) })
	return s
}

// Args passes extra arguments to every cargo invocation.
func (s *BuildSuite) Args(args ...string) *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.Args(args...) })
	return s
}

// Env sets an environment variable for every cargo invocation.
func (s *BuildSuite) Env(key, value string) *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.Env(key, value) })
	return s
}

// Envs sets environment variables for every cargo invocation.
func (s *BuildSuite) Envs(envs map[string]string) *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.Envs(envs) })
	return s
}

// SkipOverwrite keeps snapshots untouched even when TRYEXPAND=overwrite.
func (s *BuildSuite) SkipOverwrite() *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.SkipOverwrite() })
	return s
}

// FilterStdout replaces matches of the regular expression pattern in
// normalized stdout before it is compared.
func (s *BuildSuite) FilterStdout(pattern, replacement string) *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.FilterStdout(pattern, replacement) })
	return s
}

// FilterStderr is FilterStdout for stderr.
func (s *BuildSuite) FilterStderr(pattern, replacement string) *BuildSuite {
	s.b.apply(func(x *suite.Suite) { x.FilterStderr(pattern, replacement) })
	return s
}

// ExpectPass runs the suite, expecting every file to succeed, and fails t
// when any test fails.
func (s *BuildSuite) ExpectPass(t testing.TB) *Result {
	t.Helper()
	return s.b.run(t, cargo.Success)
}

// ExpectFail runs the suite, expecting every file to fail.
func (s *BuildSuite) ExpectFail(t testing.TB) *Result {
	t.Helper()
	return s.b.run(t, cargo.Failure)
}
