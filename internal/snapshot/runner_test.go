package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/errors"
	"github.com/dangazineu/tryexpand/internal/normalize"
	"github.com/dangazineu/tryexpand/internal/project"
)

type fakeExecutor struct {
	outputs map[cargo.Action]*cargo.Output
	calls   []cargo.Action
	err     error
}

func (f *fakeExecutor) Execute(_ context.Context, action cargo.Action, target cargo.Target, _ cargo.Invocation) (*cargo.Output, error) {
	f.calls = append(f.calls, action)
	if f.err != nil {
		return nil, f.err
	}
	output := *f.outputs[action]
	output.Action = action
	return &output, nil
}

func expandSuccess(stdout string) *cargo.Output {
	return &cargo.Output{Stdout: stdout, Evaluation: cargo.Success}
}

func failure(stdout, stderr string) *cargo.Output {
	return &cargo.Output{Stdout: stdout, Stderr: stderr, Evaluation: cargo.Failure}
}

type harness struct {
	dir      string
	test     project.TestCase
	executor *fakeExecutor
	outcomes []Outcome
}

func newHarness(t *testing.T, source string, outputs map[cargo.Action]*cargo.Output) *harness {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pass.rs"), []byte(source), 0644))
	return &harness{
		dir:      dir,
		test:     project.TestCase{Path: "pass.rs", Bin: "host_abc_k3j2"},
		executor: &fakeExecutor{outputs: outputs},
	}
}

func (h *harness) runner(plan Plan, options Options) *Runner {
	h.outcomes = nil
	return &Runner{
		Executor: h.executor,
		Project: &project.Project{
			Dir:         filepath.Join(h.dir, "target", "tests", "tryexpand", "host_abc"),
			SourceDir:   h.dir,
			ManifestDir: h.dir,
			Name:        "host_abc",
			CrateName:   "host",
		},
		Plan:    plan,
		Options: options,
		Observe: func(_ project.TestCase, outcome Outcome) {
			h.outcomes = append(h.outcomes, outcome)
		},
	}
}

func (h *harness) run(t *testing.T, plan Plan, options Options) cargo.Evaluation {
	t.Helper()
	evaluation, err := h.runner(plan, options).Run(context.Background(), h.test)
	require.NoError(t, err)
	return evaluation
}

func (h *harness) file(name string) string {
	return filepath.Join(h.dir, name)
}

func (h *harness) kinds() []Kind {
	kinds := make([]Kind, 0, len(h.outcomes))
	for _, outcome := range h.outcomes {
		kinds = append(kinds, outcome.Kind)
	}
	return kinds
}

func expandPass(behavior Behavior) Plan {
	return Plan{Action: cargo.Expand, Behavior: behavior, Expectation: cargo.Success}
}

func TestRun_FirstRunCreatesSnapshot(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("#![feature(prelude_import)]\nextern crate std;\nfn main() {}\n"),
	})

	assert.Equal(t, cargo.Success, h.run(t, expandPass(Overwrite), Options{}))
	assert.Equal(t, []Kind{Created}, h.kinds())
	assert.Equal(t, "pass.expand.out.rs", h.outcomes[0].SnapshotPath)

	content, err := os.ReadFile(h.file("pass.expand.out.rs"))
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}\n", string(content))
	assert.NoFileExists(t, h.file("pass.expand.err.txt"))
}

func TestRun_OverwriteIsIdempotent(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {}\n"),
	})

	h.run(t, expandPass(Overwrite), Options{})
	require.Len(t, h.outcomes, 1)

	assert.Equal(t, cargo.Success, h.run(t, expandPass(Overwrite), Options{}))
	assert.Empty(t, h.outcomes, "identical content reports nothing")
}

func TestRun_OverwriteUpdatesChangedSnapshot(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {}\n"),
	})
	require.NoError(t, os.WriteFile(h.file("pass.expand.out.rs"), []byte("fn old() {}\n"), 0644))

	assert.Equal(t, cargo.Success, h.run(t, expandPass(Overwrite), Options{}))
	require.Equal(t, []Kind{Updated}, h.kinds())
	assert.Equal(t, "fn old() {}\n", h.outcomes[0].Before)
	assert.Equal(t, "fn main() {}\n", h.outcomes[0].After)

	content, err := os.ReadFile(h.file("pass.expand.out.rs"))
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}\n", string(content))
}

func TestRun_OverwriteThenExpectRoundTrip(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {\n  let x = 1;\n}\n"),
	})

	h.run(t, expandPass(Overwrite), Options{})
	assert.Equal(t, cargo.Success, h.run(t, expandPass(ExpectOnly), Options{}))
	assert.Equal(t, []Kind{Match, Match}, h.kinds(), "stdout matches and the absent stderr pair matches")
}

func TestRun_ExpectOnlyMismatchLeavesFileUntouched(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {}\n"),
	})
	require.NoError(t, os.WriteFile(h.file("pass.expand.out.rs"), []byte("fn other() {}\n"), 0644))

	assert.Equal(t, cargo.Failure, h.run(t, expandPass(ExpectOnly), Options{}))
	require.Equal(t, []Kind{Mismatch, Match}, h.kinds())
	assert.Equal(t, "fn main() {}\n", h.outcomes[0].Actual)
	assert.Equal(t, "fn other() {}\n", h.outcomes[0].Expected)

	content, err := os.ReadFile(h.file("pass.expand.out.rs"))
	require.NoError(t, err)
	assert.Equal(t, "fn other() {}\n", string(content))
}

func TestRun_ExpectOnlyIgnoresLineTerminators(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {}\n"),
	})
	require.NoError(t, os.WriteFile(h.file("pass.expand.out.rs"), []byte("fn main() {}\r\n"), 0644))

	assert.Equal(t, cargo.Success, h.run(t, expandPass(ExpectOnly), Options{}))
}

func TestRun_ExpectOnlyMissingSnapshot(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {}\n"),
	})

	assert.Equal(t, cargo.Failure, h.run(t, expandPass(ExpectOnly), Options{}))
	require.Equal(t, []Kind{ExpectedButMissing, Match}, h.kinds())
	assert.Equal(t, "fn main() {}\n", h.outcomes[0].Content)
	assert.NoFileExists(t, h.file("pass.expand.out.rs"))
}

func TestRun_StaleErrorSnapshotIsUnexpectedlyPresent(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {}\n"),
	})
	require.NoError(t, os.WriteFile(h.file("pass.expand.out.rs"), []byte("fn main() {}\n"), 0644))
	require.NoError(t, os.WriteFile(h.file("pass.expand.err.txt"), []byte("error: old\n"), 0644))

	assert.Equal(t, cargo.Failure, h.run(t, expandPass(ExpectOnly), Options{}))
	require.Equal(t, []Kind{Match, UnexpectedlyPresent}, h.kinds())
	assert.Equal(t, "pass.expand.err.txt", h.outcomes[1].SnapshotPath)
	assert.Equal(t, "error: old\n", h.outcomes[1].Content)
}

func TestRun_SkipOverwriteForcesExpectOnly(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {}\n"),
	})

	assert.Equal(t, cargo.Failure, h.run(t, expandPass(Overwrite), Options{SkipOverwrite: true}))
	assert.Equal(t, []Kind{ExpectedButMissing, Match}, h.kinds())
	assert.NoFileExists(t, h.file("pass.expand.out.rs"))
}

func TestRun_UnexpectedFailure(t *testing.T) {
	source := "fn main() { missing!(); }\n"
	h := newHarness(t, source, map[cargo.Action]*cargo.Output{
		cargo.Expand: failure("", "   Compiling host_abc v0.0.0\nerror: cannot find macro `missing` in this scope\n"),
	})

	assert.Equal(t, cargo.Failure, h.run(t, expandPass(Overwrite), Options{}))
	require.Equal(t, []Kind{UnexpectedFailure}, h.kinds())

	outcome := h.outcomes[0]
	assert.Equal(t, source, outcome.Source)
	assert.True(t, outcome.HasStderr)
	assert.Equal(t, "error: cannot find macro `missing` in this scope\n", outcome.Stderr)
	assert.False(t, outcome.HasStdout)
	assert.NoFileExists(t, h.file("pass.expand.err.txt"), "no snapshot is written for an unexpected verdict")
}

func TestRun_UnexpectedSuccess(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {}\n"),
	})
	plan := Plan{Action: cargo.Expand, Behavior: Overwrite, Expectation: cargo.Failure}

	assert.Equal(t, cargo.Failure, h.run(t, plan, Options{}))
	require.Equal(t, []Kind{UnexpectedSuccess}, h.kinds())
	assert.Equal(t, "fn main() {}\n", h.outcomes[0].Stdout)
	assert.NoFileExists(t, h.file("pass.expand.out.rs"))
}

func TestRun_ExpectedFailureRecordsErrors(t *testing.T) {
	h := newHarness(t, "fn main() { missing!(); }\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: failure("", ""),
	})
	h.executor.outputs[cargo.Expand].Stderr = "error: cannot find macro `missing` in this scope\n --> " + filepath.Join(h.dir, "pass.rs") + ":1:13\n"
	plan := Plan{Action: cargo.Expand, Behavior: Overwrite, Expectation: cargo.Failure}

	assert.Equal(t, cargo.Success, h.run(t, plan, Options{}))
	require.Equal(t, []Kind{Created}, h.kinds())

	content, err := os.ReadFile(h.file("pass.expand.err.txt"))
	require.NoError(t, err)
	assert.Equal(t, "error: cannot find macro `missing` in this scope\n --> pass.rs:1:13\n", string(content))
	assert.NoFileExists(t, h.file("pass.expand.out.rs"))

	plan.Behavior = ExpectOnly
	assert.Equal(t, cargo.Success, h.run(t, plan, Options{}))
	assert.Equal(t, []Kind{Match, Match}, h.kinds())
}

func TestRun_FailureWithoutErrorOutput(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: failure("", "   Compiling host_abc v0.0.0\n"),
	})

	_, err := h.runner(expandPass(Overwrite), Options{}).Run(context.Background(), h.test)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeEmptyFailureStream))
}

func TestRun_PostActionSkippedAfterFailedExpansion(t *testing.T) {
	check := cargo.Check
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: failure("", "error: boom\n"),
		cargo.Check:  {Evaluation: cargo.Success},
	})
	plan := Plan{Action: cargo.Expand, PostAction: &check, Behavior: Overwrite, Expectation: cargo.Failure}

	assert.Equal(t, cargo.Success, h.run(t, plan, Options{}))
	assert.Equal(t, []cargo.Action{cargo.Expand}, h.executor.calls)
	assert.FileExists(t, h.file("pass.expand.err.txt"))
	assert.NoFileExists(t, h.file("pass.check.err.txt"))
}

func TestRun_PostActionSnapshots(t *testing.T) {
	run := cargo.Run
	h := newHarness(t, "fn main() { println!(\"hi\"); }\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() { println!(\"hi\"); }\n"),
		cargo.Run:    {Stdout: "hi\n", Evaluation: cargo.Success},
	})
	plan := Plan{Action: cargo.Expand, PostAction: &run, Behavior: Overwrite, Expectation: cargo.Success}

	assert.Equal(t, cargo.Success, h.run(t, plan, Options{}))
	assert.Equal(t, []cargo.Action{cargo.Expand, cargo.Run}, h.executor.calls)
	assert.Equal(t, []Kind{Created, Created}, h.kinds())

	content, err := os.ReadFile(h.file("pass.run.out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(content))
	assert.NoFileExists(t, h.file("pass.run.err.txt"))
}

func TestRun_PostActionFailureIsUnexpected(t *testing.T) {
	test := cargo.Test
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Expand: expandSuccess("fn main() {}\n"),
		cargo.Test:   failure("test result: FAILED. 0 passed; 1 failed\n", ""),
	})
	plan := Plan{Action: cargo.Expand, PostAction: &test, Behavior: Overwrite, Expectation: cargo.Success}

	assert.Equal(t, cargo.Failure, h.run(t, plan, Options{}))
	require.Equal(t, []Kind{UnexpectedFailure}, h.kinds())
	assert.True(t, h.outcomes[0].HasStdout, "a test harness may report its failure on stdout")
	assert.False(t, h.outcomes[0].HasStderr)
}

func TestRun_CheckHasNoStdoutSnapshot(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", map[cargo.Action]*cargo.Output{
		cargo.Check: {Stdout: "ignored", Evaluation: cargo.Success},
	})
	plan := Plan{Action: cargo.Check, Behavior: ExpectOnly, Expectation: cargo.Success}

	assert.Equal(t, cargo.Success, h.run(t, plan, Options{}))
	require.Equal(t, []Kind{Match}, h.kinds())
	assert.Equal(t, "pass.check.err.txt", h.outcomes[0].SnapshotPath)
}

func TestRun_ExecutorErrorPropagates(t *testing.T) {
	h := newHarness(t, "fn main() {}\n", nil)
	h.executor.err = errors.New(errors.CodeCommand, "cargo not found")

	evaluation, err := h.runner(expandPass(Overwrite), Options{}).Run(context.Background(), h.test)
	assert.Equal(t, cargo.Failure, evaluation)
	assert.True(t, errors.HasCode(err, errors.CodeCommand))
	assert.Empty(t, h.outcomes)
}

func TestPaths(t *testing.T) {
	path, ok := Path("tests/expand/pass.rs", cargo.Expand, normalize.Stdout)
	assert.True(t, ok)
	assert.Equal(t, "tests/expand/pass.expand.out.rs", path)

	_, ok = Path("pass.rs", cargo.Check, normalize.Stdout)
	assert.False(t, ok)

	assert.True(t, IsSnapshot("tests/pass.expand.out.rs"))
	assert.True(t, IsSnapshot("tests/pass.test.err.txt"))
	assert.True(t, IsSnapshot("tests/pass.expanded.rs"))
	assert.False(t, IsSnapshot("tests/pass.rs"))
}

func TestPlanString(t *testing.T) {
	run := cargo.Run
	assert.Equal(t, "expand", Plan{Action: cargo.Expand}.String())
	assert.Equal(t, "expand and run", Plan{Action: cargo.Expand, PostAction: &run}.String())
}
