package cargo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dangazineu/tryexpand/internal/errors"
)

// Rustflags are the compiler flags every synthesized project is built with.
// They are written to the project's cargo config and, because cargo ignores
// that setting whenever RUSTFLAGS or CARGO_ENCODED_RUSTFLAGS is set, also
// appended to whichever of those variables the environment carries.
var Rustflags = []string{"--cfg", "tryexpand", "-A", "warnings"}

const (
	rustflagsKey        = "RUSTFLAGS"
	encodedRustflagsKey = "CARGO_ENCODED_RUSTFLAGS"
	encodedSeparator    = "\x1f"
)

// Target identifies the build target an action runs against.
type Target struct {
	// Dir is the directory holding the synthesized manifest.
	Dir string
	// TargetDir is the build-output directory used instead of the host's.
	TargetDir string
	// Bin is the name of the binary target.
	Bin string
}

// Invocation carries caller-supplied extras merged on top of the defaults.
type Invocation struct {
	Args []string
	Env  map[string]string
}

// Output is the captured result of one invocation.
type Output struct {
	Action     Action
	Stdout     string
	Stderr     string
	Evaluation Evaluation
}

// Executor invokes the build tool synchronously. No timeout is applied beyond
// what the caller's context carries.
type Executor struct {
	Program string
	// BaseEnv is the environment every invocation starts from. A nil BaseEnv
	// means the current process environment.
	BaseEnv []string
	Logger  logrus.FieldLogger
}

// NewExecutor creates an executor for program (usually "cargo").
func NewExecutor(program string, logger logrus.FieldLogger) *Executor {
	if program == "" {
		program = "cargo"
	}
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Executor{Program: program, Logger: logger}
}

// Execute runs action against target and decides its evaluation. The exit
// status alone is not trusted: cargo sometimes exits successfully after
// printing compile errors, so stderr is scanned for error markers too.
func (e *Executor) Execute(ctx context.Context, action Action, target Target, inv Invocation) (*Output, error) {
	args := append(action.args(target.Bin), inv.Args...)
	overrides := e.overrides(action, target, inv)

	cmd := exec.CommandContext(ctx, e.Program, args...)
	cmd.Dir = target.Dir
	cmd.Env = e.environment(overrides)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logInvocation(args, overrides)

	err := cmd.Run()
	exitOK := err == nil
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, errors.Wrapf(err, errors.CodeCommand, "failed to execute `%s %s`", e.Program, strings.Join(args, " "))
		}
	}

	output := &Output{
		Action: action,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	output.Evaluation = evaluate(action, exitOK, output.Stdout, output.Stderr)

	e.Logger.WithFields(logrus.Fields{
		"bin":        target.Bin,
		"action":     action.String(),
		"exit_ok":    exitOK,
		"evaluation": output.Evaluation.String(),
	}).Debugf("captured output\n--- stdout ---\n%s\n--- stderr ---\n%s", output.Stdout, output.Stderr)

	return output, nil
}

func evaluate(action Action, exitOK bool, stdout, stderr string) Evaluation {
	if !exitOK {
		return Failure
	}
	switch action {
	case Expand:
		if containsLine(stderr, LineIsError) || strings.TrimSpace(stdout) == "" {
			return Failure
		}
	case Test:
		if containsLine(stderr, LineIsError) || containsLine(stdout, LineIsTestFailure) || containsLine(stderr, LineIsTestFailure) {
			return Failure
		}
	}
	return Success
}

// WarmUp builds the dependencies of the placeholder target once so later
// per-test invocations only compile the test file itself. Expanded output is
// echoed to out without prelude boilerplate and build progress goes to out as
// well. Only failing to start the tool is an error; a failed warm-up build
// surfaces again in the individual tests.
func (e *Executor) WarmUp(ctx context.Context, action Action, target Target, inv Invocation, out io.Writer) error {
	args := append(action.warmUpArgs(target.Bin), inv.Args...)
	overrides := e.overrides(action, target, inv)

	cmd := exec.CommandContext(ctx, e.Program, args...)
	cmd.Dir = target.Dir
	cmd.Env = e.environment(overrides)

	out = &lockedWriter{w: out}
	cmd.Stderr = out

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, errors.CodeInfrastructure, "failed to capture warm-up output")
	}

	e.logInvocation(args, overrides)

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, errors.CodeCommand, "failed to execute `%s %s`", e.Program, strings.Join(args, " "))
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if lineIsWarmUpNoise(line) {
			continue
		}
		fmt.Fprintln(out, line)
	}
	if err := scanner.Err(); err != nil {
		e.Logger.WithError(err).Debug("stopped echoing warm-up output")
	}
	// The pipe must be drained or cargo blocks on a full pipe and Wait never
	// returns.
	if _, err := io.Copy(io.Discard, stdout); err != nil {
		e.Logger.WithError(err).Debug("failed to drain warm-up output")
	}

	if err := cmd.Wait(); err != nil {
		e.Logger.WithError(err).Debug("warm-up build did not succeed")
	}
	return nil
}

// overrides returns the variables set on top of the base environment, in the
// order they are applied: suite defaults first, caller values next and the
// merged compiler flags last.
func (e *Executor) overrides(action Action, target Target, inv Invocation) [][2]string {
	result := [][2]string{
		{"CARGO_TARGET_DIR", target.TargetDir},
		{"CARGO_TERM_COLOR", "never"},
	}
	if action == Run || action == Test {
		result = append(result, [2]string{"RUST_BACKTRACE", "0"})
	}

	keys := make([]string, 0, len(inv.Env))
	for key := range inv.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		result = append(result, [2]string{key, inv.Env[key]})
	}

	if kv, ok := e.rustflags(inv); ok {
		result = append(result, kv)
	}
	return result
}

// rustflags merges Rustflags into the flags variable cargo will honor. The
// encoded form takes precedence over RUSTFLAGS, as in cargo itself. With
// neither set, the project's cargo config applies and nothing is returned.
func (e *Executor) rustflags(inv Invocation) ([2]string, bool) {
	lookup := func(key string) (string, bool) {
		if value, ok := inv.Env[key]; ok {
			return value, true
		}
		return lookupEnv(e.base(), key)
	}

	if value, ok := lookup(encodedRustflagsKey); ok {
		flags := strings.Join(Rustflags, encodedSeparator)
		if value != "" {
			flags = value + encodedSeparator + flags
		}
		return [2]string{encodedRustflagsKey, flags}, true
	}
	if value, ok := lookup(rustflagsKey); ok {
		flags := strings.Join(Rustflags, " ")
		if strings.TrimSpace(value) != "" {
			flags = value + " " + flags
		}
		return [2]string{rustflagsKey, flags}, true
	}
	return [2]string{}, false
}

func (e *Executor) base() []string {
	if e.BaseEnv == nil {
		return os.Environ()
	}
	return e.BaseEnv
}

// lookupEnv finds key in a KEY=VALUE list. Later entries win, as they do for
// exec.Cmd.
func lookupEnv(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func (e *Executor) environment(overrides [][2]string) []string {
	base := e.base()
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)
	for _, kv := range overrides {
		env = append(env, kv[0]+"="+kv[1])
	}
	return env
}

func (e *Executor) logInvocation(args []string, overrides [][2]string) {
	env := make([]string, 0, len(overrides))
	for _, kv := range overrides {
		env = append(env, kv[0]+"="+kv[1])
	}
	e.Logger.WithFields(logrus.Fields{
		"command": e.Program + " " + strings.Join(args, " "),
		"env":     strings.Join(env, " "),
	}).Debug("invoking build tool")
}

// lockedWriter serializes the echoed stdout lines with the stderr copy that
// exec runs on its own goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
