package cargo

import (
	"fmt"
)

// Action is one kind of build-tool invocation. The set is closed.
type Action int

const (
	Expand Action = iota
	Check
	Test
	Run
)

var actionNames = map[Action]string{
	Expand: "expand",
	Check:  "check",
	Test:   "test",
	Run:    "run",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction maps "expand", "check", "test" and "run" to their Action.
func ParseAction(name string) (Action, error) {
	for action, actionName := range actionNames {
		if actionName == name {
			return action, nil
		}
	}
	return 0, fmt.Errorf("unknown action '%s', must be one of: expand, check, run, test", name)
}

// Subcommand is the cargo subcommand that performs a.
func (a Action) Subcommand() string {
	return a.String()
}

// IsPostAction reports whether a can follow a successful expansion.
func (a Action) IsPostAction() bool {
	return a == Check || a == Test || a == Run
}

// args returns the subcommand and flags for running a against bin.
func (a Action) args(bin string) []string {
	switch a {
	case Expand:
		return []string{"expand", "--bin", bin, "--theme", "none"}
	case Check:
		return []string{"check", "--bin", bin, "--color", "never"}
	case Test:
		return []string{"test", "--bin", bin, "--quiet", "--color", "never"}
	case Run:
		return []string{"run", "--bin", bin, "--quiet", "--color", "never"}
	}
	panic(fmt.Sprintf("unhandled action %v", a))
}

// warmUpArgs returns the invocation that builds shared dependencies for a
// suite whose primary action is a.
func (a Action) warmUpArgs(bin string) []string {
	switch a {
	case Expand:
		return []string{"expand", "--bin", bin, "--theme", "none"}
	case Check:
		return []string{"check", "--bin", bin, "--color", "never"}
	default:
		return []string{"build", "--bin", bin, "--color", "never"}
	}
}

// Evaluation is the binary verdict of one or more invocations.
type Evaluation int

const (
	Success Evaluation = iota
	Failure
)

func (e Evaluation) String() string {
	if e == Success {
		return "success"
	}
	return "failure"
}

// And is Success only if both e and other are.
func (e Evaluation) And(other Evaluation) Evaluation {
	if e == Success && other == Success {
		return Success
	}
	return Failure
}
