package snapshot

import (
	"fmt"

	"github.com/dangazineu/tryexpand/internal/cargo"
)

// Kind tags an Outcome.
type Kind int

const (
	Match Kind = iota
	Mismatch
	Created
	Updated
	ExpectedButMissing
	UnexpectedlyPresent
	UnexpectedSuccess
	UnexpectedFailure
)

var kindNames = map[Kind]string{
	Match:               "match",
	Mismatch:            "mismatch",
	Created:             "created",
	Updated:             "updated",
	ExpectedButMissing:  "expected but missing",
	UnexpectedlyPresent: "unexpectedly present",
	UnexpectedSuccess:   "unexpected success",
	UnexpectedFailure:   "unexpected failure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Outcome is the result of comparing one stream against its snapshot, or a
// terminal verdict on the whole test. Only the fields relevant to Kind are
// set.
type Outcome struct {
	Kind Kind
	// SnapshotPath is set for every per-stream outcome.
	SnapshotPath string

	// Mismatch.
	Actual   string
	Expected string
	// Updated, and After alone for Created.
	Before string
	After  string
	// ExpectedButMissing and UnexpectedlyPresent.
	Content string

	// UnexpectedSuccess and UnexpectedFailure.
	Source    string
	Stdout    string
	HasStdout bool
	Stderr    string
	HasStderr bool
}

// Status maps the outcome to the test verdict it implies.
func (o Outcome) Status() cargo.Evaluation {
	switch o.Kind {
	case Match, Created, Updated:
		return cargo.Success
	}
	return cargo.Failure
}
