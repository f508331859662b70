package snapshot

import (
	"strings"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/normalize"
)

// Snapshot file suffixes, appended to the source path minus its `.rs`.
const (
	ExpandOutSuffix = ".expand.out.rs"
	ExpandErrSuffix = ".expand.err.txt"
	CheckErrSuffix  = ".check.err.txt"
	RunOutSuffix    = ".run.out.txt"
	RunErrSuffix    = ".run.err.txt"
	TestOutSuffix   = ".test.out.txt"
	TestErrSuffix   = ".test.err.txt"

	// LegacyExpandedSuffix is the snapshot name used by older releases.
	LegacyExpandedSuffix = ".expanded.rs"
)

var suffixes = map[cargo.Action][2]string{
	cargo.Expand: {ExpandOutSuffix, ExpandErrSuffix},
	cargo.Check:  {"", CheckErrSuffix},
	cargo.Run:    {RunOutSuffix, RunErrSuffix},
	cargo.Test:   {TestOutSuffix, TestErrSuffix},
}

// Suffix returns the snapshot suffix of a stream, or false when the action
// never snapshots that stream.
func Suffix(action cargo.Action, stream normalize.Stream) (string, bool) {
	suffix := suffixes[action][stream]
	return suffix, suffix != ""
}

// Path returns the snapshot path for a stream of source.
func Path(source string, action cargo.Action, stream normalize.Stream) (string, bool) {
	suffix, ok := Suffix(action, stream)
	if !ok {
		return "", false
	}
	return strings.TrimSuffix(source, ".rs") + suffix, true
}

// IsSnapshot reports whether path names a snapshot file rather than a test
// source.
func IsSnapshot(path string) bool {
	if strings.HasSuffix(path, LegacyExpandedSuffix) {
		return true
	}
	for _, pair := range suffixes {
		for _, suffix := range pair {
			if suffix != "" && strings.HasSuffix(path, suffix) {
				return true
			}
		}
	}
	return false
}
