package cargo

import (
	"strings"
)

// LineIsError reports whether line opens a compiler or cargo error.
func LineIsError(line string) bool {
	return strings.HasPrefix(line, "error:") || strings.HasPrefix(line, "error[")
}

// LineIsWarning reports whether line opens a compiler or cargo warning.
func LineIsWarning(line string) bool {
	return strings.HasPrefix(line, "warning:") || strings.HasPrefix(line, "warning[")
}

// LineIsTestFailure reports whether line is the summary of a failed test run.
func LineIsTestFailure(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "test result: FAILED")
}

var progressPrefixes = []string{
	"Blocking waiting for file lock",
	"Checking ",
	"Compiling ",
	"Downloaded ",
	"Downloading ",
	"Finished ",
	"Fresh ",
	"Locking ",
	"Running ",
	"Updating ",
}

// LineShouldBeOmitted reports whether line is cargo progress chatter that
// depends on build cache state rather than on the code under test.
func LineShouldBeOmitted(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range progressPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

var preludeLinePrefixes = []string{
	"#![feature(prelude_import)]",
	"#[prelude_import]",
	"use std::prelude::",
	"#[macro_use]",
	"extern crate std;",
}

// lineIsWarmUpNoise reports whether an expanded line of the placeholder target
// is boilerplate not worth echoing during the warm-up build.
func lineIsWarmUpNoise(line string) bool {
	if strings.HasPrefix(line, "fn main() {}") {
		return true
	}
	for _, prefix := range preludeLinePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func containsLine(text string, predicate func(string) bool) bool {
	for _, line := range strings.Split(text, "\n") {
		if predicate(strings.TrimRight(line, "\r")) {
			return true
		}
	}
	return false
}
