package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(CodeConfiguration, "no file patterns provided")
	if got, want := plain.Error(), "CONFIGURATION: no file patterns provided"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	cause := fmt.Errorf("permission denied")
	wrapped := Wrap(cause, CodeInfrastructure, "could not write manifest")
	if got, want := wrapped.Error(), "INFRASTRUCTURE: could not write manifest - permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
}

func TestHasCode(t *testing.T) {
	inner := New(CodeEmptyFailureStream, "stderr was empty")
	outer := Wrap(inner, CodeCommand, "test failed to run")
	viaFmt := fmt.Errorf("context: %w", outer)

	testCases := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"direct", inner, CodeEmptyFailureStream, true},
		{"outer code", outer, CodeCommand, true},
		{"nested code", outer, CodeEmptyFailureStream, true},
		{"through fmt wrapping", viaFmt, CodeEmptyFailureStream, true},
		{"missing code", outer, CodeConfiguration, false},
		{"foreign error", fmt.Errorf("boom"), CodeCommand, false},
		{"nil", nil, CodeCommand, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasCode(tc.err, tc.code); got != tc.want {
				t.Errorf("HasCode() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	if got := Message(Newf(CodeTestsFailed, "%d of %d tests failed", 1, 3)); got != "1 of 3 tests failed" {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(Wrap(fmt.Errorf("exit status 101"), CodeCommand, "cargo failed")); got != "cargo failed: exit status 101" {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(fmt.Errorf("plain")); got != "plain" {
		t.Errorf("Message() = %q", got)
	}
}
