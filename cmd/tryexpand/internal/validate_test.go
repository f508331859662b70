package internal

import (
	"strings"
	"testing"
)

func TestValidateCmd(t *testing.T) {
	dir := setupCrate(t, map[string]string{
		"tryexpand.yml": `version: "1"
suites:
  - name: pass
    action: expand
    then: check
    patterns: ["tests/expand/*.rs"]
  - name: fail
    action: check
    expect: fail
    patterns: ["tests/check/*.rs"]
    if: os == "linux"
`,
	})

	out, _, err := execute(t, "validate", "--dir", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "  pass: expand then check\n  fail: check\nValidation successful!\n"
	if out != want {
		t.Errorf("expected output %q, got %q", want, out)
	}
}

func TestValidateCmd_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing version",
			content: "suites:\n  - name: a\n    action: expand\n    patterns: [\"*.rs\"]\n",
			wantErr: "missing required field: version",
		},
		{
			name:    "then after check",
			content: "version: \"1\"\nsuites:\n  - name: a\n    action: check\n    then: run\n    patterns: [\"*.rs\"]\n",
			wantErr: "then is only allowed after expand",
		},
		{
			name:    "bad condition",
			content: "version: \"1\"\nsuites:\n  - name: a\n    action: expand\n    patterns: [\"*.rs\"]\n    if: \"env[\"\n",
			wantErr: "invalid if condition",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := setupCrate(t, map[string]string{"tryexpand.yml": tc.content})
			_, _, err := execute(t, "validate", "--dir", dir)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestValidateCmd_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "validate", "--dir", dir, "--config", "other.yml")
	if err == nil || !strings.Contains(err.Error(), "could not read suite file") {
		t.Fatalf("expected read error, got %v", err)
	}
}
