package internal

import (
	"bytes"
	"runtime/debug"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	b := bytes.NewBufferString("")
	errb := bytes.NewBufferString("")
	cmd := NewVersionCmd()
	cmd.SetOut(b)
	cmd.SetErr(errb)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("failed to execute version command: %v", err)
	}

	if b.String() == "" && errb.String() == "" {
		t.Errorf("expected output to not be empty")
	}
	if b.String() != "" && !strings.HasPrefix(b.String(), "tryexpand ") {
		t.Errorf("unexpected version output %q", b.String())
	}
}

func TestVersionFromBuildInfo(t *testing.T) {
	testCases := []struct {
		name    string
		info    *debug.BuildInfo
		want    string
		wantErr bool
	}{
		{
			name: "module version",
			info: &debug.BuildInfo{Main: debug.Module{Version: "v1.2.3"}},
			want: "v1.2.3",
		},
		{
			name: "pseudo version",
			info: &debug.BuildInfo{Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abcdef1234567890"},
				{Key: "vcs.time", Value: "2025-07-15T12:00:00Z"},
			}},
			want: "v0.0.0-20250715120000-abcdef123456",
		},
		{
			name: "dirty tree",
			info: &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}, Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abc"},
				{Key: "vcs.modified", Value: "true"},
			}},
			want: "v0.0.0-abc+dirty",
		},
		{
			name:    "no version",
			info:    &debug.BuildInfo{},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := versionFromBuildInfo(tc.info)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
