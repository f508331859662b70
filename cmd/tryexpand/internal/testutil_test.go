package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

const fakeCargo = `#!/bin/sh
case "$1" in
metadata)
  cat <<JSON
{"packages":[{"name":"host","version":"0.1.0","manifest_path":"@DIR@/Cargo.toml","edition":"2021","features":{},"dependencies":[]}],"target_directory":"@DIR@/target","workspace_root":"@DIR@"}
JSON
  ;;
*)
  src=$(grep -A1 "name = \"$3\"" Cargo.toml | grep 'path = ' | head -n 1 | sed 's/.*path = "\(.*\)"/\1/')
  if grep -q compile_error "$src"; then
    echo "error: expansion failed" >&2
    exit 101
  fi
  cat "$src"
  ;;
esac
`

// setupCrate writes files into a temporary crate directory and points CARGO
// at a script imitating cargo.
func setupCrate(t *testing.T, files map[string]string) string {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()

	script := filepath.Join(dir, "fake-cargo")
	if err := os.WriteFile(script, []byte(strings.ReplaceAll(fakeCargo, "@DIR@", dir)), 0755); err != nil {
		t.Fatalf("failed to write fake cargo: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	t.Setenv("CARGO", script)
	t.Setenv("CARGO_TARGET_DIR", "")
	t.Setenv("CARGO_PKG_NAME", "")
	t.Setenv("TRYEXPAND", "expect")
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
