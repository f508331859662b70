package tryexpand_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangazineu/tryexpand"
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

// recordingTB captures fatal failures instead of stopping the test.
type recordingTB struct {
	*testing.T
	fatals []string
}

func (r *recordingTB) Fatal(args ...any) {
	r.fatals = append(r.fatals, fmt.Sprint(args...))
}

// setupCrate lays out a fake crate in a temporary working directory and
// points CARGO at a script that imitates cargo.
func setupCrate(t *testing.T, behavior string, files map[string]string) string {
	t.Helper()
	color.NoColor = true

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-cargo")
	require.NoError(t, os.WriteFile(script, []byte(strings.ReplaceAll(fakeCargo, "@DIR@", dir)), 0755))
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	t.Chdir(dir)
	t.Setenv("CARGO", script)
	t.Setenv("CARGO_PKG_NAME", "")
	t.Setenv("CARGO_TARGET_DIR", "")
	t.Setenv("TRYEXPAND", behavior)
	return dir
}

func TestExpand_OverwriteThenExpect(t *testing.T) {
	dir := setupCrate(t, "overwrite", map[string]string{
		"tests/expand/pass.rs": "fn pass() {}\n",
	})

	result := tryexpand.Expand("tests/expand/*.rs").ExpectPass(t)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Total)

	data, err := os.ReadFile(filepath.Join(dir, "tests", "expand", "pass.expand.out.rs"))
	require.NoError(t, err)
	assert.Equal(t, "fn pass() {}\n", string(data))

	t.Setenv("TRYEXPAND", "expect")
	result = tryexpand.Expand("tests/expand/*.rs").ExpectPass(t)
	assert.True(t, result.Passed())
}

func TestExpand_ExpectFail(t *testing.T) {
	dir := setupCrate(t, "overwrite", map[string]string{
		"tests/expand/fail.rs": "compile_error!(\"no\");\n",
	})

	tryexpand.Expand("tests/expand/*.rs").ExpectFail(t)

	data, err := os.ReadFile(filepath.Join(dir, "tests", "expand", "fail.expand.err.txt"))
	require.NoError(t, err)
	assert.Equal(t, "error: expansion failed\n", string(data))
}

func TestExpand_MismatchFailsTest(t *testing.T) {
	setupCrate(t, "expect", map[string]string{
		"tests/expand/pass.rs":            "fn pass() {}\n",
		"tests/expand/pass.expand.out.rs": "fn stale() {}\n",
	})

	rec := &recordingTB{T: t}
	result := tryexpand.Expand("tests/expand/*.rs").ExpectPass(rec)

	require.Len(t, rec.fatals, 1)
	assert.Equal(t, "1 of 1 tests failed:\n\n    "+filepath.Join("tests", "expand", "pass.rs"), rec.fatals[0])
	require.NotNil(t, result)
	assert.False(t, result.Passed())
}

func TestExpand_ConfigurationErrors(t *testing.T) {
	setupCrate(t, "expect", map[string]string{
		"tests/expand/pass.rs": "fn pass() {}\n",
	})

	rec := &recordingTB{T: t}
	assert.Nil(t, tryexpand.Expand().ExpectPass(rec))
	assert.Nil(t, tryexpand.Expand("tests/none/*.rs").ExpectPass(rec))
	assert.Nil(t, tryexpand.Expand("tests/expand/*.rs").FilterStderr("[", "").ExpectPass(rec))

	t.Setenv("TRYEXPAND", "bogus")
	assert.Nil(t, tryexpand.Run("tests/expand/*.rs").ExpectPass(rec))

	require.Len(t, rec.fatals, 4)
	assert.Equal(t, "no file patterns provided", rec.fatals[0])
	assert.Equal(t, "no matching files found for:\n    tests/none/*.rs", rec.fatals[1])
	assert.True(t, strings.HasPrefix(rec.fatals[2], "invalid regex pattern '['"))
	assert.Equal(t, `unrecognized value of TRYEXPAND env var: "bogus"`, rec.fatals[3])
}

func TestExpand_AndCheck(t *testing.T) {
	dir := setupCrate(t, "overwrite", map[string]string{
		"tests/expand/pass.rs": "fn pass() {}\n",
	})

	result := tryexpand.Expand("tests/expand/*.rs").
		Arg("--offline").
		Env("RUSTFLAGS", "").
		AndCheck().
		ExpectPass(t)
	assert.True(t, result.Passed())

	assert.FileExists(t, filepath.Join(dir, "tests", "expand", "pass.expand.out.rs"))
	assert.NoFileExists(t, filepath.Join(dir, "tests", "expand", "pass.check.err.txt"))
}

func TestCheck_SkipOverwrite(t *testing.T) {
	dir := setupCrate(t, "overwrite", map[string]string{
		"tests/check/fail.rs": "compile_error!(\"no\");\n",
	})

	rec := &recordingTB{T: t}
	tryexpand.Check("tests/check/*.rs").SkipOverwrite().ExpectFail(rec)

	require.Len(t, rec.fatals, 1, "the missing error snapshot is reported instead of written")
	assert.NoFileExists(t, filepath.Join(dir, "tests", "check", "fail.check.err.txt"))
}
