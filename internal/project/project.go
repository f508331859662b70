// Package project synthesizes the throwaway cargo project every test file of a
// suite is compiled in, and removes it again afterwards.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/errors"
)

// TestCase is one source file under test together with the binary target it
// is compiled as.
type TestCase struct {
	// Path is the source path as matched from the user's pattern.
	Path string
	// Bin is the binary target id, unique within a project.
	Bin string
}

// Project is the on-disk layout of a synthesized crate.
type Project struct {
	// Dir holds the synthesized manifest and configuration.
	Dir string
	// TargetDir is the build-output directory. It is separate from the host's
	// and shared by every project of the host crate, so it outlives Dir and
	// dependencies are only rebuilt when they change.
	TargetDir string
	// ManifestDir is the directory of the host crate under test.
	ManifestDir string
	// SourceDir is the directory relative test paths are resolved against.
	SourceDir string
	// Name is the synthesized crate name.
	Name string
	// CrateName is the name of the host crate.
	CrateName string
	// Features are the host features re-exported by the synthesized crate.
	Features []string
	// Tests are sorted by path.
	Tests []TestCase

	manifest *manifest
}

// ProjectsDir is the directory, relative to the host target directory, that
// holds every synthesized project.
const ProjectsDir = "tests/tryexpand"

// BuildDir is the name of the shared build-output directory inside
// ProjectsDir. Project names always carry a suite id, so it never collides
// with one.
const BuildDir = "target"

const (
	manifestFile    = "Cargo.toml"
	warmUpFile      = "main.rs"
	warmUpSource    = "fn main() {}\n"
	cargoConfigFile = "config.toml"
	lockFile        = ".tryexpand-lock"
)

// New computes the project for pkg and the given test paths. Nothing is
// written to disk until Materialize.
func New(meta *cargo.Metadata, pkg *cargo.Package, suiteID, hostTargetDir, sourceDir string, paths []string) (*Project, error) {
	name := fmt.Sprintf("%s_%s", pkg.Name, suiteID)
	root := filepath.Join(hostTargetDir, filepath.FromSlash(ProjectsDir))

	project := &Project{
		Dir:         filepath.Join(root, name),
		TargetDir:   filepath.Join(root, BuildDir),
		ManifestDir: pkg.ManifestDir(),
		SourceDir:   sourceDir,
		Name:        name,
		CrateName:   pkg.Name,
		Tests:       testCases(name, pkg.Name, paths),
	}

	for feature := range pkg.Features {
		project.Features = append(project.Features, feature)
	}
	sort.Strings(project.Features)

	m, err := buildManifest(meta, pkg, project)
	if err != nil {
		return nil, err
	}
	project.manifest = m

	return project, nil
}

func testCases(name, crate string, paths []string) []TestCase {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	seen := make(map[string]int)
	tests := make([]TestCase, 0, len(sorted))
	for _, path := range sorted {
		bin := fmt.Sprintf("%s_%s", name, hashID(crate+"/"+filepath.ToSlash(path)))
		seen[bin]++
		if n := seen[bin]; n > 1 {
			bin = fmt.Sprintf("%s_%d", bin, n)
		}
		tests = append(tests, TestCase{Path: path, Bin: bin})
	}
	return tests
}

// WarmUpBin is the placeholder binary used to pre-build dependencies.
func (p *Project) WarmUpBin() string {
	return p.Name
}

// SourcePath returns the absolute path of a test's source file.
func (p *Project) SourcePath(test TestCase) string {
	if filepath.IsAbs(test.Path) {
		return test.Path
	}
	return filepath.Join(p.SourceDir, test.Path)
}

// Target returns the executor target for bin.
func (p *Project) Target(bin string) cargo.Target {
	return cargo.Target{Dir: p.Dir, TargetDir: p.TargetDir, Bin: bin}
}

// Materialize writes the project to disk, replacing whatever a previous,
// interrupted run left behind.
func (p *Project) Materialize() error {
	if _, err := os.Stat(p.Dir); err == nil {
		if err := os.RemoveAll(p.Dir); err != nil {
			return errors.Wrapf(err, errors.CodeInfrastructure, "failed to remove stale project %s", p.Dir)
		}
	}

	if err := os.MkdirAll(filepath.Join(p.Dir, ".cargo"), 0755); err != nil {
		return errors.Wrap(err, errors.CodeInfrastructure, "failed to create project directory")
	}
	if err := os.MkdirAll(p.TargetDir, 0755); err != nil {
		return errors.Wrap(err, errors.CodeInfrastructure, "failed to create project target directory")
	}

	manifestTOML, err := encodeTOML(p.manifest)
	if err != nil {
		return errors.Wrap(err, errors.CodeInfrastructure, "failed to serialize project manifest")
	}
	configTOML, err := encodeTOML(newCargoConfig())
	if err != nil {
		return errors.Wrap(err, errors.CodeInfrastructure, "failed to serialize cargo config")
	}

	files := []struct {
		path    string
		content []byte
	}{
		{filepath.Join(p.Dir, manifestFile), manifestTOML},
		{filepath.Join(p.Dir, ".cargo", cargoConfigFile), configTOML},
		{filepath.Join(p.Dir, warmUpFile), []byte(warmUpSource)},
		{filepath.Join(p.Dir, lockFile), []byte(fmt.Sprintf("%d\n", os.Getpid()))},
	}
	for _, file := range files {
		if err := os.WriteFile(file.path, file.content, 0644); err != nil {
			return errors.Wrapf(err, errors.CodeInfrastructure, "failed to write %s", file.path)
		}
	}

	return nil
}

// Guard returns the cleanup to defer before the project is materialized, so
// that a partly written project is removed too. Unless keep is set the
// project directory is removed; the shared TargetDir is always kept. Failures
// are only logged.
func (p *Project) Guard(keep bool, logger logrus.FieldLogger) func() {
	return func() {
		if keep {
			_ = os.Remove(filepath.Join(p.Dir, lockFile))
			logger.WithField("dir", p.Dir).Debug("keeping project artifacts")
			return
		}
		if err := os.RemoveAll(p.Dir); err != nil {
			logger.WithError(err).WithField("dir", p.Dir).Warn("failed to remove project artifacts")
		}
	}
}
