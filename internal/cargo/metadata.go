package cargo

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dangazineu/tryexpand/internal/errors"
)

// Metadata is the subset of `cargo metadata --format-version=1` output the
// project synthesizer needs.
type Metadata struct {
	Packages        []Package `json:"packages"`
	TargetDirectory string    `json:"target_directory"`
	WorkspaceRoot   string    `json:"workspace_root"`
}

// Package is one crate of the host workspace.
type Package struct {
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	ManifestPath string              `json:"manifest_path"`
	Edition      string              `json:"edition"`
	RustVersion  string              `json:"rust_version"`
	Features     map[string][]string `json:"features"`
	Dependencies []Dependency        `json:"dependencies"`
}

// Dependency is one declared dependency of a Package.
type Dependency struct {
	Name                string   `json:"name"`
	Req                 string   `json:"req"`
	Kind                string   `json:"kind"`
	Rename              string   `json:"rename"`
	Optional            bool     `json:"optional"`
	UsesDefaultFeatures bool     `json:"uses_default_features"`
	Features            []string `json:"features"`
	Target              string   `json:"target"`
	Registry            string   `json:"registry"`
	Path                string   `json:"path"`
}

// Dependency kinds as reported by cargo; normal dependencies have no kind.
const (
	KindNormal      = ""
	KindDevelopment = "dev"
	KindBuild       = "build"
)

// ManifestDir returns the directory holding the package's Cargo.toml.
func (p *Package) ManifestDir() string {
	return filepath.Dir(p.ManifestPath)
}

// LoadMetadata runs `cargo metadata` in dir and decodes its output.
func LoadMetadata(ctx context.Context, program, dir string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, program, "metadata", "--format-version=1", "--no-deps")
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := "failed to read cargo metadata in " + dir
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			message += ": " + detail
		}
		return nil, errors.Wrap(err, errors.CodeConfiguration, message)
	}

	return ParseMetadata(stdout.Bytes())
}

// ParseMetadata decodes raw `cargo metadata` JSON.
func ParseMetadata(data []byte) (*Metadata, error) {
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "could not decode cargo metadata")
	}
	return &metadata, nil
}

// FindPackage resolves the host crate. An explicit name wins; otherwise the
// package whose manifest lives in dir, and finally the workspace root package.
func (m *Metadata) FindPackage(name, dir string) (*Package, error) {
	if name != "" {
		for i := range m.Packages {
			if m.Packages[i].Name == name {
				return &m.Packages[i], nil
			}
		}
		return nil, errors.Newf(errors.CodeConfiguration, "package '%s' not found in cargo metadata", name)
	}

	candidates := []string{dir, m.WorkspaceRoot}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		for i := range m.Packages {
			if samePath(m.Packages[i].ManifestDir(), candidate) {
				return &m.Packages[i], nil
			}
		}
	}

	return nil, errors.New(errors.CodeConfiguration, "could not determine the package under test; set CARGO_PKG_NAME")
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
