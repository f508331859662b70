package project

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/errors"
)

type manifest struct {
	Package           manifestPackage          `toml:"package"`
	Features          map[string][]string      `toml:"features"`
	Dependencies      map[string]dependency    `toml:"dependencies"`
	BuildDependencies map[string]dependency    `toml:"build-dependencies,omitempty"`
	Target            map[string]targetSection `toml:"target,omitempty"`
	Bins              []bin                    `toml:"bin"`
	Workspace         workspace                `toml:"workspace"`
	Patch             map[string]any           `toml:"patch,omitempty"`
	Replace           map[string]any           `toml:"replace,omitempty"`
}

type manifestPackage struct {
	Name         string `toml:"name"`
	Version      string `toml:"version"`
	Edition      string `toml:"edition,omitempty"`
	RustVersion  string `toml:"rust-version,omitempty"`
	Publish      bool   `toml:"publish"`
	AutoBins     bool   `toml:"autobins"`
	AutoExamples bool   `toml:"autoexamples"`
	AutoTests    bool   `toml:"autotests"`
	AutoBenches  bool   `toml:"autobenches"`
}

type dependency struct {
	Package         string   `toml:"package,omitempty"`
	Version         string   `toml:"version,omitempty"`
	Path            string   `toml:"path,omitempty"`
	Registry        string   `toml:"registry-index,omitempty"`
	Optional        bool     `toml:"optional,omitempty"`
	DefaultFeatures bool     `toml:"default-features"`
	Features        []string `toml:"features,omitempty"`
}

type targetSection struct {
	Dependencies map[string]dependency `toml:"dependencies"`
}

type bin struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type workspace struct{}

type cargoConfig struct {
	Build struct {
		Rustflags []string `toml:"rustflags"`
	} `toml:"build"`
	Term struct {
		Color string `toml:"color"`
	} `toml:"term"`
}

func newCargoConfig() *cargoConfig {
	config := &cargoConfig{}
	config.Build.Rustflags = append([]string(nil), cargo.Rustflags...)
	config.Term.Color = "never"
	return config
}

func buildManifest(meta *cargo.Metadata, pkg *cargo.Package, project *Project) (*manifest, error) {
	m := &manifest{
		Package: manifestPackage{
			Name:        project.Name,
			Version:     "0.0.0",
			Edition:     pkg.Edition,
			RustVersion: pkg.RustVersion,
		},
		Features:          make(map[string][]string),
		Dependencies:      make(map[string]dependency),
		BuildDependencies: make(map[string]dependency),
		Target:            make(map[string]targetSection),
	}

	for _, feature := range project.Features {
		m.Features[feature] = []string{pkg.Name + "/" + feature}
	}

	// Dev dependencies are visible to the test files, but binary targets
	// cannot use them, so they are promoted. Normal declarations win.
	for _, kind := range []string{cargo.KindNormal, cargo.KindDevelopment, cargo.KindBuild} {
		for _, dep := range pkg.Dependencies {
			if dep.Kind != kind {
				continue
			}
			key, value := convertDependency(dep)

			var table map[string]dependency
			switch {
			case dep.Target != "" && kind != cargo.KindBuild:
				section, ok := m.Target[dep.Target]
				if !ok {
					section = targetSection{Dependencies: make(map[string]dependency)}
					m.Target[dep.Target] = section
				}
				table = section.Dependencies
			case kind == cargo.KindBuild:
				table = m.BuildDependencies
			default:
				table = m.Dependencies
			}
			if _, exists := table[key]; !exists {
				table[key] = value
			}
		}
	}

	m.Dependencies[pkg.Name] = dependency{
		Path:            pkg.ManifestDir(),
		DefaultFeatures: false,
	}

	m.Bins = append(m.Bins, bin{Name: project.WarmUpBin(), Path: warmUpFile})
	for _, test := range project.Tests {
		m.Bins = append(m.Bins, bin{Name: test.Bin, Path: project.SourcePath(test)})
	}

	if meta != nil && meta.WorkspaceRoot != "" {
		patch, replace, err := workspaceOverrides(meta.WorkspaceRoot)
		if err != nil {
			return nil, err
		}
		m.Patch = patch
		m.Replace = replace
	}

	return m, nil
}

func convertDependency(dep cargo.Dependency) (string, dependency) {
	key := dep.Name
	value := dependency{
		Version:         dep.Req,
		Path:            dep.Path,
		Registry:        dep.Registry,
		Optional:        dep.Optional,
		DefaultFeatures: dep.UsesDefaultFeatures,
		Features:        dep.Features,
	}
	if dep.Rename != "" {
		key = dep.Rename
		value.Package = dep.Name
	}
	return key, value
}

// workspaceOverrides reads [patch] and [replace] from the workspace root
// manifest. Relative paths in them are made absolute since the synthesized
// project lives elsewhere.
func workspaceOverrides(root string) (map[string]any, map[string]any, error) {
	path := filepath.Join(root, manifestFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil, nil
	}

	var decoded map[string]any
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return nil, nil, errors.Wrapf(err, errors.CodeConfiguration, "failed to read workspace manifest %s", path)
	}

	var patch, replace map[string]any
	if value, ok := decoded["patch"].(map[string]any); ok && len(value) > 0 {
		patch = value
		absolutizePaths(patch, root)
	}
	if value, ok := decoded["replace"].(map[string]any); ok && len(value) > 0 {
		replace = value
		absolutizePaths(replace, root)
	}
	return patch, replace, nil
}

func absolutizePaths(table map[string]any, root string) {
	for key, value := range table {
		switch v := value.(type) {
		case map[string]any:
			absolutizePaths(v, root)
		case string:
			if key == "path" && !filepath.IsAbs(v) {
				table[key] = filepath.Join(root, v)
			}
		}
	}
}

func encodeTOML(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
