package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/errors"
)

// DefaultFileName is the suite file looked up when none is given.
const DefaultFileName = "tryexpand.yml"

// Expectations accepted by the `expect` field.
const (
	ExpectPass = "pass"
	ExpectFail = "fail"
)

// Streams accepted by a filter.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

type File struct {
	Version string  `yaml:"version"`
	Suites  []Suite `yaml:"suites"`
}

type Suite struct {
	Name          string            `yaml:"name"`
	Action        string            `yaml:"action"`
	Then          string            `yaml:"then,omitempty"`
	Expect        string            `yaml:"expect,omitempty"`
	Patterns      []string          `yaml:"patterns"`
	Args          Args              `yaml:"args,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	Filters       []Filter          `yaml:"filters,omitempty"`
	SkipOverwrite bool              `yaml:"skip_overwrite,omitempty"`
	If            string            `yaml:"if,omitempty"`
}

type Filter struct {
	Stream      string `yaml:"stream"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Args holds extra build-tool arguments. In YAML it is either a list or a
// single string split with shell quoting rules.
type Args []string

func (a *Args) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parts, err := shlex.Split(node.Value)
		if err != nil {
			return fmt.Errorf("invalid args %q: %w", node.Value, err)
		}
		*a = parts
		return nil
	}

	if node.Kind == yaml.SequenceNode {
		var parts []string
		if err := node.Decode(&parts); err != nil {
			return err
		}
		*a = parts
		return nil
	}

	return fmt.Errorf("args must be either a string or a list")
}

// PrimaryAction returns the parsed action of s. It is only meaningful after
// validation.
func (s *Suite) PrimaryAction() cargo.Action {
	action, _ := cargo.ParseAction(s.Action)
	return action
}

// PostAction returns the parsed `then` action of s, if any.
func (s *Suite) PostAction() (cargo.Action, bool) {
	if s.Then == "" {
		return 0, false
	}
	action, _ := cargo.ParseAction(s.Then)
	return action, true
}

// ExpectsPass reports whether s expects every test to succeed.
func (s *Suite) ExpectsPass() bool {
	return s.Expect == "" || s.Expect == ExpectPass
}

// Find returns the suite called name.
func (f *File) Find(name string) (*Suite, bool) {
	for i := range f.Suites {
		if f.Suites[i].Name == name {
			return &f.Suites[i], true
		}
	}
	return nil, false
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "could not read suite file")
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "could not unmarshal suite file")
	}

	if err := validate(&file); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "invalid suite file")
	}

	return &file, nil
}

func validate(file *File) error {
	if file.Version == "" {
		return fmt.Errorf("missing required field: version")
	}
	if len(file.Suites) == 0 {
		return fmt.Errorf("no suites declared")
	}

	conditions, err := NewConditionEvaluator()
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for i := range file.Suites {
		suite := &file.Suites[i]
		if suite.Name == "" {
			return fmt.Errorf("suite %d is missing required field: name", i)
		}
		if seen[suite.Name] {
			return fmt.Errorf("duplicate suite name '%s'", suite.Name)
		}
		seen[suite.Name] = true

		if err := validateSuite(suite, conditions); err != nil {
			return fmt.Errorf("invalid suite '%s': %w", suite.Name, err)
		}
	}

	return nil
}

func validateSuite(suite *Suite, conditions *ConditionEvaluator) error {
	action, err := cargo.ParseAction(suite.Action)
	if err != nil {
		return err
	}

	if suite.Then != "" {
		post, err := cargo.ParseAction(suite.Then)
		if err != nil {
			return fmt.Errorf("invalid then: %w", err)
		}
		if action != cargo.Expand {
			return fmt.Errorf("then is only allowed after expand, not after %s", action)
		}
		if !post.IsPostAction() {
			return fmt.Errorf("%s cannot follow an expansion", post)
		}
	}

	if suite.Expect != "" && suite.Expect != ExpectPass && suite.Expect != ExpectFail {
		return fmt.Errorf("invalid expect '%s', must be one of: pass, fail", suite.Expect)
	}

	if len(suite.Patterns) == 0 {
		return fmt.Errorf("no file patterns provided")
	}

	for i, filter := range suite.Filters {
		if err := validateFilter(filter); err != nil {
			return fmt.Errorf("invalid filter %d: %w", i, err)
		}
	}

	if suite.If != "" {
		if err := conditions.Compile(suite.If); err != nil {
			return fmt.Errorf("invalid if condition: %w", err)
		}
	}

	return nil
}

func validateFilter(filter Filter) error {
	if filter.Stream != StreamStdout && filter.Stream != StreamStderr {
		return fmt.Errorf("invalid stream '%s', must be one of: stdout, stderr", filter.Stream)
	}
	if _, err := regexp.Compile(filter.Pattern); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}
