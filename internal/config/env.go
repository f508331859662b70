package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dangazineu/tryexpand/internal/errors"
)

// Environment variables read once per suite.
const (
	BehaviorEnvKey       = "TRYEXPAND"
	KeepArtifactsEnvKey  = "TRYEXPAND_KEEP_ARTIFACTS"
	TruncateOutputEnvKey = "TRYEXPAND_TRUNCATE_OUTPUT"
	DebugLogEnvKey       = "TRYEXPAND_DEBUG_LOG"

	CargoEnvKey        = "CARGO"
	CargoPkgNameEnvKey = "CARGO_PKG_NAME"
	CargoTargetDirKey  = "CARGO_TARGET_DIR"

	BehaviorExpect    = "expect"
	BehaviorOverwrite = "overwrite"
)

// Env is the process-wide configuration of a suite run, resolved once at
// suite construction so that nothing downstream reads the environment again.
type Env struct {
	Overwrite      bool
	KeepArtifacts  bool
	TruncateOutput bool
	DebugLog       bool

	Cargo          string
	CargoPkgName   string
	CargoTargetDir string

	// Warnings collects non-fatal problems found while resolving, such as an
	// unrecognized value for a boolean flag that fell back to its default.
	Warnings []string
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromProcess resolves Env from the current process environment.
func FromProcess() (*Env, error) {
	return FromEnviron(os.LookupEnv)
}

// FromEnviron resolves Env using lookup. An unrecognized TRYEXPAND value is a
// configuration error; unrecognized boolean flags only produce a warning.
func FromEnviron(lookup LookupFunc) (*Env, error) {
	env := &Env{
		TruncateOutput: true,
		Cargo:          "cargo",
	}

	if value, ok := lookup(BehaviorEnvKey); ok {
		switch value {
		case BehaviorExpect:
			env.Overwrite = false
		case BehaviorOverwrite:
			env.Overwrite = true
		default:
			return nil, errors.Newf(errors.CodeConfiguration, "unrecognized value of %s env var: %q", BehaviorEnvKey, value)
		}
	}

	env.KeepArtifacts = env.flag(lookup, KeepArtifactsEnvKey, false)
	env.TruncateOutput = env.flag(lookup, TruncateOutputEnvKey, true)
	env.DebugLog = env.flag(lookup, DebugLogEnvKey, false)

	if value, ok := lookup(CargoEnvKey); ok && value != "" {
		env.Cargo = value
	}
	if value, ok := lookup(CargoPkgNameEnvKey); ok {
		env.CargoPkgName = value
	}
	if value, ok := lookup(CargoTargetDirKey); ok {
		env.CargoTargetDir = value
	}

	return env, nil
}

func (e *Env) flag(lookup LookupFunc, key string, fallback bool) bool {
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := ParseBool(value)
	if err != nil {
		e.Warnings = append(e.Warnings, fmt.Sprintf("unrecognized value of %s env var: %q", key, value))
		return fallback
	}
	return parsed
}

// ParseBool accepts 1/yes/true and 0/no/false, case-insensitively.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "yes", "true":
		return true, nil
	case "0", "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", value)
}
