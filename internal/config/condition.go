package config

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// ConditionEvaluator decides whether a suite declared in a suite file applies
// to the current machine. Conditions are CEL expressions over `env`, `os` and
// `arch`.
type ConditionEvaluator struct {
	celEnv *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

// NewConditionEvaluator creates an evaluator with an empty program cache.
func NewConditionEvaluator() (*ConditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("env", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("os", cel.StringType),
		cel.Variable("arch", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &ConditionEvaluator{
		celEnv:   env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile checks expr without evaluating it. Successful programs are cached.
func (ce *ConditionEvaluator) Compile(expr string) error {
	_, err := ce.program(expr)
	return err
}

// Evaluate runs expr against environ. An empty expression is always true.
func (ce *ConditionEvaluator) Evaluate(expr string, environ map[string]string) (bool, error) {
	if expr == "" {
		return true, nil
	}

	program, err := ce.program(expr)
	if err != nil {
		return false, err
	}

	if environ == nil {
		environ = map[string]string{}
	}
	result, _, err := program.Eval(map[string]any{
		"env":  environ,
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	if result.Type() != types.BoolType {
		return false, fmt.Errorf("CEL expression must return boolean, got %v", result.Type())
	}
	return result.Value().(bool), nil
}

func (ce *ConditionEvaluator) program(expr string) (cel.Program, error) {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	if program, ok := ce.programs[expr]; ok {
		return program, nil
	}

	ast, issues := ce.celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(types.BoolType) && !out.IsExactType(types.DynType) {
		return nil, fmt.Errorf("CEL expression must return boolean, got %v", ast.OutputType())
	}

	program, err := ce.celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error: %w", err)
	}
	ce.programs[expr] = program
	return program, nil
}

// CachedPrograms returns the number of compiled programs held in the cache.
func (ce *ConditionEvaluator) CachedPrograms() int {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return len(ce.programs)
}
