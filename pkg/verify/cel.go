package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// CELVerifier evaluates acceptance checks written as CEL expressions. The
// expression sees two variables: `evidence`, the raw evidence string, and
// `output`, the evidence parsed as a JSON object when it is one (an empty
// map otherwise). Programs are cached per expression.
type CELVerifier struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELVerifier creates a verifier with a standard environment.
func NewCELVerifier() (*CELVerifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("evidence", cel.StringType),
		cel.Variable("output", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELVerifier{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Verify compiles (or reuses) the goal expression and evaluates it against
// the evidence. A non-boolean or false result is a failed verdict; only
// compilation and evaluation faults are errors.
func (v *CELVerifier) Verify(ctx context.Context, goal, evidence string) (Verdict, error) {
	program, err := v.program(goal)
	if err != nil {
		return Verdict{}, err
	}

	output := map[string]any{}
	var parsed map[string]any
	if json.Unmarshal([]byte(evidence), &parsed) == nil {
		output = parsed
	}

	result, _, err := program.ContextEval(ctx, map[string]any{
		"evidence": evidence,
		"output":   output,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluate acceptance check: %w", err)
	}

	if result == types.True {
		return Verdict{Success: true, Reason: "acceptance check passed"}, nil
	}
	return Verdict{
		Success: false,
		Reason:  fmt.Sprintf("acceptance check %q evaluated to %v", goal, result.Value()),
	}, nil
}

func (v *CELVerifier) program(goal string) (cel.Program, error) {
	v.mu.RLock()
	program, ok := v.cache[goal]
	v.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := v.env.Compile(goal)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile acceptance check %q: %w", goal, issues.Err())
	}
	program, err := v.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build acceptance program: %w", err)
	}

	v.mu.Lock()
	v.cache[goal] = program
	v.mu.Unlock()
	return program, nil
}
