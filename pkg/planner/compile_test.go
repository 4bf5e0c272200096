package planner_test

import (
	"testing"

	"github.com/Mindburn-Labs/warden/pkg/planner"
	"github.com/Mindburn-Labs/warden/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario: ["read config file", "run the deploy script", "verify service
// is healthy"] compiles to FILE_EDIT, COMMAND (HIGH), VERIFY with a strict
// dependency chain.
func TestCompileSequence_TypesRiskAndChain(t *testing.T) {
	g := planner.CompileSequence("ship it", []string{
		"read config file",
		"run the deploy script",
		"verify service is healthy",
	}, "sess-1")

	require.Len(t, g.Steps, 3)
	assert.Equal(t, task.StepFileEdit, g.Steps[0].Type)
	assert.Equal(t, task.StepCommand, g.Steps[1].Type)
	assert.Equal(t, task.RiskHigh, g.Steps[1].RiskLevel)
	assert.Equal(t, task.StepVerify, g.Steps[2].Type)

	assert.Empty(t, g.Steps[0].Dependencies)
	assert.Equal(t, []string{g.Steps[0].ID}, g.Steps[1].Dependencies)
	assert.Equal(t, []string{g.Steps[1].ID}, g.Steps[2].Dependencies)

	assert.Equal(t, "ship it", g.Goal)
	assert.Equal(t, planner.Version, g.PlannerVersion)
	assert.Equal(t, "sess-1", g.SessionID)
}

func TestCompileSequence_ChainShape(t *testing.T) {
	descriptions := make([]string, 7)
	for i := range descriptions {
		descriptions[i] = "do a thing"
	}
	g := planner.CompileSequence("goal", descriptions, "")

	require.Len(t, g.Steps, 7)
	for i, step := range g.Steps {
		if i == 0 {
			assert.Empty(t, step.Dependencies)
			continue
		}
		// step i depends only on step i-1
		assert.Equal(t, []string{g.Steps[i-1].ID}, step.Dependencies)
	}
}

func TestCompileSequence_Classification(t *testing.T) {
	tests := []struct {
		description string
		stepType    task.StepType
		risk        task.RiskLevel
	}{
		{"ask the owner for approval", task.StepHumanInput, task.RiskLow},
		{"wait for user input", task.StepHumanInput, task.RiskLow},
		{"verify the checksum matches", task.StepVerify, task.RiskLow},
		{"edit the README", task.StepFileEdit, task.RiskLow},
		{"delete the old config file", task.StepFileEdit, task.RiskMed},
		{"run the unit tests", task.StepCommand, task.RiskLow},
		{"execute rm -rf ./build", task.StepCommand, task.RiskHigh},
		{"deploy to production", task.StepCommand, task.RiskHigh},
		{"summon the weather oracle", task.StepToolCall, task.RiskLow},
		// an alarm is not an rm
		{"run the alarm script", task.StepCommand, task.RiskLow},
	}

	for _, tt := range tests {
		g := planner.CompileSequence("goal", []string{tt.description}, "")
		require.Len(t, g.Steps, 1, tt.description)
		assert.Equal(t, tt.stepType, g.Steps[0].Type, tt.description)
		assert.Equal(t, tt.risk, g.Steps[0].RiskLevel, tt.description)
	}
}

func TestCompileSequence_NeverFails(t *testing.T) {
	g := planner.CompileSequence("", []string{"", "   ", "???"}, "")
	require.Len(t, g.Steps, 3)
	for _, step := range g.Steps {
		assert.Equal(t, task.StepToolCall, step.Type)
		assert.Equal(t, task.RiskLow, step.RiskLevel)
	}
}

func TestCompilePlan_ToolTableAndDependencyRemap(t *testing.T) {
	plan := &planner.Plan{
		Goal: "release",
		Steps: []planner.PlanStep{
			{ID: "fetch", Description: "fetch sources", Tool: "git_clone"},
			{ID: "build", Description: "build the binary", Tool: "bash",
				Inputs: map[string]any{"command": "make"}, DependsOn: []string{"fetch"}},
			{ID: "check", Description: "validate output", Tool: "verifier",
				DependsOn: []string{"build", "fetch", "ghost"}},
		},
	}

	g := planner.CompilePlan(plan, "sess-2")
	require.Len(t, g.Steps, 3)

	// unknown tool defaults to TOOL_CALL
	assert.Equal(t, task.StepToolCall, g.Steps[0].Type)
	assert.Equal(t, task.StepCommand, g.Steps[1].Type)
	assert.Equal(t, task.StepVerify, g.Steps[2].Type)

	// plan ids are remapped to generated step ids; unknown edges dropped
	assert.Equal(t, []string{g.Steps[0].ID}, g.Steps[1].Dependencies)
	assert.Equal(t, []string{g.Steps[1].ID, g.Steps[0].ID}, g.Steps[2].Dependencies)
	assert.Equal(t, map[string]any{"command": "make"}, g.Steps[1].Inputs)
}

func TestParsePlan_SchemaValidation(t *testing.T) {
	good := []byte(`{"goal": "g", "steps": [{"id": "a", "tool": "bash"}]}`)
	plan, err := planner.ParsePlan(good)
	require.NoError(t, err)
	assert.Equal(t, "g", plan.Goal)
	require.Len(t, plan.Steps, 1)

	_, err = planner.ParsePlan([]byte(`{"steps": []}`))
	assert.Error(t, err, "missing goal")

	_, err = planner.ParsePlan([]byte(`{"goal": "g", "steps": [{}]}`))
	assert.Error(t, err, "step without id")

	_, err = planner.ParsePlan([]byte(`not json`))
	assert.Error(t, err)
}
