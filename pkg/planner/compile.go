package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/warden/pkg/task"
)

// Version identifies the compilation rules baked into this package. It is
// stamped onto every graph so a stored graph can be traced back to the
// vocabulary that produced it.
const Version = "warden-planner/1"

// PlanStep is one step of a rich plan document produced by an external
// planning pipeline.
type PlanStep struct {
	ID              string         `json:"id"`
	Description     string         `json:"description"`
	Tool            string         `json:"tool,omitempty"`
	Inputs          map[string]any `json:"inputs,omitempty"`
	DependsOn       []string       `json:"depends_on,omitempty"`
	AcceptanceCheck string         `json:"acceptance_check,omitempty"`
	RollbackHint    string         `json:"rollback_hint,omitempty"`
}

// Plan is a rich plan document: explicit tools and dependency edges.
type Plan struct {
	Goal  string     `json:"goal"`
	Steps []PlanStep `json:"steps"`
}

// CompileSequence turns a plain sequence of step descriptions into a
// graph whose dependencies form a strict chain: step i depends only on
// step i-1. Types and risk levels are inferred from the descriptions.
func CompileSequence(goal string, descriptions []string, sessionID string) *task.Graph {
	g := &task.Graph{
		ID:             uuid.New().String(),
		Goal:           goal,
		CreatedAt:      time.Now().UTC(),
		PlannerVersion: Version,
		SessionID:      sessionID,
		Steps:          make([]task.Step, 0, len(descriptions)),
	}

	for i, description := range descriptions {
		stepType := classifyType(description)
		step := task.Step{
			ID:          fmt.Sprintf("step-%d", i+1),
			Type:        stepType,
			Description: description,
			RiskLevel:   classifyRisk(stepType, description),
		}
		if i > 0 {
			step.Dependencies = []string{fmt.Sprintf("step-%d", i)}
		}
		g.Steps = append(g.Steps, step)
	}
	return g
}

// CompilePlan turns a rich plan into a graph. Explicit tool names map to
// step types through a fixed table (unknown tools become TOOL_CALL), and
// the plan's own dependency edges are preserved with the plan's step
// identifiers remapped to the graph's generated ones. Edges referencing
// unknown plan steps are dropped rather than failing the compilation.
func CompilePlan(plan *Plan, sessionID string) *task.Graph {
	g := &task.Graph{
		ID:             uuid.New().String(),
		Goal:           plan.Goal,
		CreatedAt:      time.Now().UTC(),
		PlannerVersion: Version,
		SessionID:      sessionID,
		Steps:          make([]task.Step, 0, len(plan.Steps)),
	}

	idMap := make(map[string]string, len(plan.Steps))
	for i, ps := range plan.Steps {
		idMap[ps.ID] = fmt.Sprintf("step-%d", i+1)
	}

	for i, ps := range plan.Steps {
		var stepType task.StepType
		if ps.Tool != "" {
			stepType = classifyTool(ps.Tool)
		} else {
			stepType = classifyType(ps.Description)
		}

		step := task.Step{
			ID:              fmt.Sprintf("step-%d", i+1),
			Type:            stepType,
			Description:     ps.Description,
			Inputs:          ps.Inputs,
			AcceptanceCheck: ps.AcceptanceCheck,
			RiskLevel:       classifyRisk(stepType, ps.Description),
			RollbackHint:    ps.RollbackHint,
		}
		for _, dep := range ps.DependsOn {
			if mapped, ok := idMap[dep]; ok {
				step.Dependencies = append(step.Dependencies, mapped)
			}
		}
		g.Steps = append(g.Steps, step)
	}
	return g
}
