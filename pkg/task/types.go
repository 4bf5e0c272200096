// Package task defines the compiled task graph, its typed steps, and the
// run records that track one execution attempt of a graph.
package task

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a graph or run id is unknown to a store.
	ErrNotFound = errors.New("task: not found")
)

// StepType is the archetype of a step. The runner dispatches on it and the
// authority check keys on it.
type StepType string

const (
	StepToolCall   StepType = "TOOL_CALL"
	StepSkillCall  StepType = "SKILL_CALL"
	StepFileEdit   StepType = "FILE_EDIT"
	StepCommand    StepType = "COMMAND"
	StepVerify     StepType = "VERIFY"
	StepHumanInput StepType = "HUMAN_INPUT"
)

// RiskLevel annotates a step's blast radius.
type RiskLevel string

const (
	RiskLow  RiskLevel = "LOW"
	RiskMed  RiskLevel = "MED"
	RiskHigh RiskLevel = "HIGH"
)

// Step is one node of a task graph. Dependencies reference step IDs within
// the same graph and must form a DAG. RollbackHint is informational only;
// nothing ever executes it automatically.
type Step struct {
	ID              string         `json:"step_id"`
	Type            StepType       `json:"type"`
	Description     string         `json:"description,omitempty"`
	Inputs          map[string]any `json:"inputs,omitempty"`
	AcceptanceCheck string         `json:"acceptance_check,omitempty"`
	RiskLevel       RiskLevel      `json:"risk_level"`
	Dependencies    []string       `json:"dependencies,omitempty"`
	RollbackHint    string         `json:"rollback_hint,omitempty"`
}

// Graph is an ordered, immutable collection of steps forming a DAG.
type Graph struct {
	ID             string    `json:"id"`
	Goal           string    `json:"goal"`
	CreatedAt      time.Time `json:"created_at"`
	PlannerVersion string    `json:"planner_version,omitempty"`
	Steps          []Step    `json:"steps"`
	SessionID      string    `json:"session_id,omitempty"`
}

// StepByID returns the step with the given id, or nil.
func (g *Graph) StepByID(id string) *Step {
	for i := range g.Steps {
		if g.Steps[i].ID == id {
			return &g.Steps[i]
		}
	}
	return nil
}

// RunStatus is the lifecycle state of a task run.
type RunStatus string

const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunBlocked   RunStatus = "BLOCKED"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Run is one execution attempt of a graph, optionally bound to an
// execution token.
type Run struct {
	ID            string    `json:"id"`
	GraphID       string    `json:"task_graph_id"`
	TokenID       string    `json:"execution_token_id,omitempty"`
	Status        RunStatus `json:"status"`
	CurrentStepID string    `json:"current_step_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ReceiptsIndex []string  `json:"receipts_index,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
}

// clone returns a copy safe to hand outside a store's lock.
func (r *Run) clone() *Run {
	out := *r
	out.ReceiptsIndex = append([]string(nil), r.ReceiptsIndex...)
	return &out
}

func (g *Graph) clone() *Graph {
	out := *g
	out.Steps = make([]Step, len(g.Steps))
	copy(out.Steps, g.Steps)
	return &out
}
