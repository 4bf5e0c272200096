// Package planner compiles an externally produced plan — a plain sequence
// of step descriptions or a richer document with explicit tools and
// dependencies — into a task graph. Compilation is best-effort by design:
// any step description yields some valid step, never an error.
package planner

import (
	"strings"

	"github.com/Mindburn-Labs/warden/pkg/task"
)

// typeRule maps a description predicate to a step type. Rules are
// evaluated in order; the first match wins.
type typeRule struct {
	keywords []string
	stepType task.StepType
}

// Ordered classification vocabulary. HUMAN_INPUT outranks everything so a
// step like "ask the user to verify" blocks instead of auto-verifying.
var typeRules = []typeRule{
	{[]string{"ask", "approval", "confirm with", "human", "wait for user", "permission"}, task.StepHumanInput},
	{[]string{"verify", "validate", "check that", "ensure", "assert"}, task.StepVerify},
	{[]string{"file", "edit", "write", "read", "modify", "save", "append to"}, task.StepFileEdit},
	{[]string{"run", "execute", "build", "deploy", "install", "restart", "script", "command"}, task.StepCommand},
}

// classifyType infers a step type from its description.
func classifyType(description string) task.StepType {
	lower := strings.ToLower(description)
	for _, rule := range typeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.stepType
			}
		}
	}
	return task.StepToolCall
}

// riskRule maps (step type, keyword) to a risk level.
type riskRule struct {
	stepType task.StepType
	keywords []string
	risk     task.RiskLevel
}

var riskRules = []riskRule{
	{task.StepCommand, []string{"deploy", "production", "delete", "rm"}, task.RiskHigh},
	{task.StepFileEdit, []string{"delete", "remove", "config"}, task.RiskMed},
}

// classifyRisk infers a risk level from the step type plus keywords.
// Everything unmatched is LOW. Single-word keywords like "rm" match whole
// words only, so "alarm" stays LOW.
func classifyRisk(stepType task.StepType, description string) task.RiskLevel {
	lower := strings.ToLower(description)
	for _, rule := range riskRules {
		if rule.stepType != stepType {
			continue
		}
		for _, kw := range rule.keywords {
			if containsWord(lower, kw) {
				return rule.risk
			}
		}
	}
	return task.RiskLow
}

func containsWord(s, word string) bool {
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == ';' || r == ':' || r == '(' || r == ')' || r == '"' || r == '\''
	}) {
		if field == word || strings.HasPrefix(field, word+".") {
			return true
		}
	}
	return false
}

// toolTable maps known explicit tool names to step types. Unknown tools
// default to TOOL_CALL.
var toolTable = map[string]task.StepType{
	"file_edit":   task.StepFileEdit,
	"editor":      task.StepFileEdit,
	"fs_write":    task.StepFileEdit,
	"shell":       task.StepCommand,
	"bash":        task.StepCommand,
	"command":     task.StepCommand,
	"verifier":    task.StepVerify,
	"verify":      task.StepVerify,
	"human_input": task.StepHumanInput,
	"ask_human":   task.StepHumanInput,
	"skill":       task.StepSkillCall,
	"skill_call":  task.StepSkillCall,
}

// classifyTool maps an explicit tool name to a step type.
func classifyTool(tool string) task.StepType {
	if stepType, ok := toolTable[strings.ToLower(tool)]; ok {
		return stepType
	}
	return task.StepToolCall
}
