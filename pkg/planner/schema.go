package planner

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// planSchema pins the shape of a rich plan document crossing the process
// boundary. Step contents stay best-effort; only the envelope is strict.
const planSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["goal", "steps"],
	"properties": {
		"goal": {"type": "string"},
		"steps": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"tool": {"type": "string"},
					"inputs": {"type": "object"},
					"depends_on": {"type": "array", "items": {"type": "string"}},
					"acceptance_check": {"type": "string"},
					"rollback_hint": {"type": "string"}
				}
			}
		}
	}
}`

var compiledPlanSchema = jsonschema.MustCompileString("plan.schema.json", planSchema)

// ParsePlan validates a rich plan document against the plan schema and
// unmarshals it. This is the only place compilation rejects input: a
// document that does not even carry a goal and step ids cannot be
// compiled best-effort.
func ParsePlan(data []byte) (*Plan, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("plan document is not JSON: %w", err)
	}
	if err := compiledPlanSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("plan document rejected: %w", err)
	}

	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}
