// Package verify defines the acceptance-check contract consumed by the
// task runner, plus a local CEL-backed implementation for checks written
// as expressions over a step's output.
package verify

import "context"

// Verdict is the outcome of one verification. A failed verdict is a
// normal, expected result with a reason, not an error; errors are reserved
// for verifier infrastructure faults.
type Verdict struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

// Verifier checks whether evidence satisfies an acceptance goal.
type Verifier interface {
	Verify(ctx context.Context, goal, evidence string) (Verdict, error)
}
