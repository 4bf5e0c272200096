package runner

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/warden/pkg/task"
)

// ErrCyclicDependency is returned when a graph's dependency edges contain
// a cycle.
var ErrCyclicDependency = errors.New("runner: cyclic dependency")

const (
	stateUnvisited = iota
	stateVisiting
	stateDone
)

type frame struct {
	stepID string
	depIdx int
}

// executionOrder computes a depth-first topological order over the graph's
// dependency edges: every step appears after all of its dependencies, and
// steps with no ordering constraint keep their original relative order.
// The walk is iterative with an explicit visiting set, so a cyclic graph
// yields ErrCyclicDependency naming a step on the cycle instead of
// unbounded recursion. Edges referencing unknown step ids are skipped.
func executionOrder(g *task.Graph) ([]string, error) {
	deps := make(map[string][]string, len(g.Steps))
	for i := range g.Steps {
		deps[g.Steps[i].ID] = g.Steps[i].Dependencies
	}

	state := make(map[string]int, len(g.Steps))
	order := make([]string, 0, len(g.Steps))

	for i := range g.Steps {
		root := g.Steps[i].ID
		if state[root] == stateDone {
			continue
		}

		stack := []frame{{stepID: root}}
		state[root] = stateVisiting

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			pending := deps[top.stepID]

			if top.depIdx < len(pending) {
				dep := pending[top.depIdx]
				top.depIdx++

				if _, known := deps[dep]; !known {
					continue
				}
				switch state[dep] {
				case stateDone:
					continue
				case stateVisiting:
					return nil, fmt.Errorf("%w: step %s depends on %s which is already on the path",
						ErrCyclicDependency, top.stepID, dep)
				default:
					state[dep] = stateVisiting
					stack = append(stack, frame{stepID: dep})
				}
				continue
			}

			state[top.stepID] = stateDone
			order = append(order, top.stepID)
			stack = stack[:len(stack)-1]
		}
	}

	return order, nil
}
