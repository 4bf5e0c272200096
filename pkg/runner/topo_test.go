package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/warden/pkg/task"
)

func graphOf(steps ...task.Step) *task.Graph {
	return &task.Graph{ID: "g", Steps: steps}
}

func TestExecutionOrderRespectsDependencies(t *testing.T) {
	// Diamond: d depends on b and c, both depend on a.
	g := graphOf(
		task.Step{ID: "d", Dependencies: []string{"b", "c"}},
		task.Step{ID: "b", Dependencies: []string{"a"}},
		task.Step{ID: "c", Dependencies: []string{"a"}},
		task.Step{ID: "a"},
	)

	order, err := executionOrder(g)
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestExecutionOrderKeepsUnconstrainedOrder(t *testing.T) {
	g := graphOf(
		task.Step{ID: "first"},
		task.Step{ID: "second"},
		task.Step{ID: "third"},
	)

	order, err := executionOrder(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestExecutionOrderDetectsCycle(t *testing.T) {
	g := graphOf(
		task.Step{ID: "a", Dependencies: []string{"b"}},
		task.Step{ID: "b", Dependencies: []string{"a"}},
	)

	_, err := executionOrder(g)
	require.ErrorIs(t, err, ErrCyclicDependency)
}

func TestExecutionOrderSkipsUnknownEdges(t *testing.T) {
	g := graphOf(
		task.Step{ID: "a", Dependencies: []string{"ghost"}},
		task.Step{ID: "b", Dependencies: []string{"a"}},
	)

	order, err := executionOrder(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}
