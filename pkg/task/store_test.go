package task_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func eachStore(t *testing.T, fn func(t *testing.T, store task.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, task.NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tasks.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		store, err := task.NewSQLiteStore(db)
		require.NoError(t, err)
		fn(t, store)
	})
}

func sampleGraph() *task.Graph {
	return &task.Graph{
		ID:             uuid.New().String(),
		Goal:           "ship the release",
		CreatedAt:      time.Now().UTC(),
		PlannerVersion: "v1",
		SessionID:      "sess-1",
		Steps: []task.Step{
			{ID: "step-1", Type: task.StepFileEdit, Description: "update changelog", RiskLevel: task.RiskLow},
			{ID: "step-2", Type: task.StepCommand, Description: "run deploy", RiskLevel: task.RiskHigh,
				Dependencies: []string{"step-1"}, RollbackHint: "redeploy previous tag",
				Inputs: map[string]any{"command": "make deploy"}},
		},
	}
}

func TestStore_GraphRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, store task.Store) {
		ctx := context.Background()
		g := sampleGraph()
		require.NoError(t, store.CreateGraph(ctx, g))

		got, err := store.GetGraph(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.Goal, got.Goal)
		require.Len(t, got.Steps, 2)
		assert.Equal(t, task.StepCommand, got.Steps[1].Type)
		assert.Equal(t, []string{"step-1"}, got.Steps[1].Dependencies)
		assert.Equal(t, map[string]any{"command": "make deploy"}, got.Steps[1].Inputs)

		_, err = store.GetGraph(ctx, "absent")
		assert.ErrorIs(t, err, task.ErrNotFound)
	})
}

func TestStore_RunLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, store task.Store) {
		ctx := context.Background()
		g := sampleGraph()
		require.NoError(t, store.CreateGraph(ctx, g))

		run := &task.Run{
			ID:        uuid.New().String(),
			GraphID:   g.ID,
			TokenID:   "tok-1",
			Status:    task.RunQueued,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
			SessionID: "sess-1",
		}
		require.NoError(t, store.CreateRun(ctx, run))

		run.Status = task.RunFailed
		run.CurrentStepID = "step-2"
		run.LastError = "deploy handler failed"
		run.ReceiptsIndex = []string{"r-1", "r-2"}
		require.NoError(t, store.UpdateRun(ctx, run))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, task.RunFailed, got.Status)
		assert.Equal(t, "step-2", got.CurrentStepID)
		assert.Equal(t, "deploy handler failed", got.LastError)
		assert.Equal(t, []string{"r-1", "r-2"}, got.ReceiptsIndex)
		assert.True(t, got.Status.Terminal())

		listed, err := store.ListRunsBySession(ctx, "sess-1")
		require.NoError(t, err)
		require.Len(t, listed, 1)

		_, err = store.GetRun(ctx, "absent")
		assert.ErrorIs(t, err, task.ErrNotFound)
		assert.ErrorIs(t, store.UpdateRun(ctx, &task.Run{ID: "absent"}), task.ErrNotFound)
	})
}

func TestGraph_StepByID(t *testing.T) {
	g := sampleGraph()
	assert.Equal(t, task.StepCommand, g.StepByID("step-2").Type)
	assert.Nil(t, g.StepByID("absent"))
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, task.RunQueued.Terminal())
	assert.False(t, task.RunRunning.Terminal())
	assert.False(t, task.RunBlocked.Terminal())
	assert.True(t, task.RunSucceeded.Terminal())
	assert.True(t, task.RunFailed.Terminal())
	assert.True(t, task.RunCancelled.Terminal())
}
