package taskengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.LoadStep(ctx, "missing")
	require.ErrorIs(t, err, ErrStepNotFound)

	_, err = store.LoadAgent(ctx, "missing")
	require.ErrorIs(t, err, ErrAgentNotFound)

	store.PutAgent(&Agent{ID: "A1", Name: "Builder", Capabilities: `["code"]`})
	store.PutStep(&Step{ID: "S1", WorkflowID: "W1", Name: "build", AgentID: "A1", Status: StepStatusPending})

	agent, err := store.LoadAgent(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, "Builder", agent.Name)

	step, err := store.LoadStep(ctx, "S1")
	require.NoError(t, err)
	require.Equal(t, "build", step.Name)
	require.Equal(t, StepStatusPending, step.Status)

	// Loads return copies: mutating the result must not affect the store.
	step.Name = "mutated"
	reloaded, err := store.LoadStep(ctx, "S1")
	require.NoError(t, err)
	require.Equal(t, "build", reloaded.Name)
}

func TestMemoryStoreStatusTransitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.PutStep(&Step{ID: "S1", Status: StepStatusPending})

	started := time.Now()
	require.NoError(t, store.UpdateStepStatus(ctx, "S1", StepStatusRunning, StepUpdate{StartedAt: started}))

	step, err := store.LoadStep(ctx, "S1")
	require.NoError(t, err)
	require.Equal(t, StepStatusRunning, step.Status)
	require.Equal(t, started, step.StartedAt)

	require.NoError(t, store.UpdateStepStatus(ctx, "S1", StepStatusCompleted, StepUpdate{
		Outputs:     `{"y":10}`,
		CompletedAt: time.Now(),
	}))

	step, err = store.LoadStep(ctx, "S1")
	require.NoError(t, err)
	require.Equal(t, StepStatusCompleted, step.Status)
	require.Equal(t, `{"y":10}`, step.Outputs)
	require.False(t, step.CompletedAt.IsZero())
}

func TestMemoryStoreTerminalNotOverwritten(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	t.Run("completed stays completed", func(t *testing.T) {
		store.PutStep(&Step{ID: "done", Status: StepStatusCompleted, Outputs: `{"y":1}`})
		err := store.UpdateStepStatus(ctx, "done", StepStatusFailed, StepUpdate{Error: `"late failure"`})
		require.Error(t, err)

		step, loadErr := store.LoadStep(ctx, "done")
		require.NoError(t, loadErr)
		require.Equal(t, StepStatusCompleted, step.Status)
		require.Empty(t, step.Error)
	})

	t.Run("failed stays failed", func(t *testing.T) {
		store.PutStep(&Step{ID: "broken", Status: StepStatusFailed})
		err := store.UpdateStepStatus(ctx, "broken", StepStatusRunning, StepUpdate{})
		require.Error(t, err)

		step, loadErr := store.LoadStep(ctx, "broken")
		require.NoError(t, loadErr)
		require.Equal(t, StepStatusFailed, step.Status)
	})

	t.Run("unknown step", func(t *testing.T) {
		err := store.UpdateStepStatus(ctx, "nope", StepStatusRunning, StepUpdate{})
		require.ErrorIs(t, err, ErrStepNotFound)
	})
}
