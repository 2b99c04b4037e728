package taskengine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileExecutionLogger(t *testing.T) {
	ctx := context.Background()
	logger := NewFileExecutionLogger(t.TempDir())

	executionID := NewExecutionID()
	entries := []*AttemptLogEntry{
		{
			ExecutionID: executionID,
			WorkflowID:  "W1",
			StepID:      "S1",
			StepName:    "build",
			AgentID:     "A1",
			Attempt:     0,
			Provider:    "openai",
			Error:       "rate limited",
			StartTime:   time.Now().UTC().Truncate(time.Second),
			Duration:    1.5,
		},
		{
			ExecutionID: executionID,
			WorkflowID:  "W1",
			StepID:      "S1",
			StepName:    "build",
			AgentID:     "A1",
			Attempt:     1,
			Provider:    "anthropic",
			StartTime:   time.Now().UTC().Truncate(time.Second),
			Duration:    2.25,
		},
	}
	for _, entry := range entries {
		require.NoError(t, logger.LogAttempt(ctx, entry))
	}

	history, err := logger.GetAttemptHistory(ctx, executionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 0, history[0].Attempt)
	require.Equal(t, "rate limited", history[0].Error)
	require.Equal(t, 1, history[1].Attempt)
	require.Equal(t, "anthropic", history[1].Provider)
	require.Empty(t, history[1].Error)
}

func TestFileExecutionLoggerSeparatesExecutions(t *testing.T) {
	ctx := context.Background()
	logger := NewFileExecutionLogger(t.TempDir())

	first := NewExecutionID()
	second := NewExecutionID()
	require.NoError(t, logger.LogAttempt(ctx, &AttemptLogEntry{ExecutionID: first, StepID: "S1"}))
	require.NoError(t, logger.LogAttempt(ctx, &AttemptLogEntry{ExecutionID: second, StepID: "S2"}))

	history, err := logger.GetAttemptHistory(ctx, first)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "S1", history[0].StepID)
}

func TestFileExecutionLoggerMissingHistory(t *testing.T) {
	logger := NewFileExecutionLogger(t.TempDir())
	_, err := logger.GetAttemptHistory(context.Background(), NewExecutionID())
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
}

func TestNullExecutionLogger(t *testing.T) {
	ctx := context.Background()
	logger := NewNullExecutionLogger()
	require.NoError(t, logger.LogAttempt(ctx, &AttemptLogEntry{ExecutionID: "x"}))
	history, err := logger.GetAttemptHistory(ctx, "x")
	require.NoError(t, err)
	require.Empty(t, history)
}
