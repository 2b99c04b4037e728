package taskengine

import (
	"context"
	"time"
)

// AttemptLogEntry records a single provider attempt within a step execution.
type AttemptLogEntry struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	StepID      string    `json:"step_id"`
	StepName    string    `json:"step_name"`
	AgentID     string    `json:"agent_id"`
	Attempt     int       `json:"attempt"`
	Provider    string    `json:"provider,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartTime   time.Time `json:"start_time"`
	Duration    float64   `json:"duration"`
}

// ExecutionLogger defines the attempt logging interface.
type ExecutionLogger interface {
	// LogAttempt logs a completed provider attempt
	LogAttempt(ctx context.Context, entry *AttemptLogEntry) error

	// GetAttemptHistory retrieves the attempt log for an execution
	GetAttemptHistory(ctx context.Context, executionID string) ([]*AttemptLogEntry, error)
}
