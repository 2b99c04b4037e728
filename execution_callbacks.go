package taskengine

import (
	"context"
	"time"
)

// ExecutionCallbacks defines the callback interface for step execution events
type ExecutionCallbacks interface {
	// Step-level callbacks
	BeforeStepExecution(ctx context.Context, event *StepExecutionEvent)
	AfterStepExecution(ctx context.Context, event *StepExecutionEvent)

	// Attempt-level callbacks
	BeforeAttempt(ctx context.Context, event *AttemptEvent)
	AfterAttempt(ctx context.Context, event *AttemptEvent)
}

// StepExecutionEvent provides context for step-level execution events
type StepExecutionEvent struct {
	ExecutionID string
	WorkflowID  string
	StepID      string
	StepName    string
	AgentID     string
	Status      StepStatus
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Inputs      map[string]any
	Outputs     map[string]any
	RetryCount  int
	Confidence  float64
	Error       error
}

// AttemptEvent provides context for attempt-level execution events
type AttemptEvent struct {
	ExecutionID string
	StepID      string
	StepName    string
	Attempt     int
	Provider    string
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Error       error
}

// BaseExecutionCallbacks provides a default implementation that does nothing
type BaseExecutionCallbacks struct{}

func (n *BaseExecutionCallbacks) BeforeStepExecution(ctx context.Context, event *StepExecutionEvent) {
	// noop
}

func (n *BaseExecutionCallbacks) AfterStepExecution(ctx context.Context, event *StepExecutionEvent) {
	// noop
}

func (n *BaseExecutionCallbacks) BeforeAttempt(ctx context.Context, event *AttemptEvent) {
	// noop
}

func (n *BaseExecutionCallbacks) AfterAttempt(ctx context.Context, event *AttemptEvent) {
	// noop
}
