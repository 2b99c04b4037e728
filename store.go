package taskengine

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by Store implementations.
var (
	ErrStepNotFound  = errors.New("step not found")
	ErrAgentNotFound = errors.New("agent not found")
)

// StepUpdate carries the optional fields written alongside a status
// transition. Zero values leave the stored field unchanged.
type StepUpdate struct {
	Outputs     string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Store is the persistence collaborator for steps and agents. Implementations
// surface missing records as ErrStepNotFound / ErrAgentNotFound rather than
// silent no-ops.
type Store interface {
	// LoadStep returns the step with the given ID.
	LoadStep(ctx context.Context, id string) (*Step, error)

	// LoadAgent returns the agent with the given ID.
	LoadAgent(ctx context.Context, id string) (*Agent, error)

	// UpdateStepStatus transitions a step's status and writes the update's
	// non-zero fields.
	UpdateStepStatus(ctx context.Context, id string, status StepStatus, update StepUpdate) error
}
