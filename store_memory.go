package taskengine

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store implementation used in tests and demos.
type MemoryStore struct {
	mutex  sync.RWMutex
	steps  map[string]*Step
	agents map[string]*Agent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		steps:  map[string]*Step{},
		agents: map[string]*Agent{},
	}
}

// PutStep stores a copy of the step.
func (s *MemoryStore) PutStep(step *Step) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.steps[step.ID] = step.Copy()
}

// PutAgent stores a copy of the agent.
func (s *MemoryStore) PutAgent(agent *Agent) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	dup := *agent
	s.agents[agent.ID] = &dup
}

func (s *MemoryStore) LoadStep(ctx context.Context, id string) (*Step, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	step, ok := s.steps[id]
	if !ok {
		return nil, ErrStepNotFound
	}
	return step.Copy(), nil
}

func (s *MemoryStore) LoadAgent(ctx context.Context, id string) (*Agent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	dup := *agent
	return &dup, nil
}

// UpdateStepStatus transitions a step's status. A terminal status is never
// overwritten.
func (s *MemoryStore) UpdateStepStatus(ctx context.Context, id string, status StepStatus, update StepUpdate) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	step, ok := s.steps[id]
	if !ok {
		return ErrStepNotFound
	}
	if step.Status.Terminal() {
		return fmt.Errorf("step %s already %s", id, step.Status)
	}
	step.Status = status
	if update.Outputs != "" {
		step.Outputs = update.Outputs
	}
	if update.Error != "" {
		step.Error = update.Error
	}
	if !update.StartedAt.IsZero() {
		step.StartedAt = update.StartedAt
	}
	if !update.CompletedAt.IsZero() {
		step.CompletedAt = update.CompletedAt
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
