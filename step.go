package taskengine

import (
	"encoding/json"
	"strings"
	"time"
)

// StepStatus represents the lifecycle status of a step. Transitions are
// monotonic: pending -> running -> completed or failed. A terminal status is
// never overwritten by a later attempt within the same execution call.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// Terminal returns true if the status is completed or failed.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}

// Step is one unit of work within a workflow, assigned to exactly one agent.
// The inputs, outputs, and error payloads are serialized JSON owned by the
// storage layer. The execution engine reads and updates steps but never
// creates or deletes them.
type Step struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Ordinal     int        `json:"ordinal"`
	AgentID     string     `json:"agent_id,omitempty"`
	Status      StepStatus `json:"status"`
	Inputs      string     `json:"inputs,omitempty"`
	Outputs     string     `json:"outputs,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at,omitzero"`
	CompletedAt time.Time  `json:"completed_at,omitzero"`
}

// DecodeInputs decodes the step's serialized input payload. A payload that is
// empty or not a JSON object decodes to an empty map rather than an error.
func (s *Step) DecodeInputs() map[string]any {
	if s.Inputs == "" {
		return map[string]any{}
	}
	var inputs map[string]any
	if err := json.Unmarshal([]byte(s.Inputs), &inputs); err != nil || inputs == nil {
		return map[string]any{}
	}
	return inputs
}

// Copy returns a shallow copy of the step.
func (s *Step) Copy() *Step {
	dup := *s
	return &dup
}

// Agent is a logical persona with a capability set, used to select a provider
// and shape the prompt. Read-only from the execution engine's perspective.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Capabilities string `json:"capabilities,omitempty"`
}

// CapabilityList decodes the agent's capability set. The stored value may be
// a JSON array or a comma-separated list; anything unparsable falls back to
// a single "general" capability. This never errors.
func (a *Agent) CapabilityList() []string {
	raw := strings.TrimSpace(a.Capabilities)
	if raw == "" {
		return []string{"general"}
	}
	var caps []string
	if err := json.Unmarshal([]byte(raw), &caps); err == nil {
		if cleaned := cleanCapabilities(caps); len(cleaned) > 0 {
			return cleaned
		}
		return []string{"general"}
	}
	if cleaned := cleanCapabilities(strings.Split(raw, ",")); len(cleaned) > 0 {
		return cleaned
	}
	return []string{"general"}
}

func cleanCapabilities(caps []string) []string {
	cleaned := make([]string, 0, len(caps))
	for _, c := range caps {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return cleaned
}

// copyMap returns a shallow copy of a map.
func copyMap(m map[string]any) map[string]any {
	dup := make(map[string]any, len(m))
	for k, v := range m {
		dup[k] = v
	}
	return dup
}
