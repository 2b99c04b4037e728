package taskengine

import (
	"sync"
	"time"
)

// MetricsEntry records the outcome of one step execution, keyed by workflow
// and step ID.
type MetricsEntry struct {
	WorkflowID string        `json:"workflow_id"`
	StepID     string        `json:"step_id"`
	AgentID    string        `json:"agent_id"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
	RetryCount int           `json:"retry_count"`
	Confidence float64       `json:"confidence"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// MetricsRecorder receives execution outcomes.
type MetricsRecorder interface {
	RecordExecution(entry MetricsEntry)
}

// MemoryMetrics holds execution metrics in process memory with
// last-writer-wins semantics. This is diagnostic state, not authoritative:
// it is reset on restart and makes no ordering guarantee beyond "reads see
// some prior write".
type MemoryMetrics struct {
	mutex   sync.RWMutex
	entries map[metricsKey]MetricsEntry
}

type metricsKey struct {
	workflowID string
	stepID     string
}

// NewMemoryMetrics returns an empty MemoryMetrics.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{entries: map[metricsKey]MetricsEntry{}}
}

func (m *MemoryMetrics) RecordExecution(entry MetricsEntry) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries[metricsKey{entry.WorkflowID, entry.StepID}] = entry
}

// Get returns the recorded entry for a workflow/step pair.
func (m *MemoryMetrics) Get(workflowID, stepID string) (MetricsEntry, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.entries[metricsKey{workflowID, stepID}]
	return entry, ok
}

// Snapshot returns a copy of all recorded entries.
func (m *MemoryMetrics) Snapshot() []MetricsEntry {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entries := make([]MetricsEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	return entries
}

var _ MetricsRecorder = (*MemoryMetrics)(nil)

// NullMetrics discards all entries.
type NullMetrics struct{}

func NewNullMetrics() *NullMetrics {
	return &NullMetrics{}
}

func (m *NullMetrics) RecordExecution(entry MetricsEntry) {}
