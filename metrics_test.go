package taskengine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryMetrics(t *testing.T) {
	metrics := NewMemoryMetrics()

	_, ok := metrics.Get("W1", "S1")
	require.False(t, ok)

	metrics.RecordExecution(MetricsEntry{
		WorkflowID: "W1",
		StepID:     "S1",
		AgentID:    "A1",
		Duration:   time.Second,
		Success:    true,
		Confidence: 0.8,
	})

	entry, ok := metrics.Get("W1", "S1")
	require.True(t, ok)
	require.True(t, entry.Success)
	require.Equal(t, "A1", entry.AgentID)

	// Last writer wins.
	metrics.RecordExecution(MetricsEntry{
		WorkflowID: "W1",
		StepID:     "S1",
		Success:    false,
		RetryCount: 3,
	})
	entry, ok = metrics.Get("W1", "S1")
	require.True(t, ok)
	require.False(t, entry.Success)
	require.Equal(t, 3, entry.RetryCount)

	require.Len(t, metrics.Snapshot(), 1)
}

func TestMemoryMetricsConcurrentWrites(t *testing.T) {
	metrics := NewMemoryMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			metrics.RecordExecution(MetricsEntry{
				WorkflowID: "W1",
				StepID:     "S1",
				RetryCount: n,
			})
			metrics.Get("W1", "S1")
		}(i)
	}
	wg.Wait()

	_, ok := metrics.Get("W1", "S1")
	require.True(t, ok)
}

func TestNullMetrics(t *testing.T) {
	metrics := NewNullMetrics()
	// Discards without panicking.
	metrics.RecordExecution(MetricsEntry{WorkflowID: "W1", StepID: "S1"})
}
