package taskengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deepnoodle-ai/taskengine/provider"
	"github.com/stretchr/testify/require"
)

// spyStore wraps MemoryStore to count status updates and inject failures.
type spyStore struct {
	*MemoryStore
	updateCalls []StepStatus
	failOn      map[StepStatus]error
}

func newSpyStore() *spyStore {
	return &spyStore{MemoryStore: NewMemoryStore(), failOn: map[StepStatus]error{}}
}

func (s *spyStore) UpdateStepStatus(ctx context.Context, id string, status StepStatus, update StepUpdate) error {
	s.updateCalls = append(s.updateCalls, status)
	if err := s.failOn[status]; err != nil {
		return err
	}
	return s.MemoryStore.UpdateStepStatus(ctx, id, status, update)
}

// memoryExecutionLogger captures attempt log entries in memory.
type memoryExecutionLogger struct {
	entries []*AttemptLogEntry
}

func (l *memoryExecutionLogger) LogAttempt(ctx context.Context, entry *AttemptLogEntry) error {
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memoryExecutionLogger) GetAttemptHistory(ctx context.Context, executionID string) ([]*AttemptLogEntry, error) {
	return l.entries, nil
}

func seedStore(store *spyStore) {
	store.PutAgent(&Agent{ID: "A1", Name: "Builder", Capabilities: "code,test"})
	store.PutStep(&Step{
		ID:         "S1",
		WorkflowID: "W1",
		Name:       "build feature",
		Ordinal:    1,
		AgentID:    "A1",
		Status:     StepStatusPending,
		Inputs:     `{"x":5}`,
	})
}

type testExecution struct {
	exec     *StepExecution
	store    *spyStore
	provider *fakeProvider
	metrics  *MemoryMetrics
	log      *memoryExecutionLogger
	waits    *[]time.Duration
}

func newTestExecution(t *testing.T, fp *fakeProvider) *testExecution {
	t.Helper()
	store := newSpyStore()
	seedStore(store)

	resolver := NewProviderResolver(ResolverOptions{
		Factory: func(cfg provider.Config) (provider.Provider, error) {
			return fp, nil
		},
	})
	metrics := NewMemoryMetrics()
	log := &memoryExecutionLogger{}

	exec, err := NewStepExecution(ExecutionOptions{
		Store:           store,
		Resolver:        resolver,
		ProviderConfigs: []provider.Config{{Name: "fake", Type: provider.TypeMock, Enabled: true, Priority: 1}},
		Metrics:         metrics,
		ExecutionLogger: log,
	})
	require.NoError(t, err)

	// Capture backoff waits instead of sleeping.
	waits := &[]time.Duration{}
	exec.waitFn = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}

	return &testExecution{exec: exec, store: store, provider: fp, metrics: metrics, log: log, waits: waits}
}

func retryableProviderError(msg string) *provider.Error {
	return &provider.Error{Provider: "fake", Message: msg, Retryable: true}
}

func TestNewStepExecutionRequiresStore(t *testing.T) {
	_, err := NewStepExecution(ExecutionOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "store is required")
}

func TestExecuteStepSuccess(t *testing.T) {
	fp := &fakeProvider{
		name:      "fake",
		available: true,
		results:   []*provider.Result{textResult(`{"outputs":{"y":10},"confidence":0.9}`, 150)},
	}
	te := newTestExecution(t, fp)

	result, err := te.exec.ExecuteStep(context.Background(), "S1", nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"y": float64(10)}, result.Outputs["outputs"])
	require.Equal(t, 0, result.RetryCount)
	require.GreaterOrEqual(t, result.Confidence, 0.1)
	require.LessOrEqual(t, result.Confidence, 1.0)
	require.Equal(t, "fake", result.Metadata["provider"])
	require.Equal(t, 1, fp.calls)
	require.Empty(t, *te.waits)

	// Status transitions: running then completed, outputs persisted.
	require.Equal(t, []StepStatus{StepStatusRunning, StepStatusCompleted}, te.store.updateCalls)
	step, err := te.store.LoadStep(context.Background(), "S1")
	require.NoError(t, err)
	require.Equal(t, StepStatusCompleted, step.Status)
	require.Contains(t, step.Outputs, `"y":10`)
	require.False(t, step.StartedAt.IsZero())
	require.False(t, step.CompletedAt.IsZero())

	// Metrics recorded.
	entry, ok := te.metrics.Get("W1", "S1")
	require.True(t, ok)
	require.True(t, entry.Success)
	require.Equal(t, 0, entry.RetryCount)
}

func TestExecuteStepMissingStep(t *testing.T) {
	fp := &fakeProvider{name: "fake", available: true}
	te := newTestExecution(t, fp)

	_, err := te.exec.ExecuteStep(context.Background(), "does-not-exist", nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, CodeStepNotFound, execErr.Code)
	require.False(t, execErr.Retryable)

	// Neither the provider nor the status update is ever called.
	require.Equal(t, 0, fp.calls)
	require.Empty(t, te.store.updateCalls)
}

func TestExecuteStepNoAgentAssigned(t *testing.T) {
	fp := &fakeProvider{name: "fake", available: true}
	te := newTestExecution(t, fp)
	te.store.PutStep(&Step{ID: "S2", Name: "orphan", Status: StepStatusPending})

	_, err := te.exec.ExecuteStep(context.Background(), "S2", nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, CodeNoAgentAssigned, execErr.Code)
	require.Equal(t, 0, fp.calls)
	require.Empty(t, te.store.updateCalls)
}

func TestExecuteStepAssignedAgentMissing(t *testing.T) {
	fp := &fakeProvider{name: "fake", available: true}
	te := newTestExecution(t, fp)
	te.store.PutStep(&Step{ID: "S3", Name: "dangling", AgentID: "ghost", Status: StepStatusPending})

	_, err := te.exec.ExecuteStep(context.Background(), "S3", nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, CodeNoAgentAssigned, execErr.Code)
}

func TestExecuteStepRetryBound(t *testing.T) {
	fp := &fakeProvider{
		name:      "fake",
		available: true,
		errs: []error{
			retryableProviderError("overloaded"),
			retryableProviderError("overloaded"),
			retryableProviderError("overloaded"),
			retryableProviderError("overloaded"),
			retryableProviderError("overloaded"),
		},
	}
	te := newTestExecution(t, fp)

	_, err := te.exec.ExecuteStep(context.Background(), "S1", nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, CodeExecutionFailed, execErr.Code)
	require.False(t, execErr.Retryable)

	// Exactly 4 attempts: 1 initial + 3 retries.
	require.Equal(t, 4, fp.calls)

	// Doubling backoff schedule between attempts.
	require.Equal(t, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, *te.waits)

	// Failed status persisted with the error payload.
	step, loadErr := te.store.LoadStep(context.Background(), "S1")
	require.NoError(t, loadErr)
	require.Equal(t, StepStatusFailed, step.Status)
	require.Contains(t, step.Error, `"retry_count":3`)
	require.Contains(t, step.Error, CodeGenerationFailed)

	entry, ok := te.metrics.Get("W1", "S1")
	require.True(t, ok)
	require.False(t, entry.Success)
	require.Equal(t, 3, entry.RetryCount)
}

func TestExecuteStepNonRetryableShortCircuit(t *testing.T) {
	fp := &fakeProvider{
		name:      "fake",
		available: true,
		errs: []error{
			&provider.Error{Provider: "fake", Message: "invalid api key", Retryable: false},
		},
	}
	te := newTestExecution(t, fp)

	_, err := te.exec.ExecuteStep(context.Background(), "S1", nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, CodeExecutionFailed, execErr.Code)

	// Exactly 1 attempt and no sleeps.
	require.Equal(t, 1, fp.calls)
	require.Empty(t, *te.waits)
}

func TestExecuteStepRetryThenSuccess(t *testing.T) {
	fp := &fakeProvider{
		name:      "fake",
		available: true,
		errs:      []error{retryableProviderError("overloaded")},
		results: []*provider.Result{
			nil,
			textResult(`{"outputs":{"done":true}}`, 200),
		},
	}
	te := newTestExecution(t, fp)

	result, err := te.exec.ExecuteStep(context.Background(), "S1", nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.RetryCount)
	require.Equal(t, 2, fp.calls)
	require.Equal(t, []time.Duration{2 * time.Second}, *te.waits)

	step, loadErr := te.store.LoadStep(context.Background(), "S1")
	require.NoError(t, loadErr)
	require.Equal(t, StepStatusCompleted, step.Status)
}

func TestExecuteStepMockFallback(t *testing.T) {
	store := newSpyStore()
	seedStore(store)

	// Every real candidate fails construction, so resolution exhausts and
	// the execution falls back to the mock provider.
	resolver := NewProviderResolver(ResolverOptions{
		Factory: func(cfg provider.Config) (provider.Provider, error) {
			return nil, errors.New("bad credential")
		},
	})
	exec, err := NewStepExecution(ExecutionOptions{
		Store:           store,
		Resolver:        resolver,
		ProviderConfigs: []provider.Config{{Name: "broken", Type: provider.TypeOpenAI, Enabled: true}},
	})
	require.NoError(t, err)

	result, err := exec.ExecuteStep(context.Background(), "S1", nil)
	require.NoError(t, err)
	require.Equal(t, "mock", result.Metadata["provider"])
	require.Contains(t, result.Outputs, "outputs")

	step, loadErr := store.LoadStep(context.Background(), "S1")
	require.NoError(t, loadErr)
	require.Equal(t, StepStatusCompleted, step.Status)
}

func TestExecuteStepMarkRunningFailure(t *testing.T) {
	fp := &fakeProvider{name: "fake", available: true}
	te := newTestExecution(t, fp)
	te.store.failOn[StepStatusRunning] = errors.New("db offline")

	_, err := te.exec.ExecuteStep(context.Background(), "S1", nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, CodeExecutionError, execErr.Code)
	require.Equal(t, 0, fp.calls)
}

func TestExecuteStepSuccessPersistFailure(t *testing.T) {
	fp := &fakeProvider{
		name:      "fake",
		available: true,
		results:   []*provider.Result{textResult(`{"outputs":{"y":1}}`, 150)},
	}
	te := newTestExecution(t, fp)
	te.store.failOn[StepStatusCompleted] = errors.New("db offline")

	_, err := te.exec.ExecuteStep(context.Background(), "S1", nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, CodeExecutionError, execErr.Code)
}

func TestExecuteStepFailurePersistErrorSwallowed(t *testing.T) {
	fp := &fakeProvider{
		name:      "fake",
		available: true,
		errs: []error{
			&provider.Error{Provider: "fake", Message: "invalid api key", Retryable: false},
		},
	}
	te := newTestExecution(t, fp)
	te.store.failOn[StepStatusFailed] = errors.New("db offline")

	// The secondary persistence failure must not mask the primary error.
	_, err := te.exec.ExecuteStep(context.Background(), "S1", nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, CodeExecutionFailed, execErr.Code)
}

func TestExecuteStepAttemptLogging(t *testing.T) {
	fp := &fakeProvider{
		name:      "fake",
		available: true,
		errs: []error{
			retryableProviderError("overloaded"),
			retryableProviderError("overloaded"),
		},
		results: []*provider.Result{
			nil,
			nil,
			textResult(`{"outputs":{}}`, 120),
		},
	}
	te := newTestExecution(t, fp)

	_, err := te.exec.ExecuteStep(context.Background(), "S1", nil)
	require.NoError(t, err)

	require.Len(t, te.log.entries, 3)
	for i, entry := range te.log.entries {
		require.Equal(t, i, entry.Attempt)
		require.Equal(t, "S1", entry.StepID)
		require.Equal(t, "fake", entry.Provider)
	}
	require.NotEmpty(t, te.log.entries[0].Error)
	require.NotEmpty(t, te.log.entries[1].Error)
	require.Empty(t, te.log.entries[2].Error)
}

// countingCallbacks records callback invocations.
type countingCallbacks struct {
	BaseExecutionCallbacks
	beforeStep, afterStep       int
	beforeAttempt, afterAttempt int
	finalStatus                 StepStatus
}

func (c *countingCallbacks) BeforeStepExecution(ctx context.Context, event *StepExecutionEvent) {
	c.beforeStep++
}

func (c *countingCallbacks) AfterStepExecution(ctx context.Context, event *StepExecutionEvent) {
	c.afterStep++
	c.finalStatus = event.Status
}

func (c *countingCallbacks) BeforeAttempt(ctx context.Context, event *AttemptEvent) {
	c.beforeAttempt++
}

func (c *countingCallbacks) AfterAttempt(ctx context.Context, event *AttemptEvent) {
	c.afterAttempt++
}

func TestExecuteStepCallbacks(t *testing.T) {
	fp := &fakeProvider{
		name:      "fake",
		available: true,
		errs:      []error{retryableProviderError("overloaded")},
		results: []*provider.Result{
			nil,
			textResult(`{"outputs":{}}`, 120),
		},
	}
	store := newSpyStore()
	seedStore(store)
	callbacks := &countingCallbacks{}

	resolver := NewProviderResolver(ResolverOptions{
		Factory: func(cfg provider.Config) (provider.Provider, error) { return fp, nil },
	})
	exec, err := NewStepExecution(ExecutionOptions{
		Store:           store,
		Resolver:        resolver,
		ProviderConfigs: []provider.Config{{Name: "fake", Type: provider.TypeMock, Enabled: true}},
		Callbacks:       callbacks,
	})
	require.NoError(t, err)
	exec.waitFn = func(ctx context.Context, d time.Duration) error { return nil }

	_, err = exec.ExecuteStep(context.Background(), "S1", nil)
	require.NoError(t, err)

	require.Equal(t, 1, callbacks.beforeStep)
	require.Equal(t, 1, callbacks.afterStep)
	require.Equal(t, 2, callbacks.beforeAttempt)
	require.Equal(t, 2, callbacks.afterAttempt)
	require.Equal(t, StepStatusCompleted, callbacks.finalStatus)
}

func TestExecuteStepInputOverrides(t *testing.T) {
	fp := &fakeProvider{
		name:      "fake",
		available: true,
		results:   []*provider.Result{textResult(`{"outputs":{}}`, 120)},
	}
	te := newTestExecution(t, fp)

	var prompts []string
	te.exec.resolver = NewProviderResolver(ResolverOptions{
		Factory: func(cfg provider.Config) (provider.Provider, error) {
			return &promptCapturingProvider{fakeProvider: fp, prompts: &prompts}, nil
		},
	})

	_, err := te.exec.ExecuteStep(context.Background(), "S1", map[string]any{
		"x":             7,
		"workflow_type": "documentation",
	})
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	require.Contains(t, prompts[0], "x: 7")
	require.Contains(t, prompts[0], "Workflow type: documentation")
}

type promptCapturingProvider struct {
	*fakeProvider
	prompts *[]string
}

func (p *promptCapturingProvider) GenerateText(ctx context.Context, prompt string, opts provider.Options) (*provider.Result, error) {
	*p.prompts = append(*p.prompts, prompt)
	return p.fakeProvider.GenerateText(ctx, prompt, opts)
}
