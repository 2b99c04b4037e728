package taskengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deepnoodle-ai/taskengine/provider"
	"github.com/deepnoodle-ai/taskengine/retry"
	"go.jetify.com/typeid"
)

// NewExecutionID returns a new typed ID for execution identification
func NewExecutionID() string {
	id, err := typeid.WithPrefix("exec")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// ExecutionOptions configures a new StepExecution
type ExecutionOptions struct {
	Store           Store
	Resolver        *ProviderResolver
	ProviderConfigs []provider.Config
	Logger          *slog.Logger
	ExecutionLogger ExecutionLogger
	Metrics         MetricsRecorder
	Callbacks       ExecutionCallbacks

	// MaxRetries bounds the attempt loop at 1 initial attempt plus this
	// many retries. Defaults to 3.
	MaxRetries int

	// BaseBackoff is the wait before the first retry; it doubles before
	// each subsequent retry. Defaults to 2 seconds. No jitter is applied.
	BaseBackoff time.Duration

	// Generation parameters passed to the provider.
	Temperature float64
	MaxTokens   int
}

// StepResult is the outcome of a successful step execution.
type StepResult struct {
	Outputs    map[string]any `json:"outputs"`
	Duration   time.Duration  `json:"duration"`
	RetryCount int            `json:"retry_count"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StepExecution runs single steps against a provider, persisting status
// transitions through the Store. One execution call processes one step; there
// is no cross-step parallelism. The backoff sleeps are context-aware, but
// otherwise cancellation must be applied by the caller around the whole call.
type StepExecution struct {
	store           Store
	resolver        *ProviderResolver
	providerConfigs []provider.Config
	logger          *slog.Logger
	executionLogger ExecutionLogger
	metrics         MetricsRecorder
	callbacks       ExecutionCallbacks
	maxRetries      int
	baseBackoff     time.Duration
	temperature     float64
	maxTokens       int
	waitFn          retry.WaitFunc
}

// NewStepExecution creates a new StepExecution, defaulting any unset options.
func NewStepExecution(opts ExecutionOptions) (*StepExecution, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Logger == nil {
		opts.Logger = NewDiscardLogger()
	}
	if opts.Resolver == nil {
		opts.Resolver = NewProviderResolver(ResolverOptions{Logger: opts.Logger})
	}
	if opts.ExecutionLogger == nil {
		opts.ExecutionLogger = NewNullExecutionLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMemoryMetrics()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseExecutionCallbacks{}
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = retry.DefaultMaxRetries
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = retry.DefaultBaseWait
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2000
	}
	return &StepExecution{
		store:           opts.Store,
		resolver:        opts.Resolver,
		providerConfigs: opts.ProviderConfigs,
		logger:          opts.Logger,
		executionLogger: opts.ExecutionLogger,
		metrics:         opts.Metrics,
		callbacks:       opts.Callbacks,
		maxRetries:      opts.MaxRetries,
		baseBackoff:     opts.BaseBackoff,
		temperature:     opts.Temperature,
		maxTokens:       opts.MaxTokens,
		waitFn:          retry.Wait,
	}, nil
}

// ExecuteStep executes the step with the given ID. Overrides merge into the
// step's stored inputs; a "workflow_type" override routes to the execution
// context's metadata instead. The returned error, when non-nil, is always an
// *ExecutionError.
func (e *StepExecution) ExecuteStep(ctx context.Context, stepID string, overrides map[string]any) (*StepResult, error) {
	executionID := NewExecutionID()
	logger := e.logger
	if ctxLogger, ok := LoggerFromContext(ctx); ok {
		logger = ctxLogger
	}
	logger = logger.With("execution_id", executionID, "step_id", stepID)
	startTime := time.Now()

	step, agent, execErr := e.loadStepAndAgent(ctx, stepID)
	if execErr != nil {
		logger.Error("step execution rejected", "code", execErr.Code, "error", execErr.Message)
		return nil, execErr
	}
	logger = logger.With("step_name", step.Name, "agent_id", agent.ID)

	ectx := e.buildExecutionContext(executionID, step, agent, overrides)

	// Mark the step running exactly once, before any retry attempts.
	if err := e.store.UpdateStepStatus(ctx, step.ID, StepStatusRunning, StepUpdate{StartedAt: startTime}); err != nil {
		return nil, e.failBestEffort(ctx, step, logger, fmt.Errorf("failed to mark step running: %w", err))
	}

	stepEvent := &StepExecutionEvent{
		ExecutionID: executionID,
		WorkflowID:  step.WorkflowID,
		StepID:      step.ID,
		StepName:    step.Name,
		AgentID:     agent.ID,
		Status:      StepStatusRunning,
		StartTime:   startTime,
		Inputs:      copyMap(ectx.Inputs),
	}
	e.callbacks.BeforeStepExecution(ctx, stepEvent)

	outcome, lastErr := e.runAttempts(ctx, step, agent, ectx, logger)
	endTime := time.Now()
	duration := endTime.Sub(startTime)

	if lastErr != nil {
		execErr := e.completeFailed(ctx, step, agent, outcome, lastErr, duration, logger)
		stepEvent.Status = StepStatusFailed
		stepEvent.EndTime = endTime
		stepEvent.Duration = duration
		stepEvent.RetryCount = outcome.retryCount()
		stepEvent.Error = execErr
		e.callbacks.AfterStepExecution(ctx, stepEvent)
		return nil, execErr
	}

	result, execErr := e.completeSucceeded(ctx, step, agent, ectx, outcome, duration, logger)
	if execErr != nil {
		stepEvent.Status = StepStatusFailed
		stepEvent.EndTime = endTime
		stepEvent.Duration = duration
		stepEvent.Error = execErr
		e.callbacks.AfterStepExecution(ctx, stepEvent)
		return nil, execErr
	}
	stepEvent.Status = StepStatusCompleted
	stepEvent.EndTime = endTime
	stepEvent.Duration = duration
	stepEvent.Outputs = copyMap(result.Outputs)
	stepEvent.RetryCount = result.RetryCount
	stepEvent.Confidence = result.Confidence
	e.callbacks.AfterStepExecution(ctx, stepEvent)
	return result, nil
}

// loadStepAndAgent loads the step and its assigned agent, classifying missing
// records as terminal caller errors. No provider call and no status write
// happens on this path.
func (e *StepExecution) loadStepAndAgent(ctx context.Context, stepID string) (*Step, *Agent, *ExecutionError) {
	step, err := e.store.LoadStep(ctx, stepID)
	if err != nil {
		if errors.Is(err, ErrStepNotFound) {
			return nil, nil, NewExecutionError(CodeStepNotFound,
				fmt.Sprintf("step %s not found", stepID), false)
		}
		return nil, nil, &ExecutionError{
			Code:    CodeExecutionError,
			Message: fmt.Sprintf("failed to load step %s: %v", stepID, err),
			Wrapped: err,
		}
	}
	if step.AgentID == "" {
		return nil, nil, NewExecutionError(CodeNoAgentAssigned,
			fmt.Sprintf("step %s has no agent assigned", stepID), false)
	}
	agent, err := e.store.LoadAgent(ctx, step.AgentID)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			return nil, nil, NewExecutionError(CodeNoAgentAssigned,
				fmt.Sprintf("agent %s assigned to step %s not found", step.AgentID, stepID), false)
		}
		return nil, nil, &ExecutionError{
			Code:    CodeExecutionError,
			Message: fmt.Sprintf("failed to load agent %s: %v", step.AgentID, err),
			Wrapped: err,
		}
	}
	return step, agent, nil
}

func (e *StepExecution) buildExecutionContext(executionID string, step *Step, agent *Agent, overrides map[string]any) *ExecutionContext {
	inputs := step.DecodeInputs()
	metadata := map[string]any{
		"agent_name":  agent.Name,
		"workflow_id": step.WorkflowID,
	}
	for k, v := range overrides {
		if k == "workflow_type" {
			metadata[k] = v
			continue
		}
		inputs[k] = v
	}
	return &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  step.WorkflowID,
		StepID:      step.ID,
		AgentID:     agent.ID,
		Inputs:      inputs,
		Metadata:    metadata,
	}
}

// attemptOutcome accumulates state across the retry loop.
type attemptOutcome struct {
	attempts     int
	outputs      map[string]any
	confidence   float64
	providerName string
	usage        provider.Usage
	metadata     map[string]any
}

func (o *attemptOutcome) retryCount() int {
	if o.attempts == 0 {
		return 0
	}
	return o.attempts - 1
}

// runAttempts is the bounded retry loop: resolve a provider, build the
// prompt, call the provider, parse the result. Provider failures carry their
// own retryability; parse and serialization failures are always retryable.
// The wait between attempts follows the doubling schedule with no jitter.
func (e *StepExecution) runAttempts(ctx context.Context, step *Step, agent *Agent, ectx *ExecutionContext, logger *slog.Logger) (*attemptOutcome, error) {
	outcome := &attemptOutcome{}

	err := retry.Do(ctx, func() error {
		attempt := outcome.attempts
		outcome.attempts++
		attemptStart := time.Now()

		attemptEvent := &AttemptEvent{
			ExecutionID: ectx.ExecutionID,
			StepID:      step.ID,
			StepName:    step.Name,
			Attempt:     attempt,
			StartTime:   attemptStart,
		}
		e.callbacks.BeforeAttempt(ctx, attemptEvent)

		attemptErr := e.runAttempt(ctx, step, agent, ectx, outcome, logger)

		attemptEvent.Provider = outcome.providerName
		attemptEvent.EndTime = time.Now()
		attemptEvent.Duration = attemptEvent.EndTime.Sub(attemptStart)
		attemptEvent.Error = attemptErr
		e.callbacks.AfterAttempt(ctx, attemptEvent)

		logEntry := &AttemptLogEntry{
			ExecutionID: ectx.ExecutionID,
			WorkflowID:  step.WorkflowID,
			StepID:      step.ID,
			StepName:    step.Name,
			AgentID:     agent.ID,
			Attempt:     attempt,
			Provider:    outcome.providerName,
			StartTime:   attemptStart,
			Duration:    attemptEvent.Duration.Seconds(),
		}
		if attemptErr != nil {
			logEntry.Error = attemptErr.Error()
		}
		if logErr := e.executionLogger.LogAttempt(ctx, logEntry); logErr != nil {
			logger.Error("failed to log attempt", "error", logErr)
		}

		if attemptErr != nil {
			logger.Warn("attempt failed",
				"attempt", attempt,
				"retryable", retry.IsRecoverable(attemptErr),
				"error", attemptErr)
		}
		return attemptErr
	},
		retry.WithMaxRetries(e.maxRetries),
		retry.WithBaseWait(e.baseBackoff),
		retry.WithWaitFunc(e.waitFn))

	return outcome, err
}

// runAttempt performs one resolve/generate/parse cycle.
func (e *StepExecution) runAttempt(ctx context.Context, step *Step, agent *Agent, ectx *ExecutionContext, outcome *attemptOutcome, logger *slog.Logger) error {
	p, err := e.resolver.Resolve(ctx, agent.ID, e.providerConfigs)
	if err != nil {
		// Resolution exhaustion is non-fatal: substitute the deterministic
		// mock provider so the surrounding workflow can proceed.
		logger.Warn("no provider available, falling back to mock", "error", err)
		p = provider.NewMock()
	}
	outcome.providerName = p.Name()

	prompt := BuildPrompt(step, agent, ectx)

	result, err := p.GenerateText(ctx, prompt, provider.Options{
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return &ExecutionError{
			Code:      CodeGenerationFailed,
			Message:   err.Error(),
			Retryable: retry.IsRecoverable(err),
			Wrapped:   err,
		}
	}

	outputs := ParseResult(result.Text, step)
	if _, err := json.Marshal(outputs); err != nil {
		return &ExecutionError{
			Code:      CodeResultParsingError,
			Message:   fmt.Sprintf("failed to serialize parsed outputs: %v", err),
			Retryable: true,
			Wrapped:   err,
		}
	}

	outcome.outputs = outputs
	outcome.usage = result.Usage
	outcome.metadata = result.Metadata
	outcome.confidence = CalculateConfidence(result.Usage.CompletionTokens, step)
	return nil
}

// completeSucceeded persists the completed status and outputs and assembles
// the result. A persistence failure on this path is propagated as an
// EXECUTION_ERROR: the persisted status is authoritative, and reporting
// success while the store disagrees would be worse than failing loudly.
func (e *StepExecution) completeSucceeded(ctx context.Context, step *Step, agent *Agent, ectx *ExecutionContext, outcome *attemptOutcome, duration time.Duration, logger *slog.Logger) (*StepResult, *ExecutionError) {
	serialized, err := json.Marshal(outcome.outputs)
	if err != nil {
		// Already validated during the attempt; kept as a guard.
		return nil, ClassifyError(fmt.Errorf("failed to serialize outputs: %w", err))
	}

	if err := e.store.UpdateStepStatus(ctx, step.ID, StepStatusCompleted, StepUpdate{
		Outputs:     string(serialized),
		CompletedAt: time.Now(),
	}); err != nil {
		logger.Error("failed to persist completed status", "error", err)
		return nil, &ExecutionError{
			Code:    CodeExecutionError,
			Message: fmt.Sprintf("step succeeded but status update failed: %v", err),
			Wrapped: err,
		}
	}

	e.metrics.RecordExecution(MetricsEntry{
		WorkflowID: step.WorkflowID,
		StepID:     step.ID,
		AgentID:    agent.ID,
		Duration:   duration,
		Success:    true,
		RetryCount: outcome.retryCount(),
		Confidence: outcome.confidence,
		RecordedAt: time.Now(),
	})

	metadata := map[string]any{
		"execution_id": ectx.ExecutionID,
		"agent_id":     agent.ID,
		"agent_name":   agent.Name,
		"provider":     outcome.providerName,
		"usage":        outcome.usage,
	}
	for k, v := range outcome.metadata {
		metadata[k] = v
	}

	logger.Info("step completed",
		"duration", duration,
		"retry_count", outcome.retryCount(),
		"confidence", outcome.confidence,
		"provider", outcome.providerName)

	return &StepResult{
		Outputs:    outcome.outputs,
		Duration:   duration,
		RetryCount: outcome.retryCount(),
		Confidence: outcome.confidence,
		Metadata:   metadata,
	}, nil
}

// completeFailed persists the failed status with a serialized error payload.
// Secondary persistence failures are logged and swallowed so they do not mask
// the primary error.
func (e *StepExecution) completeFailed(ctx context.Context, step *Step, agent *Agent, outcome *attemptOutcome, lastErr error, duration time.Duration, logger *slog.Logger) *ExecutionError {
	classified := ClassifyError(lastErr)
	payload := ErrorPayload{
		Code:       classified.Code,
		Message:    fmt.Sprintf("execution failed after %d attempts", outcome.attempts),
		RetryCount: outcome.retryCount(),
		LastError:  classified.Message,
	}
	serialized, err := json.Marshal(payload)
	if err != nil {
		serialized = []byte(fmt.Sprintf("%q", classified.Message))
	}
	if err := e.store.UpdateStepStatus(ctx, step.ID, StepStatusFailed, StepUpdate{
		Error:       string(serialized),
		CompletedAt: time.Now(),
	}); err != nil {
		logger.Error("failed to persist failed status", "error", err)
	}

	e.metrics.RecordExecution(MetricsEntry{
		WorkflowID: step.WorkflowID,
		StepID:     step.ID,
		AgentID:    agent.ID,
		Duration:   duration,
		Success:    false,
		RetryCount: outcome.retryCount(),
		RecordedAt: time.Now(),
	})

	logger.Error("step failed",
		"attempts", outcome.attempts,
		"duration", duration,
		"last_error", classified.Message)

	return &ExecutionError{
		Code:      CodeExecutionFailed,
		Message:   payload.Message,
		Retryable: false,
		Details:   payload,
		Wrapped:   lastErr,
	}
}

// failBestEffort handles failures outside the attempt loop: persist the
// failed status if possible, swallowing secondary errors, and return an
// EXECUTION_ERROR.
func (e *StepExecution) failBestEffort(ctx context.Context, step *Step, logger *slog.Logger, cause error) *ExecutionError {
	if err := e.store.UpdateStepStatus(ctx, step.ID, StepStatusFailed, StepUpdate{
		Error:       fmt.Sprintf("%q", cause.Error()),
		CompletedAt: time.Now(),
	}); err != nil {
		logger.Error("failed to persist failed status", "error", err)
	}
	logger.Error("step execution error", "error", cause)
	return &ExecutionError{
		Code:    CodeExecutionError,
		Message: cause.Error(),
		Wrapped: cause,
	}
}
