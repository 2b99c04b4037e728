package taskengine

import (
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/taskengine/retry"
)

// Error codes for classification and matching. Every failure leaving the
// execution engine's public entry point carries one of these codes.
const (
	// CodeStepNotFound indicates the requested step does not exist. Caller
	// error, not retryable.
	CodeStepNotFound = "STEP_NOT_FOUND"

	// CodeNoAgentAssigned indicates the step has no agent assigned. Caller
	// error, not retryable.
	CodeNoAgentAssigned = "NO_AGENT_ASSIGNED"

	// CodeNoProviderAvailable indicates every candidate provider was
	// disabled, failed construction, or failed its health probe. Retryable;
	// the execution engine substitutes a mock provider rather than failing
	// the surrounding workflow.
	CodeNoProviderAvailable = "NO_PROVIDER_AVAILABLE"

	// CodeGenerationFailed indicates the provider call itself failed.
	// Retryability is inherited from the underlying provider error.
	CodeGenerationFailed = "ML_GENERATION_FAILED"

	// CodeResultParsingError indicates the model output could not be
	// interpreted. Always retryable: model output varies between attempts.
	CodeResultParsingError = "RESULT_PARSING_ERROR"

	// CodeExecutionFailed indicates the bounded retry budget was exhausted.
	// Never itself retryable; retrying the call is the caller's decision.
	CodeExecutionFailed = "EXECUTION_FAILED"

	// CodeExecutionError is the catch-all for failures outside the attempt
	// loop, such as the initial storage read throwing. Terminal.
	CodeExecutionError = "EXECUTION_ERROR"
)

// ExecutionError is a structured, classified error. It supports Go's error
// wrapping patterns with Unwrap() and implements retry.RecoverableError so
// the retry package honors its Retryable flag.
type ExecutionError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
	Wrapped   error  `json:"-"`
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the error unwrapping interface for errors.Is and errors.As.
func (e *ExecutionError) Unwrap() error {
	return e.Wrapped
}

// IsRecoverable implements retry.RecoverableError.
func (e *ExecutionError) IsRecoverable() bool {
	return e.Retryable
}

// NewExecutionError creates a new ExecutionError with the given code.
func NewExecutionError(code, message string, retryable bool) *ExecutionError {
	return &ExecutionError{Code: code, Message: message, Retryable: retryable}
}

// ClassifyError wraps an arbitrary error into an ExecutionError. Errors that
// are already classified are returned as-is; everything else becomes an
// EXECUTION_ERROR whose retryable flag comes from the retry package's
// recoverability heuristics.
func ClassifyError(err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return &ExecutionError{
		Code:      CodeExecutionError,
		Message:   err.Error(),
		Retryable: retry.IsRecoverable(err),
		Wrapped:   err,
	}
}

// ErrorPayload is the serialized error information persisted on a failed step.
type ErrorPayload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
}
