package taskengine

import (
	"context"
	"log/slog"
)

// ExecutionContext is an ephemeral, per-call value carrying the identifiers
// and resolved inputs for one step execution. It is created at the start of
// an execution call and discarded after the call returns; it has no
// independent lifecycle or persistence.
type ExecutionContext struct {
	ExecutionID string
	WorkflowID  string
	StepID      string
	AgentID     string
	Inputs      map[string]any
	Metadata    map[string]any
}

type contextKey string

const loggerContextKey contextKey = "logger"

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext retrieves a logger previously attached with WithLogger.
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(loggerContextKey).(*slog.Logger)
	return logger, ok
}
