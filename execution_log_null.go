package taskengine

import "context"

// NullExecutionLogger is a no-op implementation of ExecutionLogger.
type NullExecutionLogger struct{}

func NewNullExecutionLogger() *NullExecutionLogger {
	return &NullExecutionLogger{}
}

func (l *NullExecutionLogger) LogAttempt(ctx context.Context, entry *AttemptLogEntry) error {
	return nil
}

func (l *NullExecutionLogger) GetAttemptHistory(ctx context.Context, executionID string) ([]*AttemptLogEntry, error) {
	return nil, nil
}
