package taskengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileExecutionLogger is an implementation of ExecutionLogger that logs to a
// file. A file is created per execution. The file is formatted as
// newline-delimited JSON.
type FileExecutionLogger struct {
	directory string
}

func NewFileExecutionLogger(directory string) *FileExecutionLogger {
	return &FileExecutionLogger{directory: directory}
}

func (l *FileExecutionLogger) attemptLogPath(executionID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", executionID))
}

func (l *FileExecutionLogger) GetAttemptHistory(ctx context.Context, executionID string) ([]*AttemptLogEntry, error) {
	filePath := l.attemptLogPath(executionID)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var entries []*AttemptLogEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry AttemptLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (l *FileExecutionLogger) LogAttempt(ctx context.Context, entry *AttemptLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	filePath := l.attemptLogPath(entry.ExecutionID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}
