// Package postgres provides a Postgres-backed Store implementation.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/deepnoodle-ai/taskengine"
)

const schema = `
CREATE TABLE IF NOT EXISTS steps (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	ordinal INTEGER NOT NULL DEFAULT 0,
	agent_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	inputs TEXT NOT NULL DEFAULT '',
	outputs TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	capabilities TEXT NOT NULL DEFAULT ''
);
`

// Store implements taskengine.Store backed by Postgres.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres with the given DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Setup creates the steps and agents tables if they do not exist.
func (s *Store) Setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadStep(ctx context.Context, id string) (*taskengine.Step, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, name, description, ordinal, agent_id,
		       status, inputs, outputs, error, started_at, completed_at
		FROM steps WHERE id = $1`, id)

	var step taskengine.Step
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&step.ID, &step.WorkflowID, &step.Name, &step.Description,
		&step.Ordinal, &step.AgentID, &step.Status, &step.Inputs,
		&step.Outputs, &step.Error, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, taskengine.ErrStepNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load step %s: %w", id, err)
	}
	if startedAt.Valid {
		step.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		step.CompletedAt = completedAt.Time
	}
	return &step, nil
}

func (s *Store) LoadAgent(ctx context.Context, id string) (*taskengine.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, capabilities FROM agents WHERE id = $1`, id)

	var agent taskengine.Agent
	err := row.Scan(&agent.ID, &agent.Name, &agent.Capabilities)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, taskengine.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent %s: %w", id, err)
	}
	return &agent, nil
}

// UpdateStepStatus transitions a step's status and writes the update's
// non-zero fields. A step already in a terminal status is not overwritten.
func (s *Store) UpdateStepStatus(ctx context.Context, id string, status taskengine.StepStatus, update taskengine.StepUpdate) error {
	query := `UPDATE steps SET status = $2`
	args := []any{id, status}
	n := 3
	if update.Outputs != "" {
		query += fmt.Sprintf(", outputs = $%d", n)
		args = append(args, update.Outputs)
		n++
	}
	if update.Error != "" {
		query += fmt.Sprintf(", error = $%d", n)
		args = append(args, update.Error)
		n++
	}
	if !update.StartedAt.IsZero() {
		query += fmt.Sprintf(", started_at = $%d", n)
		args = append(args, update.StartedAt)
		n++
	}
	if !update.CompletedAt.IsZero() {
		query += fmt.Sprintf(", completed_at = $%d", n)
		args = append(args, update.CompletedAt)
		n++
	}
	query += ` WHERE id = $1 AND status NOT IN ('completed', 'failed')`

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update step %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		// Either the step does not exist or it already reached a terminal
		// status.
		var existing string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM steps WHERE id = $1`, id).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return taskengine.ErrStepNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check step %s: %w", id, err)
		}
		return fmt.Errorf("step %s already %s", id, existing)
	}
	return nil
}

// PutStep inserts or replaces a step. Used for seeding; the execution engine
// itself never creates steps.
func (s *Store) PutStep(ctx context.Context, step *taskengine.Step) error {
	status := step.Status
	if status == "" {
		status = taskengine.StepStatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (id, workflow_id, name, description, ordinal, agent_id, status, inputs, outputs, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			ordinal = EXCLUDED.ordinal,
			agent_id = EXCLUDED.agent_id,
			status = EXCLUDED.status,
			inputs = EXCLUDED.inputs,
			outputs = EXCLUDED.outputs,
			error = EXCLUDED.error`,
		step.ID, step.WorkflowID, step.Name, step.Description, step.Ordinal,
		step.AgentID, status, step.Inputs, step.Outputs, step.Error)
	if err != nil {
		return fmt.Errorf("failed to put step %s: %w", step.ID, err)
	}
	return nil
}

// PutAgent inserts or replaces an agent.
func (s *Store) PutAgent(ctx context.Context, agent *taskengine.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, capabilities)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			capabilities = EXCLUDED.capabilities`,
		agent.ID, agent.Name, agent.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to put agent %s: %w", agent.ID, err)
	}
	return nil
}

var _ taskengine.Store = (*Store)(nil)
