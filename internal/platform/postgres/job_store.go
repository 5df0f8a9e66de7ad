package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/voicenote-api/internal/platform/logger"
	"github.com/phrazzld/voicenote-api/internal/store"
	"github.com/phrazzld/voicenote-api/internal/task"
)

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL.
// Tasks loaded back from the database are rehydrated into executable tasks
// through the factory registry, which is how recovery after a restart
// re-creates the transcription and summarization work.
type PostgresTaskStore struct {
	db       store.DBTX
	registry *task.FactoryRegistry
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
// The registry may be nil at construction time and set later with
// SetRegistry once the task factories are wired.
func NewPostgresTaskStore(db store.DBTX, registry *task.FactoryRegistry) *PostgresTaskStore {
	return &PostgresTaskStore{
		db:       db,
		registry: registry,
	}
}

// Ensure PostgresTaskStore implements task.TaskStore interface
var _ task.TaskStore = (*PostgresTaskStore)(nil)

// SetRegistry installs the factory registry used to rehydrate persisted
// tasks. Wiring order in main requires the store to exist before the
// factories do.
func (s *PostgresTaskStore) SetRegistry(registry *task.FactoryRegistry) {
	s.registry = registry
}

// WithTx returns a new TaskStore instance backed by the given transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{
		db:       tx,
		registry: s.registry,
	}
}

// SaveTask persists a task to the database
func (s *PostgresTaskStore) SaveTask(ctx context.Context, t task.Task) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO jobs (id, type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, query,
		t.ID(),
		t.Type(),
		t.Payload(),
		t.Status(),
		now,
		now,
	)

	if err != nil {
		log.Error("failed to save task",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", err)
	}

	return nil
}

// UpdateTaskStatus updates the status of a task in the database
func (s *PostgresTaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status task.TaskStatus,
	errorMsg string,
) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		errorMsg,
		time.Now().UTC(),
		taskID,
	)

	if err != nil {
		log.Error("failed to update task status",
			"task_id", taskID,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			"task_id", taskID,
			"error", err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		log.Warn("no task found with ID to update status",
			"task_id", taskID)
		return nil // Task not found, treat as no-op
	}

	return nil
}

// GetPendingTasks retrieves all tasks with "pending" status
func (s *PostgresTaskStore) GetPendingTasks(ctx context.Context) ([]task.Task, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusPending, 0)
}

// GetProcessingTasks retrieves tasks with "processing" status
func (s *PostgresTaskStore) GetProcessingTasks(
	ctx context.Context,
	olderThan time.Duration,
) ([]task.Task, error) {
	return s.getTasksByStatus(ctx, task.TaskStatusProcessing, olderThan)
}

// getTasksByStatus is a helper method to get tasks by status with optional age filter
func (s *PostgresTaskStore) getTasksByStatus(
	ctx context.Context,
	status task.TaskStatus,
	olderThan time.Duration,
) ([]task.Task, error) {
	log := logger.FromContext(ctx)

	var query string
	var args []interface{}

	if olderThan > 0 {
		query = `
			SELECT id, type, payload, status, error_message, created_at, updated_at
			FROM jobs
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at ASC
		`
		args = []interface{}{status, time.Now().UTC().Add(-olderThan)}
	} else {
		query = `
			SELECT id, type, payload, status, error_message, created_at, updated_at
			FROM jobs
			WHERE status = $1
			ORDER BY created_at ASC
		`
		args = []interface{}{status}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks by status",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("failed to query tasks by status: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", "error", err)
		}
	}()

	var tasks []task.Task

	for rows.Next() {
		var id uuid.UUID
		var taskType string
		var payload []byte
		var taskStatus task.TaskStatus
		var errorMessage sql.NullString
		var createdAt time.Time
		var updatedAt time.Time

		if err := rows.Scan(&id, &taskType, &payload, &taskStatus, &errorMessage, &createdAt, &updatedAt); err != nil {
			log.Error("failed to scan task row",
				"status", status,
				"error", err)
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		tasks = append(tasks, s.rehydrate(ctx, id, taskType, payload, taskStatus))
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// rehydrate turns a persisted row back into an executable task through the
// factory registry. When no factory can serve the row, a databaseTask shell
// is returned; executing it fails, which marks the job failed instead of
// silently dropping it.
func (s *PostgresTaskStore) rehydrate(
	ctx context.Context,
	id uuid.UUID,
	taskType string,
	payload []byte,
	status task.TaskStatus,
) task.Task {
	log := logger.FromContext(ctx)

	if s.registry != nil {
		t, err := s.registry.Rehydrate(id, taskType, payload)
		if err == nil {
			return t
		}
		log.Error("failed to rehydrate task",
			"task_id", id,
			"task_type", taskType,
			"error", err)
	}

	return &databaseTask{
		id:       id,
		taskType: taskType,
		payload:  payload,
		status:   status,
	}
}

// databaseTask is a shell for persisted tasks that could not be rehydrated
// into their concrete type.
type databaseTask struct {
	id       uuid.UUID
	taskType string
	payload  []byte
	status   task.TaskStatus
}

// ID returns the task's unique identifier
func (t *databaseTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *databaseTask) Type() string {
	return t.taskType
}

// Payload returns the task data as a byte slice
func (t *databaseTask) Payload() []byte {
	return t.payload
}

// Status returns the current task status
func (t *databaseTask) Status() task.TaskStatus {
	return t.status
}

// Execute always fails: a task that reaches this point has no registered
// factory, and failing it loudly beats executing nothing.
func (t *databaseTask) Execute(ctx context.Context) error {
	return errors.New("no factory registered for recovered task type " + t.taskType)
}
