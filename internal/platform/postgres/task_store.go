package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/driveflow/driveflow-api/internal/platform/logger"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/driveflow/driveflow-api/internal/task"
	"github.com/google/uuid"
)

// PostgresTaskStore implements the task.Store interface using PostgreSQL.
// The claim and requeue operations express their compare-and-swap semantics
// in the WHERE clause, so correctness does not depend on callers holding
// any lock.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// Ensure PostgresTaskStore implements task.Store.
var _ task.Store = (*PostgresTaskStore)(nil)

const taskColumns = `id, entity_id, kind, status, attempt_count, progress,
	claimed_at, claim_owner, visible_after, last_error, created_at, updated_at`

// CreateTask persists a new task record.
func (s *PostgresTaskStore) CreateTask(ctx context.Context, rec *task.Record) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (id, entity_id, kind, status, attempt_count, progress,
			claimed_at, claim_owner, visible_after, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		nullUUID(rec.EntityID),
		rec.Kind,
		rec.Status,
		rec.AttemptCount,
		rec.Progress,
		rec.ClaimedAt,
		nullString(rec.ClaimOwner),
		rec.VisibleAfter,
		nullString(rec.LastError),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		log.Error("failed to create task",
			"task_id", rec.ID,
			"kind", rec.Kind,
			"error", err)
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetTask retrieves a task record by ID.
func (s *PostgresTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*task.Record, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	rec, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return rec, nil
}

// GetActiveTaskForEntity returns the pending or processing task for an
// entity, if one exists. A partial unique index enforces at most one.
func (s *PostgresTaskStore) GetActiveTaskForEntity(ctx context.Context, entityID uuid.UUID) (*task.Record, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE entity_id = $1 AND status IN ('pending', 'processing')
		LIMIT 1
	`

	rec, err := scanTask(s.db.QueryRowContext(ctx, query, entityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get active task for entity: %w", err)
	}
	return rec, nil
}

// ClaimTask atomically transitions a pending, visible task to processing.
// The status check in the WHERE clause is the claim CAS: a concurrent worker
// that already claimed the row makes this update match zero rows, which is
// reported as store.ErrConflict.
func (s *PostgresTaskStore) ClaimTask(ctx context.Context, id uuid.UUID, owner string) (*task.Record, error) {
	query := `
		UPDATE tasks
		SET status = 'processing', claimed_at = $1, claim_owner = $2, updated_at = $1
		WHERE id = $3 AND status = 'pending' AND visible_after <= $1
		RETURNING ` + taskColumns

	now := time.Now().UTC()

	rec, err := scanTask(s.db.QueryRowContext(ctx, query, now, owner, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the task does not exist or it is not claimable;
			// distinguish for the caller's logs.
			if _, getErr := s.GetTask(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return rec, nil
}

// CompleteTask finalizes a processing task as completed.
func (s *PostgresTaskStore) CompleteTask(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tasks
		SET status = 'completed', progress = 100, claimed_at = NULL,
			claim_owner = NULL, updated_at = $1
		WHERE id = $2 AND status = 'processing'
	`

	return s.execExpectingRow(ctx, query, time.Now().UTC(), id)
}

// FailTask finalizes a processing task as failed with the given attempt
// count and error. The status guard keeps a lagging caller, such as the
// reaper sweeping a claim a worker just finished, from flipping a terminal
// record; losing that race is reported as store.ErrConflict.
func (s *PostgresTaskStore) FailTask(ctx context.Context, id uuid.UUID, attemptCount int, errMsg string) error {
	query := `
		UPDATE tasks
		SET status = 'failed', attempt_count = $1, last_error = $2,
			claimed_at = NULL, claim_owner = NULL, updated_at = $3
		WHERE id = $4 AND status = 'processing'
	`

	result, err := s.db.ExecContext(ctx, query, attemptCount, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetTask(ctx, id); getErr != nil {
			return getErr
		}
		return store.ErrConflict
	}

	return nil
}

// RequeueTask reverts a task to pending with an updated visibility time,
// attempt count, and progress floor.
func (s *PostgresTaskStore) RequeueTask(
	ctx context.Context,
	id uuid.UUID,
	visibleAfter time.Time,
	attemptCount, progress int,
	lastError string,
) error {
	query := `
		UPDATE tasks
		SET status = 'pending', visible_after = $1, attempt_count = $2,
			progress = $3, last_error = $4, claimed_at = NULL,
			claim_owner = NULL, updated_at = $5
		WHERE id = $6
	`

	return s.execExpectingRow(ctx, query,
		visibleAfter, attemptCount, progress, nullString(lastError), time.Now().UTC(), id)
}

// UpdateProgress records a progress checkpoint for a processing task.
func (s *PostgresTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE tasks
		SET progress = $1, updated_at = $2
		WHERE id = $3 AND status = 'processing'
	`

	return s.execExpectingRow(ctx, query, progress, time.Now().UTC(), id)
}

// GetDueTasks returns pending tasks whose visibility time has passed,
// oldest first.
func (s *PostgresTaskStore) GetDueTasks(ctx context.Context, limit int) ([]*task.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = 'pending' AND visible_after <= $1
		ORDER BY visible_after ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// GetStaleTasks returns processing tasks whose claim is older than the
// given age.
func (s *PostgresTaskStore) GetStaleTasks(ctx context.Context, olderThan time.Duration) ([]*task.Record, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = 'processing' AND claimed_at < $1
		ORDER BY claimed_at ASC
	`

	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// ResetForReprocess reverts a failed task to pending with a fresh retry
// budget. The status check makes the reset a CAS: only failed tasks can be
// reset, and a concurrent reset or resubmission loses cleanly.
func (s *PostgresTaskStore) ResetForReprocess(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tasks
		SET status = 'pending', attempt_count = 0, progress = 0,
			last_error = NULL, visible_after = $1, claimed_at = NULL,
			claim_owner = NULL, updated_at = $1
		WHERE id = $2 AND status = 'failed'
	`

	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return fmt.Errorf("failed to reset task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetTask(ctx, id); getErr != nil {
			return getErr
		}
		return store.ErrConflict
	}

	return nil
}

// execExpectingRow runs an update that must touch exactly one row and maps
// a zero-row result to the task-not-found error.
func (s *PostgresTaskStore) execExpectingRow(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Record, error) {
	var (
		rec        task.Record
		entityID   sql.Null[uuid.UUID]
		claimedAt  sql.NullTime
		claimOwner sql.NullString
		lastError  sql.NullString
	)

	err := row.Scan(
		&rec.ID,
		&entityID,
		&rec.Kind,
		&rec.Status,
		&rec.AttemptCount,
		&rec.Progress,
		&claimedAt,
		&claimOwner,
		&rec.VisibleAfter,
		&lastError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entityID.Valid {
		rec.EntityID = entityID.V
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		rec.ClaimedAt = &t
	}
	rec.ClaimOwner = claimOwner.String
	rec.LastError = lastError.String

	return &rec, nil
}

func scanTasks(rows *sql.Rows) ([]*task.Record, error) {
	var recs []*task.Record
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return recs, nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
