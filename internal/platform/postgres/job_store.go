package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/platform/logger"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// JobStore implements store.JobStore using PostgreSQL.
type JobStore struct {
	db store.DBTX
}

// NewJobStore creates a new PostgreSQL-backed JobStore.
func NewJobStore(db store.DBTX) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, correlation_id, queue, status, stage, progress,
	attempt_count, max_attempts, priority, payload, failure_reason,
	owner_user_id, created_at, updated_at, finished_at, failed_at`

// Upsert saves a job record with create-if-absent-else-update semantics
// keyed by the job ID, tolerating out-of-order record creation versus
// status updates.
func (s *JobStore) Upsert(ctx context.Context, job *domain.JobRecord) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			queue = EXCLUDED.queue,
			status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			progress = EXCLUDED.progress,
			attempt_count = EXCLUDED.attempt_count,
			max_attempts = EXCLUDED.max_attempts,
			priority = EXCLUDED.priority,
			payload = EXCLUDED.payload,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at,
			finished_at = EXCLUDED.finished_at,
			failed_at = EXCLUDED.failed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.CorrelationID,
		job.Queue,
		job.Status,
		job.Stage,
		job.Progress,
		job.AttemptCount,
		job.MaxAttempts,
		job.Priority,
		job.Payload,
		job.FailureReason,
		job.OwnerUserID,
		job.CreatedAt,
		job.UpdatedAt,
		job.FinishedAt,
		job.FailedAt,
	)
	if err != nil {
		log.Error("failed to upsert job record",
			"job_id", job.ID,
			"queue", job.Queue,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a job by its unique ID.
func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}
	return job, nil
}

// UpdateStatus updates the status and failure reason of an existing job.
func (s *JobStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.JobStatus,
	reason string,
) error {
	query := `
		UPDATE jobs
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, reason, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrJobNotFound
	}

	return nil
}

// UpdateProgress updates the pipeline stage and progress of an existing
// job.
func (s *JobStore) UpdateProgress(
	ctx context.Context,
	id uuid.UUID,
	stage domain.Stage,
	progress int,
) error {
	query := `
		UPDATE jobs
		SET stage = $1, progress = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, stage, progress, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrJobNotFound
	}

	return nil
}

// ListByUser retrieves the most recent jobs owned by the given user.
func (s *JobStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.JobRecord, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return s.list(ctx, query, userID, normalizeLimit(limit))
}

// ListByQueue retrieves the most recent jobs on the given queue.
func (s *JobStore) ListByQueue(
	ctx context.Context,
	queue string,
	limit int,
) ([]*domain.JobRecord, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE queue = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return s.list(ctx, query, queue, normalizeLimit(limit))
}

// ListByStatus retrieves jobs with the given status, optionally filtered
// to those last updated before now-olderThan.
func (s *JobStore) ListByStatus(
	ctx context.Context,
	status domain.JobStatus,
	olderThan time.Duration,
) ([]*domain.JobRecord, error) {
	if olderThan > 0 {
		query := `
			SELECT ` + jobColumns + `
			FROM jobs
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at ASC
		`
		return s.list(ctx, query, status, time.Now().UTC().Add(-olderThan))
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC
	`
	return s.list(ctx, query, status)
}

// DeleteTerminalBefore removes terminal records past their retention
// cutoffs and returns the number of rows removed.
func (s *JobStore) DeleteTerminalBefore(
	ctx context.Context,
	completedBefore, failedBefore time.Time,
) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE (status = $1 AND finished_at < $2)
		   OR (status = $3 AND failed_at < $4)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCompleted, completedBefore,
		domain.JobStatusFailed, failedBefore,
	)
	if err != nil {
		return 0, MapError(err)
	}

	return result.RowsAffected()
}

// WithTx returns a new JobStore that uses the provided transaction.
func (s *JobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &JobStore{db: tx}
}

func (s *JobStore) list(ctx context.Context, query string, args ...any) ([]*domain.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, MapError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return jobs, nil
}

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.JobRecord, error) {
	var job domain.JobRecord
	var failureReason sql.NullString
	var finishedAt, failedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.CorrelationID,
		&job.Queue,
		&job.Status,
		&job.Stage,
		&job.Progress,
		&job.AttemptCount,
		&job.MaxAttempts,
		&job.Priority,
		&job.Payload,
		&failureReason,
		&job.OwnerUserID,
		&job.CreatedAt,
		&job.UpdatedAt,
		&finishedAt,
		&failedAt,
	)
	if err != nil {
		return nil, err
	}

	job.FailureReason = failureReason.String
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	if failedAt.Valid {
		job.FailedAt = &failedAt.Time
	}

	return &job, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

// Ensure JobStore implements store.JobStore
var _ store.JobStore = (*JobStore)(nil)
