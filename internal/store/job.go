package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/studybuddy/studybuddy-api/internal/domain"
)

// JobStore defines the interface for durable job record persistence.
// Version: 1.0
type JobStore interface {
	// Upsert saves a job record using create-if-absent-else-update
	// semantics keyed by the job ID. Upsert tolerates out-of-order
	// record creation versus status updates.
	Upsert(ctx context.Context, job *domain.JobRecord) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)

	// UpdateStatus updates the status, failure reason and attempt count of
	// an existing job. Returns ErrJobNotFound if the job does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, reason string) error

	// UpdateProgress updates the pipeline stage and progress percentage of
	// an existing job.
	UpdateProgress(ctx context.Context, id uuid.UUID, stage domain.Stage, progress int) error

	// ListByUser retrieves the most recent jobs owned by the given user.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.JobRecord, error)

	// ListByQueue retrieves the most recent jobs on the given queue.
	ListByQueue(ctx context.Context, queue string, limit int) ([]*domain.JobRecord, error)

	// ListByStatus retrieves jobs with the given status. If olderThan is
	// non-zero, only jobs last updated before now-olderThan are returned.
	ListByStatus(ctx context.Context, status domain.JobStatus, olderThan time.Duration) ([]*domain.JobRecord, error)

	// DeleteTerminalBefore removes completed jobs finished before the
	// completed cutoff and failed jobs failed before the failed cutoff.
	// Returns the number of rows removed.
	DeleteTerminalBefore(ctx context.Context, completedBefore, failedBefore time.Time) (int64, error)

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) JobStore
}
