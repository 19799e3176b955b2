package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a pipeline job.
type JobStatus string

// Possible job status values
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusStalled   JobStatus = "stalled"
)

// Queue names for the fixed pipeline stages. Each stage runs on its own
// queue so that every transition is independently durable and retryable.
const (
	QueueDownload = "download"
	QueueExtract  = "extract"
	QueueGenerate = "generate"
	QueueSave     = "save"
	QueueFinalize = "finalize"
)

// Common validation errors for JobRecord
var (
	ErrEmptyJobID        = errors.New("job ID cannot be empty")
	ErrEmptyJobQueue     = errors.New("job queue cannot be empty")
	ErrEmptyJobOwner     = errors.New("job owner user ID cannot be empty")
	ErrInvalidJobStatus  = errors.New("invalid job status")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobRecord is the authoritative, durable record of a single pipeline job.
// It is created on enqueue and mutated only by the worker currently holding
// the job's processing lock. Once the status reaches completed or failed the
// record is terminal.
type JobRecord struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Queue         string          `json:"queue"`
	Status        JobStatus       `json:"status"`
	Stage         Stage           `json:"stage"`
	Progress      int             `json:"progress"`
	AttemptCount  int             `json:"attempt_count"`
	MaxAttempts   int             `json:"max_attempts"`
	Priority      int             `json:"priority"`
	Payload       json.RawMessage `json:"payload"`
	FailureReason string          `json:"failure_reason,omitempty"`
	OwnerUserID   uuid.UUID       `json:"owner_user_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
}

// NewJobRecord creates a new JobRecord in the queued state for the given
// queue and payload. The correlation ID ties together all stage jobs that
// belong to one logical submission.
func NewJobRecord(
	queue string,
	correlationID uuid.UUID,
	ownerUserID uuid.UUID,
	payload json.RawMessage,
) (*JobRecord, error) {
	now := time.Now().UTC()
	job := &JobRecord{
		ID:            uuid.New(),
		CorrelationID: correlationID,
		Queue:         queue,
		Status:        JobStatusQueued,
		Stage:         StageInitializing,
		Progress:      StageInitializing.Percent(),
		Payload:       payload,
		OwnerUserID:   ownerUserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the JobRecord has valid data.
func (j *JobRecord) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.Queue == "" {
		return ErrEmptyJobQueue
	}

	if j.OwnerUserID == uuid.Nil {
		return ErrEmptyJobOwner
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	return nil
}

// Terminal reports whether the job has reached a final status.
func (j *JobRecord) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Clone returns a deep copy of the record. Stage handoffs pass clones
// so that no two workers ever share a mutable record.
func (j *JobRecord) Clone() *JobRecord {
	clone := *j
	clone.Payload = append(json.RawMessage(nil), j.Payload...)
	if j.FinishedAt != nil {
		finishedAt := *j.FinishedAt
		clone.FinishedAt = &finishedAt
	}
	if j.FailedAt != nil {
		failedAt := *j.FailedAt
		clone.FailedAt = &failedAt
	}
	return &clone
}

// TransitionTo moves the job to the given status, enforcing monotonic
// transitions: a terminal job never changes status again, and percent
// bookkeeping for terminal states is handled here.
func (j *JobRecord) TransitionTo(status JobStatus) error {
	if !isValidJobStatus(status) {
		return ErrInvalidJobStatus
	}

	if j.Terminal() {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	j.Status = status
	j.UpdatedAt = now

	switch status {
	case JobStatusCompleted:
		j.FinishedAt = &now
	case JobStatusFailed:
		j.FailedAt = &now
	}

	return nil
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusQueued, JobStatusActive, JobStatusCompleted,
		JobStatusFailed, JobStatusStalled:
		return true
	default:
		return false
	}
}
