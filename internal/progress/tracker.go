package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/events"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// Tracker maintains per-job stage and progress state. Every emit
// atomically updates the durable job record, publishes to the
// notification channel and appends to the per-job history ring.
//
// Published percentages are monotonically non-decreasing for a job: the
// cache check runs concurrently with extraction and may report out of
// order, so lower percentages are clamped to the job's high-water mark.
type Tracker struct {
	jobs      store.JobStore
	publisher events.Publisher
	history   *events.History
	logger    *slog.Logger
}

// NewTracker creates a progress Tracker. history may be nil, in which
// case no catch-up history is recorded.
func NewTracker(
	jobs store.JobStore,
	publisher events.Publisher,
	history *events.History,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		jobs:      jobs,
		publisher: publisher,
		history:   history,
		logger:    logger.With("component", "progress_tracker"),
	}
}

// Progress records that the job has reached the given stage and
// publishes a progress event. Store failures are logged and the event is
// still published; progress reporting must never fail a job.
func (t *Tracker) Progress(
	ctx context.Context,
	job *domain.JobRecord,
	stage domain.Stage,
	message string,
	metadata map[string]any,
) {
	percent := stage.Percent()
	if percent < job.Progress {
		percent = job.Progress
	}

	job.Stage = stage
	job.Progress = percent
	job.UpdatedAt = time.Now().UTC()

	if err := t.jobs.UpdateProgress(ctx, job.ID, stage, percent); err != nil {
		t.logger.Warn("failed to persist progress update",
			"job_id", job.ID,
			"stage", stage,
			"error", err)
	}

	t.emit(ctx, events.Event{
		Type:          events.TypeProgress,
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		OwnerUserID:   job.OwnerUserID,
		Stage:         stage,
		Percent:       percent,
		Message:       message,
		Metadata:      metadata,
		Timestamp:     time.Now().UTC(),
	})
}

// Completed transitions the job to its terminal completed state and
// publishes the canonical completed event carrying the artifact
// identifiers. It is idempotent: a job that is already terminal emits
// nothing, which guarantees exactly one completion notification per
// logical request.
func (t *Tracker) Completed(
	ctx context.Context,
	job *domain.JobRecord,
	result events.CompletionResult,
) {
	if job.Terminal() {
		t.logger.Debug("suppressing duplicate terminal event",
			"job_id", job.ID,
			"status", job.Status)
		return
	}

	if err := job.TransitionTo(domain.JobStatusCompleted); err != nil {
		t.logger.Warn("refusing invalid completion transition",
			"job_id", job.ID,
			"error", err)
		return
	}
	job.Stage = domain.StageCompleted
	job.Progress = domain.StageCompleted.Percent()

	if err := t.jobs.Upsert(ctx, job); err != nil {
		t.logger.Error("failed to persist completed job",
			"job_id", job.ID,
			"error", err)
	}

	t.emit(ctx, events.Event{
		Type:          events.TypeCompleted,
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		OwnerUserID:   job.OwnerUserID,
		Stage:         domain.StageCompleted,
		Percent:       domain.StageCompleted.Percent(),
		Result:        &result,
		Timestamp:     time.Now().UTC(),
	})
}

// Failed transitions the job to its terminal failed state and publishes
// a failed event with the structured failure detail. Idempotent in the
// same way as Completed.
func (t *Tracker) Failed(
	ctx context.Context,
	job *domain.JobRecord,
	code string,
	message string,
	recoverable bool,
) {
	if job.Terminal() {
		t.logger.Debug("suppressing duplicate terminal event",
			"job_id", job.ID,
			"status", job.Status)
		return
	}

	if err := job.TransitionTo(domain.JobStatusFailed); err != nil {
		t.logger.Warn("refusing invalid failure transition",
			"job_id", job.ID,
			"error", err)
		return
	}
	job.Stage = domain.StageFailed
	job.FailureReason = message

	if err := t.jobs.Upsert(ctx, job); err != nil {
		t.logger.Error("failed to persist failed job",
			"job_id", job.ID,
			"error", err)
	}

	t.emit(ctx, events.Event{
		Type:          events.TypeFailed,
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		OwnerUserID:   job.OwnerUserID,
		Stage:         domain.StageFailed,
		Percent:       job.Progress,
		Message:       message,
		Failure: &events.FailureDetail{
			Message:     message,
			Code:        code,
			Recoverable: recoverable,
		},
		Timestamp: time.Now().UTC(),
	})
}

func (t *Tracker) emit(ctx context.Context, event events.Event) {
	t.publisher.Publish(event)
	if t.history != nil {
		t.history.Append(ctx, event)
	}
}
