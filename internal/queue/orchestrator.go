package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/studybuddy/studybuddy-api/internal/cache"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/progress"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// Payload is implemented by the per-stage payload variants. Each variant
// validates itself independently before enqueue.
type Payload interface {
	Validate() error
}

// Request describes a job to enqueue.
type Request struct {
	// Queue names the target queue; it must be one of the queues the
	// orchestrator was configured with.
	Queue string

	// JobID, when set, fixes the new job's ID. The coordinator uses this
	// to register the in-flight lock before the job record exists.
	JobID uuid.UUID

	// CorrelationID ties all stage jobs of one logical submission
	// together.
	CorrelationID uuid.UUID

	// OwnerUserID is the submitting user.
	OwnerUserID uuid.UUID

	// Payload is the stage-specific payload; it is validated and
	// serialized into the job record.
	Payload Payload

	// Priority orders dispatch within the queue; higher runs first.
	Priority int

	// MaxAttempts overrides the queue's retry budget when positive.
	MaxAttempts int
}

// Config holds orchestrator tuning.
type Config struct {
	// Queues lists the queue names to create.
	Queues []string

	// Retry is the default retry policy for all queues.
	Retry RetryPolicy

	// StalledCheckInterval is how often active jobs are checked against
	// their processing locks. Defaults to 30s.
	StalledCheckInterval time.Duration

	// RetentionInterval is how often terminal records are swept.
	// Defaults to 10 minutes.
	RetentionInterval time.Duration

	// CompletedRetention and FailedRetention bound how long terminal
	// records are kept.
	CompletedRetention time.Duration
	FailedRetention    time.Duration
}

// DefaultConfig returns a Config with the standard pipeline queues and
// retention windows.
func DefaultConfig() Config {
	return Config{
		Queues: []string{
			domain.QueueDownload,
			domain.QueueExtract,
			domain.QueueGenerate,
			domain.QueueSave,
			domain.QueueFinalize,
		},
		Retry:                DefaultRetryPolicy(),
		StalledCheckInterval: 30 * time.Second,
		RetentionInterval:    10 * time.Minute,
		CompletedRetention:   time.Hour,
		FailedRetention:      24 * time.Hour,
	}
}

// Orchestrator owns the named queues and the authoritative job records.
// It enqueues work with priority and retry policy, requeues stalled
// jobs, recovers unfinished jobs on startup and sweeps terminal records.
type Orchestrator struct {
	jobs    store.JobStore
	locks   *cache.ProcessingLocks
	tracker *progress.Tracker
	config  Config
	queues  map[string]*namedQueue

	// terminalFailure, when set, runs after a job fails terminally. The
	// pipeline coordinator uses it to release the in-flight lock for the
	// job's source entity.
	terminalFailure func(ctx context.Context, job *domain.JobRecord)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given job store,
// processing locks and progress tracker.
func NewOrchestrator(
	jobs store.JobStore,
	locks *cache.ProcessingLocks,
	tracker *progress.Tracker,
	config Config,
	logger *slog.Logger,
) *Orchestrator {
	if config.StalledCheckInterval <= 0 {
		config.StalledCheckInterval = 30 * time.Second
	}
	if config.RetentionInterval <= 0 {
		config.RetentionInterval = 10 * time.Minute
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRetryPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())

	queues := make(map[string]*namedQueue, len(config.Queues))
	for _, name := range config.Queues {
		queues[name] = newNamedQueue()
	}

	return &Orchestrator{
		jobs:    jobs,
		locks:   locks,
		tracker: tracker,
		config:  config,
		queues:  queues,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With("component", "orchestrator"),
	}
}

// SetTerminalFailureHandler registers a callback invoked after a job
// fails terminally, before the failed event is published to late
// observers. Must be called before Start.
func (o *Orchestrator) SetTerminalFailureHandler(fn func(ctx context.Context, job *domain.JobRecord)) {
	o.terminalFailure = fn
}

// Enqueue validates the payload, persists the initial job record and
// pushes the job onto the named queue.
func (o *Orchestrator) Enqueue(ctx context.Context, req Request) (uuid.UUID, error) {
	q, ok := o.queues[req.Queue]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: unknown queue %q", ErrValidation, req.Queue)
	}

	if req.Payload == nil {
		return uuid.Nil, fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if err := req.Payload.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	raw, err := json.Marshal(req.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: failed to serialize payload: %v", ErrValidation, err)
	}

	job, err := domain.NewJobRecord(req.Queue, req.CorrelationID, req.OwnerUserID, raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.JobID != uuid.Nil {
		job.ID = req.JobID
	}
	job.Priority = req.Priority
	job.MaxAttempts = req.MaxAttempts
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = o.config.Retry.MaxAttempts
	}

	if err := o.jobs.Upsert(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist job record: %w", err)
	}

	q.Push(job)

	o.logger.Debug("job enqueued",
		"job_id", job.ID,
		"queue", req.Queue,
		"priority", job.Priority,
		"correlation_id", job.CorrelationID)

	return job.ID, nil
}

// Dequeue blocks until a job is available on the named queue.
func (o *Orchestrator) Dequeue(ctx context.Context, queue string) (*domain.JobRecord, error) {
	q, ok := o.queues[queue]
	if !ok {
		return nil, fmt.Errorf("%w: unknown queue %q", ErrValidation, queue)
	}
	return q.Dequeue(ctx)
}

// MarkActive transitions a dispatched job to active and consumes one
// attempt.
func (o *Orchestrator) MarkActive(ctx context.Context, job *domain.JobRecord) error {
	job.AttemptCount++
	if err := job.TransitionTo(domain.JobStatusActive); err != nil {
		return err
	}
	if err := o.jobs.Upsert(ctx, job); err != nil {
		return fmt.Errorf("failed to persist active status: %w", err)
	}
	return nil
}

// Advance moves a job to its next pipeline stage. The same record is
// reused across queues so one job ID tracks the whole submission; the
// retry budget resets because each stage gets its own attempts.
func (o *Orchestrator) Advance(ctx context.Context, job *domain.JobRecord, queue string, payload Payload) error {
	q, ok := o.queues[queue]
	if !ok {
		return fmt.Errorf("%w: unknown queue %q", ErrValidation, queue)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize payload: %v", ErrValidation, err)
	}

	job.Queue = queue
	job.Payload = raw
	job.Status = domain.JobStatusQueued
	job.AttemptCount = 0
	job.FailureReason = ""
	job.UpdatedAt = time.Now().UTC()

	if err := o.jobs.Upsert(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job advance: %w", err)
	}

	// The previous stage's worker still reads this record after the
	// handler returns; the next queue gets its own copy.
	q.Push(job.Clone())

	o.logger.Debug("job advanced",
		"job_id", job.ID,
		"queue", queue,
		"correlation_id", job.CorrelationID)

	return nil
}

// Complete marks a stage job as completed. The pipeline-level completed
// event is emitted only by the finalize handler; stage completion is
// bookkeeping on the job record.
func (o *Orchestrator) Complete(ctx context.Context, job *domain.JobRecord) {
	if job.Terminal() {
		return
	}
	if err := job.TransitionTo(domain.JobStatusCompleted); err != nil {
		o.logger.Warn("invalid completion transition",
			"job_id", job.ID,
			"error", err)
		return
	}
	if err := o.jobs.Upsert(ctx, job); err != nil {
		o.logger.Error("failed to persist completed job",
			"job_id", job.ID,
			"error", err)
	}
}

// HandleFailure classifies a handler error and either schedules a retry
// with backoff or fails the job terminally with a failed event.
func (o *Orchestrator) HandleFailure(ctx context.Context, job *domain.JobRecord, handlerErr error) {
	logger := o.logger.With(
		"job_id", job.ID,
		"queue", job.Queue,
		"attempt", job.AttemptCount,
		"max_attempts", job.MaxAttempts,
	)

	if !Retryable(handlerErr) {
		logger.Error("job failed with fatal error", "error", handlerErr)
		o.failTerminally(ctx, job, handlerErr)
		return
	}

	if job.AttemptCount >= job.MaxAttempts {
		logger.Error("job failed after exhausting retries", "error", handlerErr)
		exhausted := fmt.Errorf("%w: %v", ErrExhaustedRetries, handlerErr)
		o.failTerminally(ctx, job, exhausted)
		return
	}

	delay := o.config.Retry.Delay(job.AttemptCount)
	logger.Warn("job failed, scheduling retry",
		"error", handlerErr,
		"retry_delay", delay)

	job.Status = domain.JobStatusQueued
	job.FailureReason = handlerErr.Error()
	job.UpdatedAt = time.Now().UTC()
	if err := o.jobs.Upsert(ctx, job); err != nil {
		logger.Error("failed to persist queued status for retry", "error", err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case <-o.ctx.Done():
		case <-time.After(delay):
			if q, ok := o.queues[job.Queue]; ok {
				q.Push(job)
			}
		}
	}()
}

// failTerminally persists the terminal failure, emits the failed event
// and runs the terminal failure hook.
func (o *Orchestrator) failTerminally(ctx context.Context, job *domain.JobRecord, cause error) {
	o.tracker.Failed(ctx, job, FailureCode(cause), cause.Error(), Recoverable(cause))
	if o.terminalFailure != nil {
		o.terminalFailure(ctx, job)
	}
}

// GetJob returns a snapshot of the job record.
func (o *Orchestrator) GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	return o.jobs.GetByID(ctx, id)
}

// ListUserJobs returns the most recent jobs owned by the user.
func (o *Orchestrator) ListUserJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.JobRecord, error) {
	return o.jobs.ListByUser(ctx, userID, limit)
}

// ListQueueJobs returns the most recent jobs on the named queue.
func (o *Orchestrator) ListQueueJobs(ctx context.Context, queue string, limit int) ([]*domain.JobRecord, error) {
	return o.jobs.ListByQueue(ctx, queue, limit)
}

// Pause stops dispatch on the named queue without aborting in-flight
// jobs.
func (o *Orchestrator) Pause(queue string) {
	if q, ok := o.queues[queue]; ok {
		q.Pause()
		o.logger.Info("queue paused", "queue", queue)
	}
}

// Resume re-enables dispatch on the named queue.
func (o *Orchestrator) Resume(queue string) {
	if q, ok := o.queues[queue]; ok {
		q.Resume()
		o.logger.Info("queue resumed", "queue", queue)
	}
}

// Start recovers unfinished jobs and launches the stalled-job monitor
// and the retention sweeper.
func (o *Orchestrator) Start() error {
	if err := o.recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	o.wg.Add(2)
	go o.stalledMonitor()
	go o.retentionSweeper()

	return nil
}

// Stop shuts the orchestrator down, closing all queues and waiting for
// background goroutines.
func (o *Orchestrator) Stop() {
	o.cancel()
	for _, q := range o.queues {
		q.Close()
	}
	o.wg.Wait()
}

// recover requeues jobs left queued or active by a previous run.
func (o *Orchestrator) recover() error {
	ctx := context.Background()

	queued, err := o.jobs.ListByStatus(ctx, domain.JobStatusQueued, 0)
	if err != nil {
		return fmt.Errorf("failed to list queued jobs: %w", err)
	}

	active, err := o.jobs.ListByStatus(ctx, domain.JobStatusActive, 0)
	if err != nil {
		return fmt.Errorf("failed to list active jobs: %w", err)
	}

	o.logger.Info("recovering unfinished jobs",
		"queued_count", len(queued),
		"active_count", len(active))

	for _, job := range queued {
		if q, ok := o.queues[job.Queue]; ok {
			q.Push(job)
		}
	}

	for _, job := range active {
		job.Status = domain.JobStatusQueued
		job.UpdatedAt = time.Now().UTC()
		if err := o.jobs.Upsert(ctx, job); err != nil {
			o.logger.Error("failed to reset active job during recovery",
				"job_id", job.ID,
				"error", err)
			continue
		}
		if q, ok := o.queues[job.Queue]; ok {
			q.Push(job)
		}
	}

	return nil
}

// stalledMonitor periodically requeues active jobs whose worker stopped
// renewing its processing lock.
func (o *Orchestrator) stalledMonitor() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.StalledCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.requeueStalled()
		}
	}
}

func (o *Orchestrator) requeueStalled() {
	ctx := context.Background()

	active, err := o.jobs.ListByStatus(ctx, domain.JobStatusActive, o.locks.TTL())
	if err != nil {
		o.logger.Error("failed to check for stalled jobs", "error", err)
		return
	}

	for _, job := range active {
		if o.locks.Held(ctx, job.ID, job.Queue) {
			continue
		}

		o.logger.Warn("detected stalled job",
			"job_id", job.ID,
			"queue", job.Queue,
			"attempt", job.AttemptCount)

		job.Status = domain.JobStatusStalled
		job.UpdatedAt = time.Now().UTC()
		if err := o.jobs.Upsert(ctx, job); err != nil {
			o.logger.Error("failed to mark job stalled",
				"job_id", job.ID,
				"error", err)
			continue
		}

		o.HandleFailure(ctx, job, ErrStalled)
	}
}

// retentionSweeper deletes terminal records past their retention window
// to cap storage growth.
func (o *Orchestrator) retentionSweeper() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			ctx := context.Background()
			now := time.Now().UTC()
			removed, err := o.jobs.DeleteTerminalBefore(
				ctx,
				now.Add(-o.config.CompletedRetention),
				now.Add(-o.config.FailedRetention),
			)
			if err != nil {
				o.logger.Error("retention sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				o.logger.Info("swept terminal job records", "removed", removed)
			}
		}
	}
}
