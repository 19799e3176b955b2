package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultProcessingLockTTL is how long a worker's claim on a job lasts
// without renewal. Workers renew at half the TTL; a lock that expires
// marks the job as stalled and eligible for requeue.
const DefaultProcessingLockTTL = time.Minute

// ProcessingLocks tracks which jobs are actively held by a worker. The
// lock plus its renewal loop is the stalled-job detector: a crashed or
// wedged worker stops renewing, the lock expires, and the orchestrator's
// monitor requeues the job.
type ProcessingLocks struct {
	rc     *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewProcessingLocks creates a ProcessingLocks on the given redis client.
// A non-positive ttl falls back to DefaultProcessingLockTTL.
func NewProcessingLocks(rc *redis.Client, ttl time.Duration, logger *slog.Logger) *ProcessingLocks {
	if ttl <= 0 {
		ttl = DefaultProcessingLockTTL
	}
	return &ProcessingLocks{
		rc:     rc,
		ttl:    ttl,
		logger: logger.With("component", "processing_locks"),
	}
}

// TTL returns the configured lock duration.
func (l *ProcessingLocks) TTL() time.Duration {
	return l.ttl
}

// Acquire claims the job for a worker. Returns false if another worker
// already holds the claim. Backend errors grant the claim so that a
// redis outage cannot halt processing.
func (l *ProcessingLocks) Acquire(ctx context.Context, jobID uuid.UUID, queue, workerID string) bool {
	ok, err := l.rc.SetNX(ctx, processingKey(jobID, queue), workerID, l.ttl).Result()
	if err != nil {
		l.logger.Warn("processing lock backend unavailable, granting claim",
			"job_id", jobID,
			"worker_id", workerID,
			"error", err)
		return true
	}
	return ok
}

// Renew extends the worker's claim. Called well before expiry (at half
// the TTL) to avoid false-positive stalled detection under transient
// slowness. Renewal failures are logged; the TTL then decides.
func (l *ProcessingLocks) Renew(ctx context.Context, jobID uuid.UUID, queue string) {
	if err := l.rc.Expire(ctx, processingKey(jobID, queue), l.ttl).Err(); err != nil {
		l.logger.Warn("failed to renew processing lock",
			"job_id", jobID,
			"error", err)
	}
}

// Release drops the worker's claim. Idempotent.
func (l *ProcessingLocks) Release(ctx context.Context, jobID uuid.UUID, queue string) {
	if err := l.rc.Del(ctx, processingKey(jobID, queue)).Err(); err != nil {
		l.logger.Warn("failed to release processing lock, TTL will reap it",
			"job_id", jobID,
			"error", err)
	}
}

// Held reports whether any worker currently holds a claim on the job.
// On backend errors it reports true, which keeps the stalled-job monitor
// from requeueing work it cannot verify.
func (l *ProcessingLocks) Held(ctx context.Context, jobID uuid.UUID, queue string) bool {
	n, err := l.rc.Exists(ctx, processingKey(jobID, queue)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("failed to check processing lock, assuming held",
			"job_id", jobID,
			"error", err)
		return true
	}
	return n > 0
}

// Lock keys include the queue so a job advancing to its next pipeline
// stage never collides with the claim the previous stage still holds.
func processingKey(jobID uuid.UUID, queue string) string {
	return "joblock:" + jobID.String() + ":" + queue
}
