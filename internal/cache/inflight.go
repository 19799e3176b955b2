package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultInFlightTTL bounds how long an in-flight marker can outlive a
// job that failed to release it. The TTL is the self-healing path; the
// normal path is an explicit release on the job's terminal transition.
const DefaultInFlightTTL = 10 * time.Minute

// InFlightLocks tracks which source entities currently have a pipeline
// run in progress. A second submission for the same entity joins the
// existing job instead of starting a duplicate generation.
//
// Lock acquisition is atomic (SET NX). Backend errors are advisory: the
// caller proceeds without deduplication rather than failing the
// submission.
type InFlightLocks struct {
	rc     *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewInFlightLocks creates an InFlightLocks on the given redis client.
// A non-positive ttl falls back to DefaultInFlightTTL.
func NewInFlightLocks(rc *redis.Client, ttl time.Duration, logger *slog.Logger) *InFlightLocks {
	if ttl <= 0 {
		ttl = DefaultInFlightTTL
	}
	return &InFlightLocks{
		rc:     rc,
		ttl:    ttl,
		logger: logger.With("component", "inflight_locks"),
	}
}

// Acquire registers jobID as the owner of the entity's in-flight lock.
// If another job already holds the lock, Acquire returns that job's ID
// and acquired=false so the caller can join it. On backend errors it
// reports acquired=true with no existing job, i.e. no deduplication.
func (l *InFlightLocks) Acquire(
	ctx context.Context,
	entityID uuid.UUID,
	jobID uuid.UUID,
) (existing uuid.UUID, acquired bool) {
	key := inflightKey(entityID)

	ok, err := l.rc.SetNX(ctx, key, jobID.String(), l.ttl).Result()
	if err != nil {
		l.logger.Warn("in-flight lock backend unavailable, proceeding without dedup",
			"entity_id", entityID,
			"error", err)
		return uuid.Nil, true
	}
	if ok {
		return uuid.Nil, true
	}

	raw, err := l.rc.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logger.Warn("failed to read in-flight lock owner, proceeding without dedup",
				"entity_id", entityID,
				"error", err)
		}
		// Lock vanished between SetNX and Get; the previous run just
		// finished, so this submission proceeds as a fresh job.
		return uuid.Nil, true
	}

	owner, err := uuid.Parse(raw)
	if err != nil {
		l.logger.Warn("in-flight lock holds malformed job ID, proceeding without dedup",
			"entity_id", entityID,
			"value", raw)
		return uuid.Nil, true
	}

	return owner, false
}

// Release removes the entity's in-flight lock. It is idempotent and is
// invoked on every terminal transition; a missed release self-heals via
// the TTL.
func (l *InFlightLocks) Release(ctx context.Context, entityID uuid.UUID) {
	if err := l.rc.Del(ctx, inflightKey(entityID)).Err(); err != nil {
		l.logger.Warn("failed to release in-flight lock, TTL will reap it",
			"entity_id", entityID,
			"error", err)
	}
}

func inflightKey(entityID uuid.UUID) string {
	return "inflight:" + entityID.String()
}
