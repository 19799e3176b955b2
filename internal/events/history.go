package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// History retention defaults. The per-job ring is bounded both in length
// and in age; it exists for late subscribers, not as a system of record.
const (
	DefaultHistoryCap = 50
	DefaultHistoryTTL = time.Hour
)

// History keeps a bounded, TTL'd ring of recent events per job in redis
// so that a subscriber who connects mid-run can catch up. Writes are
// best-effort: failures are logged and never surface to the pipeline.
type History struct {
	rc     *redis.Client
	cap    int
	ttl    time.Duration
	logger *slog.Logger
}

// NewHistory creates an event History on the given redis client.
func NewHistory(rc *redis.Client, capacity int, ttl time.Duration, logger *slog.Logger) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &History{
		rc:     rc,
		cap:    capacity,
		ttl:    ttl,
		logger: logger.With("component", "event_history"),
	}
}

// Append adds the event to the job's history ring, trimming to capacity
// and refreshing the TTL.
func (h *History) Append(ctx context.Context, event Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to marshal event for history",
			"job_id", event.JobID,
			"error", err)
		return
	}

	key := historyKey(event.JobID)
	pipe := h.rc.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, int64(h.cap-1))
	pipe.Expire(ctx, key, h.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		h.logger.Warn("failed to append event to history",
			"job_id", event.JobID,
			"error", err)
	}
}

// Recent returns the job's recorded events, newest first. Backend errors
// yield an empty slice; consumers fall back to polling the job record.
func (h *History) Recent(ctx context.Context, jobID uuid.UUID) []Event {
	raws, err := h.rc.LRange(ctx, historyKey(jobID), 0, int64(h.cap-1)).Result()
	if err != nil {
		h.logger.Warn("failed to read event history",
			"job_id", jobID,
			"error", err)
		return nil
	}

	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			h.logger.Warn("skipping malformed event in history",
				"job_id", jobID,
				"error", err)
			continue
		}
		events = append(events, event)
	}
	return events
}

func historyKey(jobID uuid.UUID) string {
	return "events:" + jobID.String()
}
