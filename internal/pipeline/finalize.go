package pipeline

import (
	"context"
	"time"

	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/events"
	"github.com/studybuddy/studybuddy-api/internal/platform/logger"
)

// HandleFinalize settles a pipeline run: it materializes cached
// artifacts on the cache-hit path, releases the entity's in-flight
// lock, clears staged data and emits the run's single completed event.
func (c *Coordinator) HandleFinalize(ctx context.Context, job *domain.JobRecord) error {
	var p FinalizePayload
	if err := unmarshalPayload(job.Payload, &p); err != nil {
		return err
	}

	noteID, quizID := p.NoteID, p.QuizID

	if p.CacheHit {
		artifact, ok := c.artifacts.Get(ctx, p.ContentHash)
		if !ok {
			// The artifact expired between the cache check and finalize.
			// Fall back to the full generation path; the staged bytes are
			// still there or re-derivable.
			logger.FromContextOrDefault(ctx, c.logger).Warn(
				"cached artifact vanished before finalize, generating instead",
				"content_hash", p.ContentHash)
			return c.orch.Advance(ctx, job, domain.QueueExtract, ExtractPayload{
				RunRef:      p.RunRef,
				ContentHash: p.ContentHash,
			})
		}

		c.tracker.Progress(ctx, job, domain.StageCacheHit,
			"reusing previously generated material", nil)

		var err error
		noteID, quizID, err = c.persistArtifact(ctx, p.RunRef, artifact)
		if err != nil {
			return err
		}
	}

	c.inflight.Release(ctx, p.EntityID)
	c.staging.Clear(ctx, p.CorrelationID)

	c.tracker.Completed(ctx, job, events.CompletionResult{
		NoteID:           noteID,
		QuizID:           quizID,
		CacheHit:         p.CacheHit,
		ProcessingMillis: time.Since(job.CreatedAt).Milliseconds(),
	})

	return nil
}
