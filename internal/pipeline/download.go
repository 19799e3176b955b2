package pipeline

import (
	"context"
	"fmt"

	"github.com/studybuddy/studybuddy-api/internal/cache"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/platform/logger"
	"github.com/studybuddy/studybuddy-api/internal/queue"
)

// HandleDownload fetches the document bytes exactly once, stages them
// for the extract stage and checks the content cache. The cache lookup
// runs concurrently with staging; a hit skips straight to finalize.
func (c *Coordinator) HandleDownload(ctx context.Context, job *domain.JobRecord) error {
	var p DownloadPayload
	if err := unmarshalPayload(job.Payload, &p); err != nil {
		return err
	}
	log := logger.FromContextOrDefault(ctx, c.logger)

	c.tracker.Progress(ctx, job, domain.StageDownloading, "downloading document", nil)

	data, err := c.fetchSource(ctx, p.SourcePath)
	if err != nil {
		return err
	}

	hash := cache.Hash(data)

	hit := make(chan bool, 1)
	go func() {
		_, ok := c.artifacts.Get(ctx, hash)
		hit <- ok
	}()

	if err := c.staging.PutBytes(ctx, p.CorrelationID, data); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrTransientIO, err)
	}

	c.tracker.Progress(ctx, job, domain.StageCheckingCache,
		"checking for previously generated material", nil)

	if <-hit {
		log.Info("content cache hit, skipping generation",
			"content_hash", hash,
			"size_bytes", len(data))
		return c.orch.Advance(ctx, job, domain.QueueFinalize, FinalizePayload{
			RunRef:      p.RunRef,
			ContentHash: hash,
			CacheHit:    true,
		})
	}

	log.Debug("content cache miss",
		"content_hash", hash,
		"size_bytes", len(data))

	return c.orch.Advance(ctx, job, domain.QueueExtract, ExtractPayload{
		RunRef:      p.RunRef,
		ContentHash: hash,
	})
}
