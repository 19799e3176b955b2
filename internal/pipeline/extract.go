package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/studybuddy/studybuddy-api/internal/cache"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/extract"
	"github.com/studybuddy/studybuddy-api/internal/platform/logger"
	"github.com/studybuddy/studybuddy-api/internal/queue"
)

// HandleExtract converts the staged document bytes into plain text. If
// the staged bytes expired between stages, the source is fetched again;
// the download is idempotent.
func (c *Coordinator) HandleExtract(ctx context.Context, job *domain.JobRecord) error {
	var p ExtractPayload
	if err := unmarshalPayload(job.Payload, &p); err != nil {
		return err
	}

	c.tracker.Progress(ctx, job, domain.StageExtractingText, "extracting text", nil)

	data, err := c.stagedBytes(ctx, p)
	if err != nil {
		return err
	}

	text, err := extract.Text(data)
	if err != nil {
		return fmt.Errorf("%w: %v", queue.ErrValidation, err)
	}

	if err := c.staging.PutText(ctx, p.CorrelationID, text); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrTransientIO, err)
	}

	return c.orch.Advance(ctx, job, domain.QueueGenerate, GeneratePayload{
		RunRef:      p.RunRef,
		ContentHash: p.ContentHash,
	})
}

// stagedBytes returns the staged document bytes, re-downloading the
// source when staging expired.
func (c *Coordinator) stagedBytes(ctx context.Context, p ExtractPayload) ([]byte, error) {
	data, err := c.staging.GetBytes(ctx, p.CorrelationID)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, cache.ErrStagedDataMissing) {
		return nil, fmt.Errorf("%w: %v", queue.ErrTransientIO, err)
	}

	logger.FromContextOrDefault(ctx, c.logger).Warn(
		"staged document bytes expired, re-downloading source",
		"correlation_id", p.CorrelationID)

	return c.fetchSource(ctx, p.SourcePath)
}
