package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/studybuddy/studybuddy-api/internal/cache"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/extract"
	"github.com/studybuddy/studybuddy-api/internal/generation"
	"github.com/studybuddy/studybuddy-api/internal/platform/logger"
	"github.com/studybuddy/studybuddy-api/internal/queue"
)

// HandleGenerate produces study notes and a quiz from the staged text.
// Both upstream calls run under the circuit breaker; an open breaker or
// a transient model failure re-enters the retry machinery with backoff.
func (c *Coordinator) HandleGenerate(ctx context.Context, job *domain.JobRecord) error {
	var p GeneratePayload
	if err := unmarshalPayload(job.Payload, &p); err != nil {
		return err
	}

	text, err := c.stagedText(ctx, p)
	if err != nil {
		return err
	}

	c.tracker.Progress(ctx, job, domain.StageGeneratingNotes, "generating study notes", nil)

	var notes *generation.Notes
	err = c.breaker.Call(ctx, func(ctx context.Context) error {
		var genErr error
		notes, genErr = c.generator.GenerateNotes(ctx, text)
		return genErr
	})
	if err != nil {
		return classifyGeneration(err)
	}

	c.tracker.Progress(ctx, job, domain.StageGeneratingQuiz, "generating quiz",
		map[string]any{"note_title": notes.Title})

	var questions []domain.QuizQuestion
	err = c.breaker.Call(ctx, func(ctx context.Context) error {
		var genErr error
		questions, genErr = c.generator.GenerateQuiz(ctx, text, c.config.QuizQuestions)
		return genErr
	})
	if err != nil {
		return classifyGeneration(err)
	}

	quizJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize quiz: %v", queue.ErrValidation, err)
	}

	artifact := cache.Artifact{
		Title:    notes.Title,
		Notes:    notes.Content,
		Summary:  notes.Summary,
		QuizJSON: string(quizJSON),
	}
	raw, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize artifact: %v", queue.ErrValidation, err)
	}
	if err := c.staging.PutArtifact(ctx, p.CorrelationID, raw); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrTransientIO, err)
	}

	return c.orch.Advance(ctx, job, domain.QueueSave, SavePayload{
		RunRef:      p.RunRef,
		ContentHash: p.ContentHash,
	})
}

// stagedText returns the staged extracted text, re-deriving it from the
// source document when staging expired.
func (c *Coordinator) stagedText(ctx context.Context, p GeneratePayload) (string, error) {
	text, err := c.staging.GetText(ctx, p.CorrelationID)
	if err == nil {
		return text, nil
	}
	if !errors.Is(err, cache.ErrStagedDataMissing) {
		return "", fmt.Errorf("%w: %v", queue.ErrTransientIO, err)
	}

	logger.FromContextOrDefault(ctx, c.logger).Warn(
		"staged text expired, re-extracting from source",
		"correlation_id", p.CorrelationID)

	data, err := c.fetchSource(ctx, p.SourcePath)
	if err != nil {
		return "", err
	}
	text, err = extract.Text(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", queue.ErrValidation, err)
	}
	return text, nil
}

// classifyGeneration maps generation errors into the retry taxonomy.
// Malformed model responses are retried: structured-output slips are
// usually transient. Blocked content and empty input never are.
func classifyGeneration(err error) error {
	switch {
	case errors.Is(err, queue.ErrExternalService):
		return err
	case generation.IsTransient(err):
		return fmt.Errorf("%w: %v", queue.ErrExternalService, err)
	case errors.Is(err, generation.ErrInvalidResponse):
		return fmt.Errorf("%w: %v", queue.ErrExternalService, err)
	default:
		return fmt.Errorf("%w: %v", queue.ErrValidation, err)
	}
}
