package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy-api/internal/cache"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/platform/logger"
	"github.com/studybuddy/studybuddy-api/internal/queue"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// HandleSave persists the generated note and quiz in one transaction
// and writes the artifact to the content cache. If the staged artifact
// expired, the job goes back to the generate stage rather than failing.
func (c *Coordinator) HandleSave(ctx context.Context, job *domain.JobRecord) error {
	var p SavePayload
	if err := unmarshalPayload(job.Payload, &p); err != nil {
		return err
	}

	c.tracker.Progress(ctx, job, domain.StageSaving, "saving study material", nil)

	raw, err := c.staging.GetArtifact(ctx, p.CorrelationID)
	if err != nil {
		if errors.Is(err, cache.ErrStagedDataMissing) {
			logger.FromContextOrDefault(ctx, c.logger).Warn(
				"staged artifact expired, regenerating",
				"correlation_id", p.CorrelationID)
			return c.orch.Advance(ctx, job, domain.QueueGenerate, GeneratePayload{
				RunRef:      p.RunRef,
				ContentHash: p.ContentHash,
			})
		}
		return fmt.Errorf("%w: %v", queue.ErrTransientIO, err)
	}

	var artifact cache.Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return fmt.Errorf("%w: staged artifact is malformed: %v", queue.ErrValidation, err)
	}

	noteID, quizID, err := c.persistArtifact(ctx, p.RunRef, &artifact)
	if err != nil {
		return err
	}

	c.tracker.Progress(ctx, job, domain.StageCaching, "caching generated material", nil)
	c.artifacts.Put(ctx, p.ContentHash, &artifact)

	return c.orch.Advance(ctx, job, domain.QueueFinalize, FinalizePayload{
		RunRef:      p.RunRef,
		ContentHash: p.ContentHash,
		NoteID:      noteID,
		QuizID:      quizID,
	})
}

// persistArtifact stores the note and quiz for a run, keyed by its
// correlation ID. Retried saves and concurrent writers converge on the
// first writer's rows, so persistence happens at most once per run.
func (c *Coordinator) persistArtifact(
	ctx context.Context,
	ref RunRef,
	artifact *cache.Artifact,
) (uuid.UUID, uuid.UUID, error) {
	if noteID, quizID, ok, err := c.existingArtifact(ctx, ref.CorrelationID); err != nil {
		return uuid.Nil, uuid.Nil, err
	} else if ok {
		return noteID, quizID, nil
	}

	var questions []domain.QuizQuestion
	if err := json.Unmarshal([]byte(artifact.QuizJSON), &questions); err != nil {
		return uuid.Nil, uuid.Nil,
			fmt.Errorf("%w: artifact quiz payload is malformed: %v", queue.ErrValidation, err)
	}

	note, err := domain.NewNote(ref.OwnerUserID, ref.EntityID, ref.CorrelationID,
		artifact.Title, artifact.Notes, artifact.Summary)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %v", queue.ErrValidation, err)
	}
	quiz, err := domain.NewQuiz(ref.OwnerUserID, ref.EntityID, note.ID, ref.CorrelationID, questions)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %v", queue.ErrValidation, err)
	}

	err = c.runTx(ctx, c.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := c.notes.WithTx(tx).Create(ctx, note); err != nil {
			return err
		}
		return c.quizzes.WithTx(tx).Create(ctx, quiz)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent writer won the race; converge on its rows.
			noteID, quizID, ok, lookupErr := c.existingArtifact(ctx, ref.CorrelationID)
			if lookupErr == nil && ok {
				return noteID, quizID, nil
			}
		}
		return uuid.Nil, uuid.Nil,
			fmt.Errorf("%w: failed to persist study material: %v", queue.ErrTransientIO, err)
	}

	return note.ID, quiz.ID, nil
}

// existingArtifact looks up the rows a previous attempt for the same
// run may already have written.
func (c *Coordinator) existingArtifact(
	ctx context.Context,
	correlationID uuid.UUID,
) (uuid.UUID, uuid.UUID, bool, error) {
	note, err := c.notes.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, uuid.Nil, false, nil
		}
		return uuid.Nil, uuid.Nil, false, fmt.Errorf("%w: %v", queue.ErrTransientIO, err)
	}

	quiz, err := c.quizzes.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return uuid.Nil, uuid.Nil, false, fmt.Errorf("%w: %v", queue.ErrTransientIO, err)
	}

	return note.ID, quiz.ID, true, nil
}
