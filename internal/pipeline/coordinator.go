package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy-api/internal/cache"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/generation"
	"github.com/studybuddy/studybuddy-api/internal/platform/storage"
	"github.com/studybuddy/studybuddy-api/internal/progress"
	"github.com/studybuddy/studybuddy-api/internal/queue"
	"github.com/studybuddy/studybuddy-api/internal/store"
	"github.com/studybuddy/studybuddy-api/internal/worker"
)

// DefaultQuizQuestions is how many questions the quiz stage requests
// when no override is configured.
const DefaultQuizQuestions = 5

// Config holds coordinator tuning.
type Config struct {
	// QuizQuestions is the number of questions requested per quiz.
	QuizQuestions int
}

// Coordinator chains the five pipeline stages. One job record travels
// through all of them, so a single job ID tracks the whole submission
// from upload to finished study material.
//
// Every stage handler is idempotent: payloads carry identifiers only,
// staged intermediate data is re-derivable, and persistence keys on the
// run's correlation ID.
type Coordinator struct {
	orch      *queue.Orchestrator
	tracker   *progress.Tracker
	artifacts *cache.ContentCache
	inflight  *cache.InFlightLocks
	staging   *cache.Staging
	blobs     storage.BlobStore
	generator generation.Generator
	breaker   *worker.Breaker
	notes     store.NoteStore
	quizzes   store.QuizStore
	db        *sql.DB
	config    Config
	logger    *slog.Logger

	// runTx wraps persistence in a transaction. Injectable so handler
	// tests can run against fake stores without a database.
	runTx func(ctx context.Context, db *sql.DB, fn store.TxFn) error
}

// NewCoordinator wires a Coordinator and registers its terminal failure
// hook with the orchestrator.
func NewCoordinator(
	orch *queue.Orchestrator,
	tracker *progress.Tracker,
	artifacts *cache.ContentCache,
	inflight *cache.InFlightLocks,
	staging *cache.Staging,
	blobs storage.BlobStore,
	generator generation.Generator,
	breaker *worker.Breaker,
	notes store.NoteStore,
	quizzes store.QuizStore,
	db *sql.DB,
	config Config,
	log *slog.Logger,
) *Coordinator {
	if config.QuizQuestions <= 0 {
		config.QuizQuestions = DefaultQuizQuestions
	}

	c := &Coordinator{
		orch:      orch,
		tracker:   tracker,
		artifacts: artifacts,
		inflight:  inflight,
		staging:   staging,
		blobs:     blobs,
		generator: generator,
		breaker:   breaker,
		notes:     notes,
		quizzes:   quizzes,
		db:        db,
		config:    config,
		logger:    log.With("component", "pipeline_coordinator"),
		runTx:     store.RunInTransaction,
	}

	orch.SetTerminalFailureHandler(c.onTerminalFailure)

	return c
}

// Handlers returns the stage handler for each pipeline queue, ready to
// be mounted on worker pools.
func (c *Coordinator) Handlers() map[string]worker.Handler {
	return map[string]worker.Handler{
		domain.QueueDownload: c.HandleDownload,
		domain.QueueExtract:  c.HandleExtract,
		domain.QueueGenerate: c.HandleGenerate,
		domain.QueueSave:     c.HandleSave,
		domain.QueueFinalize: c.HandleFinalize,
	}
}

// SubmitRequest describes a document submission.
type SubmitRequest struct {
	// EntityID identifies the uploaded document.
	EntityID uuid.UUID

	// OwnerUserID is the submitting user.
	OwnerUserID uuid.UUID

	// SourcePath locates the document bytes in blob storage.
	SourcePath string

	// SizeHint is the declared size in bytes; zero means unknown.
	SizeHint int64
}

// SubmitResult reports the job tracking a submission. Deduplicated is
// true when an earlier submission for the same document is still in
// flight and this one joined it.
type SubmitResult struct {
	JobID         uuid.UUID `json:"job_id"`
	Deduplicated  bool      `json:"deduplicated"`
	CorrelationID uuid.UUID `json:"correlation_id"`
}

// Submit starts a pipeline run for the document, unless one is already
// in flight for the same entity, in which case the existing job is
// returned instead of starting a duplicate.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.EntityID == uuid.Nil {
		return nil, fmt.Errorf("%w: entity ID is required", queue.ErrValidation)
	}
	if req.OwnerUserID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner user ID is required", queue.ErrValidation)
	}
	if req.SourcePath == "" {
		return nil, fmt.Errorf("%w: source path is required", queue.ErrValidation)
	}

	// The job ID is fixed up front so the in-flight lock can name its
	// owner before the record exists.
	jobID := uuid.New()

	if existing, acquired := c.inflight.Acquire(ctx, req.EntityID, jobID); !acquired {
		c.logger.Info("submission joined in-flight job",
			"entity_id", req.EntityID,
			"job_id", existing)
		return &SubmitResult{JobID: existing, Deduplicated: true}, nil
	}

	correlationID := uuid.New()
	payload := DownloadPayload{
		RunRef: RunRef{
			EntityID:      req.EntityID,
			OwnerUserID:   req.OwnerUserID,
			CorrelationID: correlationID,
			SourcePath:    req.SourcePath,
		},
		SizeHint: req.SizeHint,
	}

	id, err := c.orch.Enqueue(ctx, queue.Request{
		Queue:         domain.QueueDownload,
		JobID:         jobID,
		CorrelationID: correlationID,
		OwnerUserID:   req.OwnerUserID,
		Payload:       payload,
		Priority:      priorityForSize(req.SizeHint),
	})
	if err != nil {
		c.inflight.Release(ctx, req.EntityID)
		return nil, err
	}

	return &SubmitResult{JobID: id, CorrelationID: correlationID}, nil
}

// priorityForSize favors small documents so quick submissions are not
// stuck behind large ones.
func priorityForSize(sizeHint int64) int {
	switch {
	case sizeHint <= 0:
		return 5
	case sizeHint < 256<<10:
		return 10
	case sizeHint < 2<<20:
		return 5
	default:
		return 1
	}
}

// onTerminalFailure releases the per-entity resources of a run that
// failed for good. Runs as the orchestrator's terminal failure hook.
func (c *Coordinator) onTerminalFailure(ctx context.Context, job *domain.JobRecord) {
	var ref RunRef
	if err := json.Unmarshal(job.Payload, &ref); err != nil {
		c.logger.Warn("cannot parse payload of failed job, locks expire via TTL",
			"job_id", job.ID,
			"error", err)
		return
	}

	if ref.EntityID != uuid.Nil {
		c.inflight.Release(ctx, ref.EntityID)
	}
	if ref.CorrelationID != uuid.Nil {
		c.staging.Clear(ctx, ref.CorrelationID)
	}
}

// fetchSource downloads the document bytes, mapping storage errors into
// the retry taxonomy.
func (c *Coordinator) fetchSource(ctx context.Context, sourcePath string) ([]byte, error) {
	data, err := c.blobs.Download(ctx, sourcePath)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: source document %q not found", queue.ErrValidation, sourcePath)
		}
		return nil, fmt.Errorf("%w: failed to download %q: %v", queue.ErrTransientIO, sourcePath, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: source document %q is empty", queue.ErrValidation, sourcePath)
	}
	return data, nil
}
