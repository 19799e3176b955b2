package pipeline

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/studybuddy-api/internal/cache"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/events"
	"github.com/studybuddy/studybuddy-api/internal/mocks"
	"github.com/studybuddy/studybuddy-api/internal/progress"
	"github.com/studybuddy/studybuddy-api/internal/queue"
	"github.com/studybuddy/studybuddy-api/internal/store"
	"github.com/studybuddy/studybuddy-api/internal/worker"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) byType(eventType events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, event := range p.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type pipelineFixture struct {
	coordinator *Coordinator
	orch        *queue.Orchestrator
	jobs        *mocks.JobStore
	notes       *mocks.NoteStore
	quizzes     *mocks.QuizStore
	blobs       *mocks.BlobStore
	generator   *mocks.Generator
	staging     *cache.Staging
	artifacts   *cache.ContentCache
	publisher   *capturingPublisher
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	jobs := mocks.NewJobStore()
	publisher := &capturingPublisher{}
	tracker := progress.NewTracker(jobs, publisher, nil, log)
	locks := cache.NewProcessingLocks(rc, time.Minute, log)

	queueConfig := queue.DefaultConfig()
	queueConfig.Retry = queue.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Factor: 1}
	queueConfig.StalledCheckInterval = time.Hour
	queueConfig.RetentionInterval = time.Hour

	orch := queue.NewOrchestrator(jobs, locks, tracker, queueConfig, log)
	t.Cleanup(orch.Stop)

	artifacts := cache.NewContentCache(rc, time.Hour, log)
	inflight := cache.NewInFlightLocks(rc, time.Hour, log)
	staging := cache.NewStaging(rc, time.Hour, log)
	blobs := mocks.NewBlobStore(nil)
	generator := &mocks.Generator{}
	breaker := worker.NewBreaker(worker.BreakerConfig{Name: "test"}, log)
	notes := mocks.NewNoteStore()
	quizzes := mocks.NewQuizStore()

	coordinator := NewCoordinator(orch, tracker, artifacts, inflight, staging,
		blobs, generator, breaker, notes, quizzes, nil, Config{QuizQuestions: 3}, log)

	// Fake stores ignore transactions; run the body directly.
	coordinator.runTx = func(ctx context.Context, db *sql.DB, fn store.TxFn) error {
		return fn(ctx, nil)
	}

	return &pipelineFixture{
		coordinator: coordinator,
		orch:        orch,
		jobs:        jobs,
		notes:       notes,
		quizzes:     quizzes,
		blobs:       blobs,
		generator:   generator,
		staging:     staging,
		artifacts:   artifacts,
		publisher:   publisher,
	}
}

// runStage dequeues the next job from the named queue and executes its
// stage handler the way a worker would.
func (fx *pipelineFixture) runStage(t *testing.T, queueName string) *domain.JobRecord {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job, err := fx.orch.Dequeue(ctx, queueName)
	require.NoError(t, err, "expected a job in queue %s", queueName)
	require.NoError(t, fx.orch.MarkActive(ctx, job))

	handler := fx.coordinator.Handlers()[queueName]
	require.NotNil(t, handler)
	require.NoError(t, handler(context.Background(), job))

	if job.Status == domain.JobStatusActive {
		fx.orch.Complete(context.Background(), job)
	}
	return job
}

func (fx *pipelineFixture) submit(t *testing.T, path string, data []byte) *SubmitResult {
	t.Helper()

	fx.blobs.Put(path, data)
	result, err := fx.coordinator.Submit(context.Background(), SubmitRequest{
		EntityID:    uuid.New(),
		OwnerUserID: uuid.New(),
		SourcePath:  path,
		SizeHint:    int64(len(data)),
	})
	require.NoError(t, err)
	return result
}

var lectureText = []byte("Photosynthesis converts light energy into chemical energy stored in glucose.")

func TestPipelineFullRun(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)
	result := fx.submit(t, "user-1/lecture.txt", lectureText)
	require.False(t, result.Deduplicated)

	for _, queueName := range []string{
		domain.QueueDownload,
		domain.QueueExtract,
		domain.QueueGenerate,
		domain.QueueSave,
		domain.QueueFinalize,
	} {
		job := fx.runStage(t, queueName)
		assert.Equal(t, result.JobID, job.ID, "one record travels the whole pipeline")
	}

	job, err := fx.orch.GetJob(context.Background(), result.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	assert.Equal(t, 1, fx.generator.NotesCalls)
	assert.Equal(t, 1, fx.generator.QuizCalls)
	assert.Equal(t, 1, fx.notes.CreateCount)
	assert.Equal(t, 1, fx.quizzes.CreateCount)

	completed := fx.publisher.byType(events.TypeCompleted)
	require.Len(t, completed, 1, "exactly one completed event per run")
	require.NotNil(t, completed[0].Result)
	assert.False(t, completed[0].Result.CacheHit)
	assert.NotEqual(t, uuid.Nil, completed[0].Result.NoteID)
	assert.NotEqual(t, uuid.Nil, completed[0].Result.QuizID)

	note, err := fx.notes.GetByCorrelationID(context.Background(), result.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, completed[0].Result.NoteID, note.ID)
}

func TestPipelineCacheHitSkipsGeneration(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)

	// First run populates the content cache.
	fx.submit(t, "user-1/lecture.txt", lectureText)
	for _, queueName := range []string{
		domain.QueueDownload, domain.QueueExtract, domain.QueueGenerate,
		domain.QueueSave, domain.QueueFinalize,
	} {
		fx.runStage(t, queueName)
	}
	require.Equal(t, 2, fx.generator.Calls())

	// A different entity with identical bytes goes download -> finalize.
	second := fx.submit(t, "user-2/copy.txt", lectureText)
	require.False(t, second.Deduplicated)

	fx.runStage(t, domain.QueueDownload)
	fx.runStage(t, domain.QueueFinalize)

	assert.Equal(t, 2, fx.generator.Calls(), "cache hit makes no generation calls")

	completed := fx.publisher.byType(events.TypeCompleted)
	require.Len(t, completed, 2)
	assert.True(t, completed[1].Result.CacheHit)

	// The second run still gets its own persisted rows.
	assert.Equal(t, 2, fx.notes.CreateCount)
	note, err := fx.notes.GetByCorrelationID(context.Background(), second.CorrelationID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, note.ID)
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing entity", SubmitRequest{OwnerUserID: uuid.New(), SourcePath: "a/b.pdf"}},
		{"missing owner", SubmitRequest{EntityID: uuid.New(), SourcePath: "a/b.pdf"}},
		{"missing path", SubmitRequest{EntityID: uuid.New(), OwnerUserID: uuid.New()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.coordinator.Submit(ctx, tc.req)
			assert.ErrorIs(t, err, queue.ErrValidation)
		})
	}
}

func TestSubmitDeduplicatesInFlightEntity(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)
	ctx := context.Background()
	fx.blobs.Put("user-1/lecture.txt", lectureText)

	entityID := uuid.New()
	req := SubmitRequest{
		EntityID:    entityID,
		OwnerUserID: uuid.New(),
		SourcePath:  "user-1/lecture.txt",
	}

	first, err := fx.coordinator.Submit(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Deduplicated)

	second, err := fx.coordinator.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.JobID, second.JobID, "duplicate submission joins the running job")
}

func TestTerminalFailureReleasesEntity(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)
	ctx := context.Background()

	entityID := uuid.New()
	req := SubmitRequest{
		EntityID:    entityID,
		OwnerUserID: uuid.New(),
		SourcePath:  "user-1/gone.pdf", // never stored
	}

	result, err := fx.coordinator.Submit(ctx, req)
	require.NoError(t, err)

	// Drive the download stage; the missing blob is a fatal error.
	dequeueCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	job, err := fx.orch.Dequeue(dequeueCtx, domain.QueueDownload)
	require.NoError(t, err)
	require.NoError(t, fx.orch.MarkActive(ctx, job))

	handlerErr := fx.coordinator.HandleDownload(ctx, job)
	require.ErrorIs(t, handlerErr, queue.ErrValidation)
	fx.orch.HandleFailure(ctx, job, handlerErr)

	failed := fx.publisher.byType(events.TypeFailed)
	require.Len(t, failed, 1)
	assert.False(t, failed[0].Failure.Recoverable)

	// The entity is no longer considered in flight.
	resubmit, err := fx.coordinator.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, resubmit.Deduplicated)
	assert.NotEqual(t, result.JobID, resubmit.JobID)
}

func TestGenerateRederivesExpiredStagedText(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)
	result := fx.submit(t, "user-1/lecture.txt", lectureText)

	fx.runStage(t, domain.QueueDownload)
	fx.runStage(t, domain.QueueExtract)

	// Staged data expires between extract and generate.
	fx.staging.Clear(context.Background(), result.CorrelationID)

	job := fx.runStage(t, domain.QueueGenerate)
	assert.Equal(t, domain.QueueSave, job.Queue, "generation recovered from source")
	assert.Equal(t, 1, fx.generator.NotesCalls)
}

func TestSaveRequeuesGenerateWhenArtifactExpired(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)
	result := fx.submit(t, "user-1/lecture.txt", lectureText)

	fx.runStage(t, domain.QueueDownload)
	fx.runStage(t, domain.QueueExtract)
	fx.runStage(t, domain.QueueGenerate)

	fx.staging.Clear(context.Background(), result.CorrelationID)

	job := fx.runStage(t, domain.QueueSave)
	assert.Equal(t, domain.QueueGenerate, job.Queue, "save re-enters the generate stage")
	assert.Equal(t, 0, fx.notes.CreateCount, "nothing persisted without an artifact")
}

func TestSaveIsIdempotentAcrossRetries(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t)
	fx.submit(t, "user-1/lecture.txt", lectureText)

	fx.runStage(t, domain.QueueDownload)
	fx.runStage(t, domain.QueueExtract)
	fx.runStage(t, domain.QueueGenerate)

	dequeueCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ctx := context.Background()

	job, err := fx.orch.Dequeue(dequeueCtx, domain.QueueSave)
	require.NoError(t, err)
	require.NoError(t, fx.orch.MarkActive(ctx, job))
	savePayload := append([]byte(nil), job.Payload...)

	require.NoError(t, fx.coordinator.HandleSave(ctx, job))
	require.Equal(t, 1, fx.notes.CreateCount)

	// A retry of the same stage, as after a worker crash between persist
	// and advance, must converge on the already-written rows.
	retry := *job
	retry.Queue = domain.QueueSave
	retry.Status = domain.JobStatusActive
	retry.Payload = savePayload
	require.NoError(t, fx.coordinator.HandleSave(ctx, &retry))

	assert.Equal(t, 1, fx.notes.CreateCount)
	assert.Equal(t, 1, fx.quizzes.CreateCount)

	var p FinalizePayload
	require.NoError(t, unmarshalPayload(retry.Payload, &p))
	assert.NotEqual(t, uuid.Nil, p.NoteID, "retry reports the winner's rows")
}

func TestPriorityForSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5, priorityForSize(0), "unknown size gets default priority")
	assert.Equal(t, 10, priorityForSize(10<<10), "small documents jump the line")
	assert.Equal(t, 5, priorityForSize(1<<20))
	assert.Equal(t, 1, priorityForSize(50<<20), "large documents yield")
}

func TestPayloadValidation(t *testing.T) {
	t.Parallel()

	ref := RunRef{
		EntityID:      uuid.New(),
		OwnerUserID:   uuid.New(),
		CorrelationID: uuid.New(),
		SourcePath:    "user-1/lecture.pdf",
	}

	assert.NoError(t, DownloadPayload{RunRef: ref}.Validate())
	assert.Error(t, DownloadPayload{}.Validate())
	assert.NoError(t, ExtractPayload{RunRef: ref, ContentHash: "abc"}.Validate())
	assert.Error(t, ExtractPayload{RunRef: ref}.Validate(), "content hash is required")
	assert.NoError(t, FinalizePayload{RunRef: ref, ContentHash: "abc", CacheHit: true}.Validate())

	var p DownloadPayload
	err := unmarshalPayload([]byte("{not json"), &p)
	assert.ErrorIs(t, err, queue.ErrValidation)
}
