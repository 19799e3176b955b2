package queue

import (
	"context"
	"errors"
	"fmt"
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
)

type testPayload struct {
	EntityID string `json:"entity_id"`
	invalid  bool
}

func (p testPayload) Validate() error {
	if p.invalid {
		return errors.New("invalid payload")
	}
	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) failures() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, event := range p.events {
		if event.Type == events.TypeFailed {
			out = append(out, event)
		}
	}
	return out
}

type orchestratorFixture struct {
	orch      *Orchestrator
	jobs      *mocks.JobStore
	publisher *capturingPublisher
	locks     *cache.ProcessingLocks
	redis     *miniredis.Miniredis
}

func newOrchestratorFixture(t *testing.T, config Config) *orchestratorFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	jobs := mocks.NewJobStore()
	publisher := &capturingPublisher{}
	tracker := progress.NewTracker(jobs, publisher, nil, logger)
	locks := cache.NewProcessingLocks(rc, time.Minute, logger)

	orch := NewOrchestrator(jobs, locks, tracker, config, logger)
	t.Cleanup(orch.Stop)

	return &orchestratorFixture{
		orch:      orch,
		jobs:      jobs,
		publisher: publisher,
		locks:     locks,
		redis:     mr,
	}
}

func fastRetryConfig() Config {
	config := DefaultConfig()
	config.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Factor: 1}
	// Keep background monitors quiet during unit tests.
	config.StalledCheckInterval = time.Hour
	config.RetentionInterval = time.Hour
	return config
}

func TestOrchestratorEnqueueValidation(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	t.Run("unknown queue", func(t *testing.T) {
		_, err := fx.orch.Enqueue(ctx, Request{
			Queue:       "bogus",
			OwnerUserID: uuid.New(),
			Payload:     testPayload{},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("missing payload", func(t *testing.T) {
		_, err := fx.orch.Enqueue(ctx, Request{
			Queue:       domain.QueueDownload,
			OwnerUserID: uuid.New(),
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := fx.orch.Enqueue(ctx, Request{
			Queue:       domain.QueueDownload,
			OwnerUserID: uuid.New(),
			Payload:     testPayload{invalid: true},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestOrchestratorEnqueueDequeue(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	jobID := uuid.New()
	correlationID := uuid.New()

	id, err := fx.orch.Enqueue(ctx, Request{
		Queue:         domain.QueueDownload,
		JobID:         jobID,
		CorrelationID: correlationID,
		OwnerUserID:   uuid.New(),
		Payload:       testPayload{EntityID: "doc-1"},
		Priority:      7,
	})
	require.NoError(t, err)
	assert.Equal(t, jobID, id, "explicit job ID is honored")

	job, err := fx.orch.Dequeue(ctx, domain.QueueDownload)
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, correlationID, job.CorrelationID)
	assert.Equal(t, 7, job.Priority)
	assert.Equal(t, 3, job.MaxAttempts, "queue default applies")

	require.NoError(t, fx.orch.MarkActive(ctx, job))
	assert.Equal(t, 1, job.AttemptCount)
	assert.Equal(t, domain.JobStatusActive, job.Status)

	stored, err := fx.orch.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, stored.Status)
}

func TestOrchestratorPriorityOrdering(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	var ids []uuid.UUID
	for _, priority := range []int{1, 5, 10} {
		id, err := fx.orch.Enqueue(ctx, Request{
			Queue:       domain.QueueDownload,
			OwnerUserID: uuid.New(),
			Payload:     testPayload{},
			Priority:    priority,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, want := range []uuid.UUID{ids[2], ids[1], ids[0]} {
		job, err := fx.orch.Dequeue(ctx, domain.QueueDownload)
		require.NoError(t, err)
		assert.Equal(t, want, job.ID)
	}
}

func TestOrchestratorRetriesUntilExhaustion(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	_, err := fx.orch.Enqueue(ctx, Request{
		Queue:       domain.QueueDownload,
		OwnerUserID: uuid.New(),
		Payload:     testPayload{},
	})
	require.NoError(t, err)

	transient := fmt.Errorf("%w: connection reset", ErrTransientIO)

	// MaxAttempts is 3: exactly three executions, then terminal failure.
	executions := 0
	for {
		dequeueCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		job, err := fx.orch.Dequeue(dequeueCtx, domain.QueueDownload)
		cancel()
		if err != nil {
			break
		}
		require.NoError(t, fx.orch.MarkActive(ctx, job))
		executions++
		fx.orch.HandleFailure(ctx, job, transient)
	}

	assert.Equal(t, 3, executions)

	failures := fx.publisher.failures()
	require.Len(t, failures, 1, "exactly one terminal failure event")
	require.NotNil(t, failures[0].Failure)
	assert.Equal(t, "exhausted_retries", failures[0].Failure.Code)
	assert.True(t, failures[0].Failure.Recoverable,
		"a resubmission after exhausted retries may succeed")
}

func TestOrchestratorFatalErrorSkipsRetries(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	var hookCalls int
	fx.orch.SetTerminalFailureHandler(func(ctx context.Context, job *domain.JobRecord) {
		hookCalls++
	})

	_, err := fx.orch.Enqueue(ctx, Request{
		Queue:       domain.QueueDownload,
		OwnerUserID: uuid.New(),
		Payload:     testPayload{},
	})
	require.NoError(t, err)

	job, err := fx.orch.Dequeue(ctx, domain.QueueDownload)
	require.NoError(t, err)
	require.NoError(t, fx.orch.MarkActive(ctx, job))

	fx.orch.HandleFailure(ctx, job, fmt.Errorf("%w: no text in document", ErrValidation))

	failures := fx.publisher.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "validation_error", failures[0].Failure.Code)
	assert.False(t, failures[0].Failure.Recoverable)
	assert.Equal(t, 1, hookCalls, "terminal failure hook runs once")

	// Nothing requeued.
	dequeueCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = fx.orch.Dequeue(dequeueCtx, domain.QueueDownload)
	assert.Error(t, err)
}

func TestOrchestratorAdvanceReusesRecord(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	_, err := fx.orch.Enqueue(ctx, Request{
		Queue:       domain.QueueDownload,
		OwnerUserID: uuid.New(),
		Payload:     testPayload{EntityID: "doc-1"},
	})
	require.NoError(t, err)

	job, err := fx.orch.Dequeue(ctx, domain.QueueDownload)
	require.NoError(t, err)
	require.NoError(t, fx.orch.MarkActive(ctx, job))
	require.Equal(t, 1, job.AttemptCount)

	require.NoError(t, fx.orch.Advance(ctx, job, domain.QueueExtract, testPayload{EntityID: "doc-1"}))

	next, err := fx.orch.Dequeue(ctx, domain.QueueExtract)
	require.NoError(t, err)
	assert.Equal(t, job.ID, next.ID, "one record tracks the whole run")
	assert.Equal(t, domain.QueueExtract, next.Queue)
	assert.Equal(t, domain.JobStatusQueued, next.Status)
	assert.Equal(t, 0, next.AttemptCount, "each stage gets a fresh retry budget")

	// The handoff must not share a mutable record: the next stage's
	// worker writes Status and AttemptCount while the previous stage's
	// worker still reads its own copy after the handler returns.
	require.NotSame(t, job, next)
	require.NoError(t, fx.orch.MarkActive(ctx, next))
	assert.Equal(t, domain.JobStatusQueued, job.Status,
		"previous stage's record is untouched by the next stage")
	assert.Equal(t, 0, job.AttemptCount)
}

func TestOrchestratorRecoversUnfinishedJobs(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	queued, err := domain.NewJobRecord(domain.QueueExtract, uuid.New(), uuid.New(), []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, fx.jobs.Upsert(ctx, queued))

	active, err := domain.NewJobRecord(domain.QueueGenerate, uuid.New(), uuid.New(), []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, active.TransitionTo(domain.JobStatusActive))
	require.NoError(t, fx.jobs.Upsert(ctx, active))

	require.NoError(t, fx.orch.Start())

	got, err := fx.orch.Dequeue(ctx, domain.QueueExtract)
	require.NoError(t, err)
	assert.Equal(t, queued.ID, got.ID)

	got, err = fx.orch.Dequeue(ctx, domain.QueueGenerate)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	stored, err := fx.orch.GetJob(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, stored.Status,
		"interrupted active jobs are reset to queued")
}

func TestOrchestratorRequeuesStalledJobs(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	job, err := domain.NewJobRecord(domain.QueueGenerate, uuid.New(), uuid.New(), []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, job.TransitionTo(domain.JobStatusActive))
	job.AttemptCount = 1
	job.MaxAttempts = 3
	job.UpdatedAt = time.Now().UTC().Add(-10 * time.Minute)
	require.NoError(t, fx.jobs.Upsert(ctx, job))

	// No processing lock exists for the job: the worker is gone.
	fx.orch.requeueStalled()

	got, err := fx.orch.Dequeue(ctx, domain.QueueGenerate)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID, "stalled job re-enters its queue")
}

func TestOrchestratorStalledCheckRespectsHeldLocks(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	job, err := domain.NewJobRecord(domain.QueueGenerate, uuid.New(), uuid.New(), []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, job.TransitionTo(domain.JobStatusActive))
	job.UpdatedAt = time.Now().UTC().Add(-10 * time.Minute)
	require.NoError(t, fx.jobs.Upsert(ctx, job))

	require.True(t, fx.locks.Acquire(ctx, job.ID, domain.QueueGenerate, "worker-0"))

	fx.orch.requeueStalled()

	stored, err := fx.orch.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, stored.Status,
		"a job with a live lock is not stalled")
}

func TestOrchestratorPauseResume(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, fastRetryConfig())
	ctx := context.Background()

	fx.orch.Pause(domain.QueueDownload)

	_, err := fx.orch.Enqueue(ctx, Request{
		Queue:       domain.QueueDownload,
		OwnerUserID: uuid.New(),
		Payload:     testPayload{},
	})
	require.NoError(t, err)

	dequeueCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	_, err = fx.orch.Dequeue(dequeueCtx, domain.QueueDownload)
	cancel()
	assert.Error(t, err, "paused queue holds dispatch")

	fx.orch.Resume(domain.QueueDownload)

	job, err := fx.orch.Dequeue(ctx, domain.QueueDownload)
	require.NoError(t, err)
	assert.NotNil(t, job)
}
