package progress_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/events"
	"github.com/studybuddy/studybuddy-api/internal/mocks"
	"github.com/studybuddy/studybuddy-api/internal/progress"
)

// capturingPublisher records every published event.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func (p *capturingPublisher) ofType(eventType events.Type) []events.Event {
	var out []events.Event
	for _, event := range p.all() {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func newTracker(t *testing.T) (*progress.Tracker, *mocks.JobStore, *capturingPublisher) {
	t.Helper()

	jobs := mocks.NewJobStore()
	publisher := &capturingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return progress.NewTracker(jobs, publisher, nil, logger), jobs, publisher
}

func newJob(t *testing.T) *domain.JobRecord {
	t.Helper()

	job, err := domain.NewJobRecord(domain.QueueDownload, uuid.New(), uuid.New(), json.RawMessage(`{}`))
	require.NoError(t, err)
	return job
}

func TestTrackerProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	tracker, _, publisher := newTracker(t)
	ctx := context.Background()
	job := newJob(t)

	// The cache check can report after extraction has already pushed the
	// percentage higher; the published value must not go backwards.
	tracker.Progress(ctx, job, domain.StageExtractingText, "", nil)
	tracker.Progress(ctx, job, domain.StageCheckingCache, "", nil)

	published := publisher.ofType(events.TypeProgress)
	require.Len(t, published, 2)
	assert.Equal(t, domain.StageExtractingText.Percent(), published[0].Percent)
	assert.Equal(t, domain.StageExtractingText.Percent(), published[1].Percent,
		"late lower-percent stage is clamped to the high-water mark")
	assert.Equal(t, domain.StageCheckingCache, published[1].Stage)
}

func TestTrackerProgressPersistsStage(t *testing.T) {
	t.Parallel()

	tracker, jobs, _ := newTracker(t)
	ctx := context.Background()
	job := newJob(t)
	require.NoError(t, jobs.Upsert(ctx, job))

	tracker.Progress(ctx, job, domain.StageGeneratingNotes, "generating", nil)

	stored, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageGeneratingNotes, stored.Stage)
	assert.Equal(t, domain.StageGeneratingNotes.Percent(), stored.Progress)
}

func TestTrackerCompletedExactlyOnce(t *testing.T) {
	t.Parallel()

	tracker, jobs, publisher := newTracker(t)
	ctx := context.Background()
	job := newJob(t)
	require.NoError(t, job.TransitionTo(domain.JobStatusActive))

	result := events.CompletionResult{NoteID: uuid.New(), QuizID: uuid.New()}
	tracker.Completed(ctx, job, result)
	tracker.Completed(ctx, job, result)

	completed := publisher.ofType(events.TypeCompleted)
	require.Len(t, completed, 1, "duplicate completion must be suppressed")
	require.NotNil(t, completed[0].Result)
	assert.Equal(t, result.NoteID, completed[0].Result.NoteID)
	assert.Equal(t, 100, completed[0].Percent)

	stored, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
}

func TestTrackerFailedExactlyOnce(t *testing.T) {
	t.Parallel()

	tracker, _, publisher := newTracker(t)
	ctx := context.Background()
	job := newJob(t)
	require.NoError(t, job.TransitionTo(domain.JobStatusActive))

	tracker.Failed(ctx, job, "external_service", "model unavailable", true)
	tracker.Failed(ctx, job, "external_service", "model unavailable", true)

	failed := publisher.ofType(events.TypeFailed)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].Failure)
	assert.Equal(t, "external_service", failed[0].Failure.Code)
	assert.True(t, failed[0].Failure.Recoverable)
}

func TestTrackerTerminalStatesAreMutuallyExclusive(t *testing.T) {
	t.Parallel()

	tracker, _, publisher := newTracker(t)
	ctx := context.Background()
	job := newJob(t)
	require.NoError(t, job.TransitionTo(domain.JobStatusActive))

	tracker.Completed(ctx, job, events.CompletionResult{})
	tracker.Failed(ctx, job, "stalled", "late failure", false)

	assert.Len(t, publisher.ofType(events.TypeCompleted), 1)
	assert.Empty(t, publisher.ofType(events.TypeFailed),
		"a completed run can never also fail")
}
