package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/studybuddy/studybuddy-api/internal/domain"
)

// Type distinguishes the three event kinds published by the pipeline.
type Type string

// Event types
const (
	TypeProgress  Type = "progress"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
)

// CompletionResult carries the artifact identifiers of a finished run.
type CompletionResult struct {
	NoteID           uuid.UUID `json:"note_id"`
	QuizID           uuid.UUID `json:"quiz_id"`
	CacheHit         bool      `json:"cache_hit"`
	ProcessingMillis int64     `json:"processing_millis"`
}

// FailureDetail carries a structured failure description. Recoverable
// indicates whether a plain resubmission is likely to succeed.
type FailureDetail struct {
	Message     string `json:"message"`
	Code        string `json:"code"`
	Recoverable bool   `json:"recoverable"`
}

// Event is a single progress, completed or failed notification for a
// job. Events are addressable by job ID and by the owning user; delivery
// is at-most-once, so consumers must be able to fall back to polling the
// job record.
type Event struct {
	Type          Type              `json:"type"`
	JobID         uuid.UUID         `json:"job_id"`
	CorrelationID uuid.UUID         `json:"correlation_id"`
	OwnerUserID   uuid.UUID         `json:"owner_user_id"`
	Stage         domain.Stage      `json:"stage"`
	Percent       int               `json:"percent"`
	Message       string            `json:"message,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	Result        *CompletionResult `json:"result,omitempty"`
	Failure       *FailureDetail    `json:"failure,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// JobRoom returns the room name addressing subscribers of a single job.
func JobRoom(jobID uuid.UUID) string {
	return "job:" + jobID.String()
}

// UserRoom returns the room name addressing all of a user's subscribers.
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Publisher is the outbound notification boundary. Implementations
// deliver events to interested consumers with at-most-once semantics.
type Publisher interface {
	// Publish delivers the event to the job's room and the owning
	// user's room. It must never block on slow consumers.
	Publish(event Event)
}
