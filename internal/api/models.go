package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy-api/internal/domain"
)

// UploadRequest is the request body for submitting a document.
type UploadRequest struct {
	EntityID   uuid.UUID `json:"entity_id"   validate:"required"`
	UserID     uuid.UUID `json:"user_id"     validate:"required"`
	SourcePath string    `json:"source_path" validate:"required"`
	SizeHint   int64     `json:"size_hint"   validate:"omitempty,gte=0"`
}

// UploadResponse acknowledges an accepted submission. Deduplicated is
// true when the submission joined a run already in flight for the same
// document.
type UploadResponse struct {
	JobID        uuid.UUID `json:"job_id"`
	Deduplicated bool      `json:"deduplicated"`
}

// JobResponse is the API representation of a job record.
type JobResponse struct {
	ID            uuid.UUID  `json:"id"`
	CorrelationID uuid.UUID  `json:"correlation_id"`
	Queue         string     `json:"queue"`
	Status        string     `json:"status"`
	Stage         string     `json:"stage"`
	Progress      int        `json:"progress"`
	AttemptCount  int        `json:"attempt_count"`
	MaxAttempts   int        `json:"max_attempts"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
}

// NewJobResponse converts a domain job record to its API shape.
func NewJobResponse(job *domain.JobRecord) JobResponse {
	return JobResponse{
		ID:            job.ID,
		CorrelationID: job.CorrelationID,
		Queue:         job.Queue,
		Status:        string(job.Status),
		Stage:         string(job.Stage),
		Progress:      job.Progress,
		AttemptCount:  job.AttemptCount,
		MaxAttempts:   job.MaxAttempts,
		FailureReason: job.FailureReason,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
		FinishedAt:    job.FinishedAt,
		FailedAt:      job.FailedAt,
	}
}

// NoteResponse is the API representation of generated study notes.
type NoteResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	SourceID  uuid.UUID `json:"source_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNoteResponse converts a domain note to its API shape.
func NewNoteResponse(note *domain.Note) NoteResponse {
	return NoteResponse{
		ID:        note.ID,
		UserID:    note.UserID,
		SourceID:  note.SourceID,
		Title:     note.Title,
		Content:   note.Content,
		Summary:   note.Summary,
		CreatedAt: note.CreatedAt,
	}
}

// QuizResponse is the API representation of a generated quiz.
type QuizResponse struct {
	ID        uuid.UUID             `json:"id"`
	UserID    uuid.UUID             `json:"user_id"`
	SourceID  uuid.UUID             `json:"source_id"`
	NoteID    uuid.UUID             `json:"note_id"`
	Questions []domain.QuizQuestion `json:"questions"`
	CreatedAt time.Time             `json:"created_at"`
}

// NewQuizResponse converts a domain quiz to its API shape.
func NewQuizResponse(quiz *domain.Quiz) QuizResponse {
	return QuizResponse{
		ID:        quiz.ID,
		UserID:    quiz.UserID,
		SourceID:  quiz.SourceID,
		NoteID:    quiz.NoteID,
		Questions: quiz.Questions,
		CreatedAt: quiz.CreatedAt,
	}
}
