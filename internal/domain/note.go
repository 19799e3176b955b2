package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Note
var (
	ErrEmptyNoteID      = errors.New("note ID cannot be empty")
	ErrEmptyNoteUserID  = errors.New("note user ID cannot be empty")
	ErrEmptyNoteTitle   = errors.New("note title cannot be empty")
	ErrEmptyNoteContent = errors.New("note content cannot be empty")
)

// Note holds the structured study notes generated from an uploaded
// document. CorrelationID ties the note back to the pipeline run that
// produced it and is the idempotency key for retried save stages.
type Note struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	SourceID      uuid.UUID `json:"source_id"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Summary       string    `json:"summary"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewNote creates a new Note for the given owner and source document.
// Returns an error if validation fails.
func NewNote(
	userID, sourceID, correlationID uuid.UUID,
	title, content, summary string,
) (*Note, error) {
	now := time.Now().UTC()
	note := &Note{
		ID:            uuid.New(),
		UserID:        userID,
		SourceID:      sourceID,
		CorrelationID: correlationID,
		Title:         title,
		Content:       content,
		Summary:       summary,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := note.Validate(); err != nil {
		return nil, err
	}

	return note, nil
}

// Validate checks if the Note has valid data.
func (n *Note) Validate() error {
	if n.ID == uuid.Nil {
		return ErrEmptyNoteID
	}

	if n.UserID == uuid.Nil {
		return ErrEmptyNoteUserID
	}

	if n.Title == "" {
		return ErrEmptyNoteTitle
	}

	if n.Content == "" {
		return ErrEmptyNoteContent
	}

	return nil
}
