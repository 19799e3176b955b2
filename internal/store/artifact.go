package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/studybuddy/studybuddy-api/internal/domain"
)

// NoteStore defines the interface for note persistence.
// Version: 1.0
type NoteStore interface {
	// Create saves a new note to the store.
	// Returns ErrDuplicate if a note already exists for the same
	// correlation ID, which retried save stages rely on for idempotency.
	Create(ctx context.Context, note *domain.Note) error

	// GetByID retrieves a note by its unique ID.
	// Returns ErrNoteNotFound if the note does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error)

	// GetByCorrelationID retrieves the note produced by the pipeline run
	// with the given correlation ID. Returns ErrNoteNotFound if no note
	// has been created for that run yet.
	GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Note, error)

	// WithTx returns a new NoteStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) NoteStore
}

// QuizStore defines the interface for quiz persistence.
// Version: 1.0
type QuizStore interface {
	// Create saves a new quiz to the store.
	// Returns ErrDuplicate if a quiz already exists for the same correlation ID.
	Create(ctx context.Context, quiz *domain.Quiz) error

	// GetByID retrieves a quiz by its unique ID.
	// Returns ErrQuizNotFound if the quiz does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Quiz, error)

	// GetByCorrelationID retrieves the quiz produced by the pipeline run
	// with the given correlation ID.
	GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Quiz, error)

	// WithTx returns a new QuizStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) QuizStore
}
