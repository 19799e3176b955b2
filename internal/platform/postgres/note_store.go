package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// NoteStore implements store.NoteStore using PostgreSQL.
type NoteStore struct {
	db store.DBTX
}

// NewNoteStore creates a new PostgreSQL-backed NoteStore.
func NewNoteStore(db store.DBTX) *NoteStore {
	return &NoteStore{db: db}
}

const noteColumns = `id, user_id, source_id, correlation_id, title, content, summary, created_at, updated_at`

// Create saves a new note. The unique index on correlation_id turns
// duplicate saves from retried stages into store.ErrDuplicate, which
// the save handler treats as success.
func (s *NoteStore) Create(ctx context.Context, note *domain.Note) error {
	if err := note.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO notes (` + noteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		note.ID,
		note.UserID,
		note.SourceID,
		note.CorrelationID,
		note.Title,
		note.Content,
		note.Summary,
		note.CreatedAt,
		note.UpdatedAt,
	)
	if err != nil {
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a note by its unique ID.
func (s *NoteStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1`
	note, err := scanNote(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrNoteNotFound
		}
		return nil, MapError(err)
	}
	return note, nil
}

// GetByCorrelationID retrieves the note produced by the pipeline run
// with the given correlation ID.
func (s *NoteStore) GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE correlation_id = $1`
	note, err := scanNote(s.db.QueryRowContext(ctx, query, correlationID))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrNoteNotFound
		}
		return nil, MapError(err)
	}
	return note, nil
}

// WithTx returns a new NoteStore that uses the provided transaction.
func (s *NoteStore) WithTx(tx *sql.Tx) store.NoteStore {
	return &NoteStore{db: tx}
}

func scanNote(row rowScanner) (*domain.Note, error) {
	var note domain.Note
	err := row.Scan(
		&note.ID,
		&note.UserID,
		&note.SourceID,
		&note.CorrelationID,
		&note.Title,
		&note.Content,
		&note.Summary,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// Ensure NoteStore implements store.NoteStore
var _ store.NoteStore = (*NoteStore)(nil)
