package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// QuizStore implements store.QuizStore using PostgreSQL. Questions are
// stored as a JSONB column; the quiz row itself carries ownership and
// correlation metadata.
type QuizStore struct {
	db store.DBTX
}

// NewQuizStore creates a new PostgreSQL-backed QuizStore.
func NewQuizStore(db store.DBTX) *QuizStore {
	return &QuizStore{db: db}
}

const quizColumns = `id, user_id, source_id, note_id, correlation_id, questions, created_at, updated_at`

// Create saves a new quiz. Duplicate correlation IDs map to
// store.ErrDuplicate for idempotent retries.
func (s *QuizStore) Create(ctx context.Context, quiz *domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize questions: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO quizzes (` + quizColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		quiz.ID,
		quiz.UserID,
		quiz.SourceID,
		quiz.NoteID,
		quiz.CorrelationID,
		questions,
		quiz.CreatedAt,
		quiz.UpdatedAt,
	)
	if err != nil {
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a quiz by its unique ID.
func (s *QuizStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE id = $1`
	quiz, err := scanQuiz(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrQuizNotFound
		}
		return nil, MapError(err)
	}
	return quiz, nil
}

// GetByCorrelationID retrieves the quiz produced by the pipeline run
// with the given correlation ID.
func (s *QuizStore) GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE correlation_id = $1`
	quiz, err := scanQuiz(s.db.QueryRowContext(ctx, query, correlationID))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrQuizNotFound
		}
		return nil, MapError(err)
	}
	return quiz, nil
}

// WithTx returns a new QuizStore that uses the provided transaction.
func (s *QuizStore) WithTx(tx *sql.Tx) store.QuizStore {
	return &QuizStore{db: tx}
}

func scanQuiz(row rowScanner) (*domain.Quiz, error) {
	var quiz domain.Quiz
	var questions []byte

	err := row.Scan(
		&quiz.ID,
		&quiz.UserID,
		&quiz.SourceID,
		&quiz.NoteID,
		&quiz.CorrelationID,
		&questions,
		&quiz.CreatedAt,
		&quiz.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return nil, fmt.Errorf("failed to deserialize quiz questions: %w", err)
	}

	return &quiz, nil
}

// Ensure QuizStore implements store.QuizStore
var _ store.QuizStore = (*QuizStore)(nil)
