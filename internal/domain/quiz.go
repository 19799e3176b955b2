package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Quiz
var (
	ErrEmptyQuizID        = errors.New("quiz ID cannot be empty")
	ErrEmptyQuizUserID    = errors.New("quiz user ID cannot be empty")
	ErrNoQuizQuestions    = errors.New("quiz must contain at least one question")
	ErrInvalidQuizOptions = errors.New("quiz question must have exactly four options")
)

// QuizQuestion is a single multiple-choice question with four options.
// CorrectAnswer is the index into Options.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// Quiz holds the multiple-choice quiz generated alongside the study notes
// for one document.
type Quiz struct {
	ID            uuid.UUID      `json:"id"`
	UserID        uuid.UUID      `json:"user_id"`
	SourceID      uuid.UUID      `json:"source_id"`
	NoteID        uuid.UUID      `json:"note_id"`
	CorrelationID uuid.UUID      `json:"correlation_id"`
	Questions     []QuizQuestion `json:"questions"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewQuiz creates a new Quiz owned by the given user.
// Returns an error if validation fails.
func NewQuiz(
	userID, sourceID, noteID, correlationID uuid.UUID,
	questions []QuizQuestion,
) (*Quiz, error) {
	now := time.Now().UTC()
	quiz := &Quiz{
		ID:            uuid.New(),
		UserID:        userID,
		SourceID:      sourceID,
		NoteID:        noteID,
		CorrelationID: correlationID,
		Questions:     questions,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := quiz.Validate(); err != nil {
		return nil, err
	}

	return quiz, nil
}

// Validate checks if the Quiz has valid data.
func (q *Quiz) Validate() error {
	if q.ID == uuid.Nil {
		return ErrEmptyQuizID
	}

	if q.UserID == uuid.Nil {
		return ErrEmptyQuizUserID
	}

	if len(q.Questions) == 0 {
		return ErrNoQuizQuestions
	}

	for _, question := range q.Questions {
		if len(question.Options) != 4 {
			return ErrInvalidQuizOptions
		}
	}

	return nil
}
