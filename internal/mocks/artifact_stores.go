package mocks

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// NoteStore is an in-memory store.NoteStore keyed by ID with a unique
// constraint on correlation ID, mirroring the real schema.
type NoteStore struct {
	mu    sync.RWMutex
	notes map[uuid.UUID]*domain.Note

	// CreateFn, when set, replaces the default create behavior.
	CreateFn func(ctx context.Context, note *domain.Note) error

	CreateCount int
}

// NewNoteStore creates an empty in-memory note store.
func NewNoteStore() *NoteStore {
	return &NoteStore{notes: make(map[uuid.UUID]*domain.Note)}
}

// Create implements store.NoteStore.
func (s *NoteStore) Create(ctx context.Context, note *domain.Note) error {
	s.mu.Lock()
	s.CreateCount++
	fn := s.CreateFn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, note)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.notes {
		if existing.CorrelationID == note.CorrelationID {
			return store.ErrDuplicate
		}
	}
	clone := *note
	s.notes[note.ID] = &clone
	return nil
}

// GetByID implements store.NoteStore.
func (s *NoteStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[id]
	if !ok {
		return nil, store.ErrNoteNotFound
	}
	clone := *note
	return &clone, nil
}

// GetByCorrelationID implements store.NoteStore.
func (s *NoteStore) GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, note := range s.notes {
		if note.CorrelationID == correlationID {
			clone := *note
			return &clone, nil
		}
	}
	return nil, store.ErrNoteNotFound
}

// WithTx implements store.NoteStore; the fake ignores transactions.
func (s *NoteStore) WithTx(tx *sql.Tx) store.NoteStore {
	return s
}

// QuizStore is an in-memory store.QuizStore with the same correlation
// ID uniqueness as the real schema.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[uuid.UUID]*domain.Quiz

	// CreateFn, when set, replaces the default create behavior.
	CreateFn func(ctx context.Context, quiz *domain.Quiz) error

	CreateCount int
}

// NewQuizStore creates an empty in-memory quiz store.
func NewQuizStore() *QuizStore {
	return &QuizStore{quizzes: make(map[uuid.UUID]*domain.Quiz)}
}

// Create implements store.QuizStore.
func (s *QuizStore) Create(ctx context.Context, quiz *domain.Quiz) error {
	s.mu.Lock()
	s.CreateCount++
	fn := s.CreateFn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, quiz)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.quizzes {
		if existing.CorrelationID == quiz.CorrelationID {
			return store.ErrDuplicate
		}
	}
	clone := *quiz
	s.quizzes[quiz.ID] = &clone
	return nil
}

// GetByID implements store.QuizStore.
func (s *QuizStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return nil, store.ErrQuizNotFound
	}
	clone := *quiz
	return &clone, nil
}

// GetByCorrelationID implements store.QuizStore.
func (s *QuizStore) GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, quiz := range s.quizzes {
		if quiz.CorrelationID == correlationID {
			clone := *quiz
			return &clone, nil
		}
	}
	return nil, store.ErrQuizNotFound
}

// WithTx implements store.QuizStore; the fake ignores transactions.
func (s *QuizStore) WithTx(tx *sql.Tx) store.QuizStore {
	return s
}

var (
	_ store.NoteStore = (*NoteStore)(nil)
	_ store.QuizStore = (*QuizStore)(nil)
)
