package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/generation"
)

// Generator is a fake generation.Generator with per-method overrides
// and call counting.
type Generator struct {
	mu sync.Mutex

	// GenerateNotesFn, when set, replaces the default notes behavior.
	GenerateNotesFn func(ctx context.Context, text string) (*generation.Notes, error)

	// GenerateQuizFn, when set, replaces the default quiz behavior.
	GenerateQuizFn func(ctx context.Context, text string, numQuestions int) ([]domain.QuizQuestion, error)

	NotesCalls int
	QuizCalls  int
}

// GenerateNotes implements generation.Generator.
func (g *Generator) GenerateNotes(ctx context.Context, text string) (*generation.Notes, error) {
	g.mu.Lock()
	g.NotesCalls++
	fn := g.GenerateNotesFn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return &generation.Notes{
		Title:   "Generated Notes",
		Content: "Notes for: " + truncate(text, 40),
		Summary: "Summary",
	}, nil
}

// GenerateQuiz implements generation.Generator.
func (g *Generator) GenerateQuiz(ctx context.Context, text string, numQuestions int) ([]domain.QuizQuestion, error) {
	g.mu.Lock()
	g.QuizCalls++
	fn := g.GenerateQuizFn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, numQuestions)
	}

	questions := make([]domain.QuizQuestion, numQuestions)
	for i := range questions {
		questions[i] = domain.QuizQuestion{
			Question:      fmt.Sprintf("Question %d?", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: i % 4,
			Explanation:   "Because.",
		}
	}
	return questions, nil
}

// Calls returns the total number of generation calls across both
// methods.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.NotesCalls + g.QuizCalls
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ generation.Generator = (*Generator)(nil)
