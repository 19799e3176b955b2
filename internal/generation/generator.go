package generation

import (
	"context"

	"github.com/studybuddy/studybuddy-api/internal/domain"
)

// Notes is the structured study-notes output of a generation call.
type Notes struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Summary string `json:"summary"`
}

// Generator defines the interface for generating study material from
// extracted document text. It is the boundary between the pipeline and
// the external AI service: implementations make exactly one upstream
// call per method invocation so that retry and circuit-breaking policies
// can be attached at the call site.
type Generator interface {
	// GenerateNotes produces structured study notes for the given text.
	GenerateNotes(ctx context.Context, text string) (*Notes, error)

	// GenerateQuiz produces a multiple-choice quiz for the given text.
	GenerateQuiz(ctx context.Context, text string, numQuestions int) ([]domain.QuizQuestion, error)
}
