package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"google.golang.org/genai"

	"github.com/studybuddy/studybuddy-api/internal/config"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/generation"
)

// callFunc makes a single model call and returns the raw response text.
// It is injectable so that tests can exercise parsing and classification
// without network access.
type callFunc func(ctx context.Context, prompt string) (string, error)

// Generator implements generation.Generator using Google's Gemini API.
// Each method makes exactly one upstream call; retry and circuit-breaker
// policies are attached by the caller.
type Generator struct {
	logger        *slog.Logger
	config        config.LLMConfig
	notesTemplate *template.Template
	quizTemplate  *template.Template
	call          callFunc
}

// NewGenerator creates a Gemini-backed Generator with the provided
// configuration.
func NewGenerator(ctx context.Context, log *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	g := &Generator{
		logger:        log.With("component", "gemini_generator"),
		config:        cfg,
		notesTemplate: template.Must(template.New("notes").Parse(notesPromptTemplate)),
		quizTemplate:  template.Must(template.New("quiz").Parse(quizPromptTemplate)),
	}
	g.call = func(ctx context.Context, prompt string) (string, error) {
		return g.generateContent(ctx, client, prompt)
	}

	return g, nil
}

// GenerateNotes produces structured study notes for the given text.
func (g *Generator) GenerateNotes(ctx context.Context, text string) (*generation.Notes, error) {
	prompt, err := g.renderPrompt(g.notesTemplate, text, 0)
	if err != nil {
		return nil, err
	}

	raw, err := g.call(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var notes generation.Notes
	if err := json.Unmarshal([]byte(extractJSON(raw)), &notes); err != nil {
		return nil, fmt.Errorf("%w: failed to parse notes response: %v", generation.ErrInvalidResponse, err)
	}
	if notes.Title == "" || notes.Content == "" {
		return nil, fmt.Errorf("%w: notes response missing title or content", generation.ErrInvalidResponse)
	}

	return &notes, nil
}

// GenerateQuiz produces a multiple-choice quiz for the given text.
func (g *Generator) GenerateQuiz(ctx context.Context, text string, numQuestions int) ([]domain.QuizQuestion, error) {
	if numQuestions <= 0 {
		numQuestions = 5
	}

	prompt, err := g.renderPrompt(g.quizTemplate, text, numQuestions)
	if err != nil {
		return nil, err
	}

	raw, err := g.call(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Questions []domain.QuizQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse quiz response: %v", generation.ErrInvalidResponse, err)
	}
	if len(parsed.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz response contains no questions", generation.ErrInvalidResponse)
	}
	for i, q := range parsed.Questions {
		if len(q.Options) != 4 {
			return nil, fmt.Errorf("%w: question %d has %d options, want 4",
				generation.ErrInvalidResponse, i, len(q.Options))
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer > 3 {
			return nil, fmt.Errorf("%w: question %d has out-of-range correct_answer %d",
				generation.ErrInvalidResponse, i, q.CorrectAnswer)
		}
	}

	return parsed.Questions, nil
}

// renderPrompt executes the template against the (truncated) input text.
func (g *Generator) renderPrompt(tmpl *template.Template, text string, numQuestions int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", generation.ErrEmptyInput
	}

	maxChars := g.config.MaxPromptChars
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, struct {
		Text         string
		NumQuestions int
	}{Text: text, NumQuestions: numQuestions})
	if err != nil {
		return "", fmt.Errorf("%w: failed to render prompt: %v", generation.ErrGenerationFailed, err)
	}

	return buf.String(), nil
}

// generateContent makes one Gemini API call and classifies failures.
func (g *Generator) generateContent(ctx context.Context, client *genai.Client, prompt string) (string, error) {
	resp, err := client.Models.GenerateContent(
		ctx,
		g.config.ModelName,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		// API transport errors are assumed transient; the caller's retry
		// and breaker policies decide what happens next.
		g.logger.ErrorContext(ctx, "Gemini API call failed", "error", err)
		return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: generation stopped by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}

	return text, nil
}

// extractJSON strips markdown code fences that some model responses wrap
// around the JSON body.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

// Ensure Generator implements generation.Generator
var _ generation.Generator = (*Generator)(nil)
