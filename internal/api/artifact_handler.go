package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy-api/internal/api/shared"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// ArtifactHandler serves the generated study material.
type ArtifactHandler struct {
	notes   store.NoteStore
	quizzes store.QuizStore
}

// NewArtifactHandler creates a new ArtifactHandler.
func NewArtifactHandler(notes store.NoteStore, quizzes store.QuizStore) *ArtifactHandler {
	return &ArtifactHandler{
		notes:   notes,
		quizzes: quizzes,
	}
}

// GetNote handles GET /api/notes/{id}.
func (h *ArtifactHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid note ID")
		return
	}

	note, err := h.notes.GetByID(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewNoteResponse(note))
}

// GetQuiz handles GET /api/quizzes/{id}.
func (h *ArtifactHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid quiz ID")
		return
	}

	quiz, err := h.quizzes.GetByID(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewQuizResponse(quiz))
}
