package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy-api/internal/api/shared"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/pipeline"
)

// defaultListLimit caps job listings when the client does not ask for a
// specific page size.
const defaultListLimit = 50

var pipelineQueues = map[string]bool{
	domain.QueueDownload: true,
	domain.QueueExtract:  true,
	domain.QueueGenerate: true,
	domain.QueueSave:     true,
	domain.QueueFinalize: true,
}

// JobHandler handles document submission and job status requests.
type JobHandler struct {
	coordinator *pipeline.Coordinator
	jobs        JobReader
}

// JobReader is the read-side job access the handler needs. The
// orchestrator satisfies it.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)
	ListUserJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.JobRecord, error)
	ListQueueJobs(ctx context.Context, queue string, limit int) ([]*domain.JobRecord, error)
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(coordinator *pipeline.Coordinator, jobs JobReader) *JobHandler {
	return &JobHandler{
		coordinator: coordinator,
		jobs:        jobs,
	}
}

// SubmitUpload handles POST /api/uploads. Accepted submissions return
// 202 with the tracking job ID; duplicates of an in-flight document
// return the existing job instead.
func (h *JobHandler) SubmitUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	result, err := h.coordinator.Submit(r.Context(), pipeline.SubmitRequest{
		EntityID:    req.EntityID,
		OwnerUserID: req.UserID,
		SourcePath:  req.SourcePath,
		SizeHint:    req.SizeHint,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, UploadResponse{
		JobID:        result.JobID,
		Deduplicated: result.Deduplicated,
	})
}

// GetJob handles GET /api/jobs/{id}. It is the polling fallback for
// consumers that miss real-time events.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewJobResponse(job))
}

// ListJobs handles GET /api/jobs?user_id=&limit=.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid or missing user_id")
		return
	}

	jobs, err := h.jobs.ListUserJobs(r.Context(), userID, listLimit(r))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	h.respondJobList(w, r, jobs)
}

// ListQueueJobs handles GET /api/queues/{queue}/jobs.
func (h *JobHandler) ListQueueJobs(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queue")
	if !pipelineQueues[queueName] {
		shared.RespondWithError(w, r, http.StatusNotFound, "Unknown queue")
		return
	}

	jobs, err := h.jobs.ListQueueJobs(r.Context(), queueName, listLimit(r))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	h.respondJobList(w, r, jobs)
}

func (h *JobHandler) respondJobList(w http.ResponseWriter, r *http.Request, jobs []*domain.JobRecord) {
	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, NewJobResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}
