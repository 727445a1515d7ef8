package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dvloznov/budget-insights/internal/api/middleware"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/jobs"
	"github.com/dvloznov/budget-insights/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// StatementUploader stores a statement and schedules its processing.
type StatementUploader interface {
	Upload(ctx context.Context, userID, filename string, data []byte) (*jobs.Job, error)
}

var _ StatementUploader = (*pipeline.Service)(nil)

// StatementsHandler handles statement uploads.
type StatementsHandler struct {
	uploader StatementUploader
	log      zerolog.Logger
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(uploader StatementUploader, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		uploader: uploader,
		log:      log,
	}
}

// UploadStatement handles POST /api/statements (multipart field "file").
func (h *StatementsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, pipeline.MaxStatementSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Statement file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, pipeline.MaxStatementSize+1))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to read statement upload")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read statement file")
		return
	}

	job, err := h.uploader.Upload(ctx, userID, header.Filename, data)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Str("filename", header.Filename).Msg("Failed to upload statement")
		if job != nil {
			// processed inline and failed; the job carries the reason
			middleware.WriteJSON(w, http.StatusUnprocessableEntity, job)
			return
		}
		middleware.WriteServiceError(w, err, "Failed to upload statement")
		return
	}

	status := http.StatusAccepted
	if job.Status == jobs.JobStatusCompleted {
		status = http.StatusCreated
	}
	middleware.WriteJSON(w, status, job)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
// Jobs owned by another user are reported as not found.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil || job.UserID != userID {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
			return
		}
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: middleware.UserID(ctx),
		Type:   jobs.JobType(query.Get("type")),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
