package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/edison/internal/errors"
	"github.com/3leaps/edison/pkg/jobs"
)

// DefaultJobCount is the page size of job listings without ?count.
const DefaultJobCount = 10

// JobService is the part of jobs.Service the job endpoints use.
type JobService interface {
	StartAsyncJob(ctx context.Context, jobType string) (string, error)
	FindJob(ctx context.Context, idOrURI string) (*jobs.Record, error)
	FindJobs(ctx context.Context, jobType string, n int) ([]*jobs.Record, error)
	DeleteJobs(ctx context.Context, jobType string) (int, error)
	KillJob(ctx context.Context, idOrURI string) error
	Definitions() []jobs.Definition
}

// JobHandlers serves the job endpoints.
type JobHandlers struct {
	svc        JobService
	logger     *zap.Logger
	respondErr HTTPErrorResponder
}

// NewJobHandlers creates handlers backed by svc.
func NewJobHandlers(svc JobService, logger *zap.Logger) *JobHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandlers{svc: svc, logger: logger, respondErr: DefaultErrorResponder}
}

// WithErrorResponder sets how failures are written. nil restores
// DefaultErrorResponder.
func (h *JobHandlers) WithErrorResponder(responder HTTPErrorResponder) *JobHandlers {
	h.respondErr = responderOrDefault(responder)
	return h
}

// JobList is the body of a job listing.
type JobList struct {
	Jobs  []*jobs.Record `json:"jobs"`
	Count int            `json:"count"`
}

// List serves GET /internal/jobs?type=&count=.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	count := DefaultJobCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondErr(w, r, apperrors.New(http.StatusBadRequest, apperrors.CodeBadRequest,
				"count must be a positive integer"))
			return
		}
		count = n
	}

	records, err := h.svc.FindJobs(r.Context(), r.URL.Query().Get("type"), count)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if records == nil {
		records = []*jobs.Record{}
	}
	writeJSON(w, http.StatusOK, JobList{Jobs: records, Count: len(records)})
}

// Get serves GET /internal/jobs/{id}.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.FindJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// StartResponse is the body of an accepted trigger.
type StartResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// Start serves POST /internal/jobs/{jobType}. The job runs asynchronously;
// the Location header points at its record.
func (h *JobHandlers) Start(w http.ResponseWriter, r *http.Request) {
	jobType := chi.URLParam(r, "jobType")
	uri, err := h.svc.StartAsyncJob(r.Context(), jobType)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.logger.Info("Job triggered over HTTP",
		zap.String("job_type", jobType),
		zap.String("job_uri", uri))

	w.Header().Set("Location", uri)
	writeJSON(w, http.StatusAccepted, StartResponse{ID: jobs.IDFromURI(uri), URI: uri})
}

// DeleteResponse is the body of a delete.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// Delete serves DELETE /internal/jobs?type=. Running jobs are kept.
func (h *JobHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteJobs(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// Kill serves POST /internal/jobs/{id}/kill.
func (h *JobHandlers) Kill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.KillJob(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	rec, err := h.svc.FindJob(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Definitions serves GET /internal/jobdefinitions.
func (h *JobHandlers) Definitions(w http.ResponseWriter, _ *http.Request) {
	defs := h.svc.Definitions()
	if defs == nil {
		defs = []jobs.Definition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"definitions": defs})
}
