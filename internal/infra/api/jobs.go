package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

type jobListResponse struct {
	Jobs []domain.Job `json:"jobs"`
}

type jobDetailResponse struct {
	Job      domain.Job             `json:"job"`
	StageLog []domain.StageLogEntry `json:"stageLog"`
}

type cancelResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SubmitJob handles POST /api/jobs. The job runs asynchronously; the
// response carries the created record so callers can poll or stream it.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var input domain.PipelineInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{
			Error: "invalid request body",
			Code:  string(domain.CodeInvalidArgument),
		})
		return
	}

	job, err := h.runner.Submit(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, job)
}

// ListJobs handles GET /api/jobs. `status` filters on exact job status,
// `limit` caps the result; both are ignored when unusable.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListJobs(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	query := r.URL.Query()
	if status := query.Get("status"); status != "" {
		filtered := make([]domain.Job, 0, len(jobs))
		for _, job := range jobs {
			if job.Status == domain.JobStatus(status) {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}
	if raw := query.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit < len(jobs) {
			jobs = jobs[:limit]
		}
	}

	if jobs == nil {
		jobs = []domain.Job{}
	}
	h.respondJSON(w, http.StatusOK, jobListResponse{Jobs: jobs})
}

// GetJob handles GET /api/jobs/{id} with the per-stage history attached.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	log, err := h.store.StageLog(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if log == nil {
		log = []domain.StageLogEntry{}
	}
	h.respondJSON(w, http.StatusOK, jobDetailResponse{Job: job, StageLog: log})
}

// CancelJob handles POST /api/jobs/{id}/cancel. Cancellation is observed at
// the next stage boundary, so the response only acknowledges the request.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := h.runner.Cancel(r.Context(), jobID); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, cancelResponse{ID: jobID, Status: "cancelling"})
}
