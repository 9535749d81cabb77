package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/worker"
)

const maxListLimit = 100

type submitRunResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SubmitRun handles POST /runs. A queued report is stored before the job is
// handed to the pool, so the Location URL resolves at once; the worker
// overwrites it when the run ends.
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	job := worker.NewJob(worker.TriggerAPI)
	report := domain.RunReport{ID: job.ID, StartedAt: job.Submitted, Outcome: domain.OutcomeQueued}
	if err := h.runs.SaveRun(r.Context(), report); err != nil {
		h.log.Error().Err(err).Str("run_id", job.ID).Msg("failed to record queued run")
		writeError(w, http.StatusInternalServerError, "failed to queue run")
		return
	}

	if !h.jobs.Submit(job) {
		report.Outcome = domain.OutcomeFailed
		report.FinishedAt = time.Now()
		report.Error = "run queue is full"
		if err := h.runs.SaveRun(context.WithoutCancel(r.Context()), report); err != nil {
			h.log.Warn().Err(err).Str("run_id", job.ID).Msg("failed to record rejected run")
		}
		writeError(w, http.StatusServiceUnavailable, "run queue is full")
		return
	}

	w.Header().Set("Location", "/runs/"+job.ID)
	writeJSON(w, http.StatusAccepted, submitRunResponse{ID: job.ID, Status: string(domain.OutcomeQueued)})
}

// GetRun handles GET /runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.log.Error().Err(err).Str("run_id", id).Msg("failed to load run")
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ListRuns handles GET /runs?limit=N
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	reports, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, reports)
}
