package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/jobrunner"
)

// CreateJobRequest is the body of POST /v1/jobs.
type CreateJobRequest struct {
	Kind string            `json:"kind" validate:"required,max=64"`
	Task string            `json:"task" validate:"required"`
	Args []json.RawMessage `json:"args"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	ctx := r.Context()
	rec, err := a.svc.CreateJob(ctx, req.Kind)
	if err != nil {
		a.logger.Error("failed to create job", slog.String("kind", req.Kind), slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	jobID := rec.ID.String()

	args := make([]any, len(req.Args))
	for i, raw := range req.Args {
		args[i] = raw
	}
	if err := a.svc.Submit(ctx, jobID, req.Task, args...); err != nil {
		// The job never ran; do not leave its directory behind.
		a.svc.FinalizeJob(context.WithoutCancel(ctx), jobID)
		if errors.Is(err, jobrunner.ErrTaskNotRegistered) {
			respondError(w, http.StatusBadRequest, "unknown task: "+req.Task)
			return
		}
		a.logger.Error("failed to submit job",
			slog.String("job_id", jobID),
			slog.String("task", req.Task),
			slog.String("error", err.Error()),
		)
		respondError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	respondJSON(w, http.StatusAccepted, rec.Public())
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	ps, ok := a.svc.GetPublicStatus(r.Context(), chi.URLParam(r, "jobID"))
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, ps)
}

func (a *API) finalizeJob(w http.ResponseWriter, r *http.Request) {
	if !a.svc.FinalizeJob(r.Context(), chi.URLParam(r, "jobID")) {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.svc.Ping(ctx); err != nil {
		a.logger.Warn("health check failed", slog.String("error", err.Error()))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg})
}
