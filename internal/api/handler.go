// Package api exposes the thin HTTP surface the submitting service uses:
// dispatch a job, query its status. Business routes live elsewhere; this is
// only the boundary onto the task subsystem.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskforge/internal/dispatch"
	"taskforge/internal/store"
	"taskforge/internal/taskerr"
)

const defaultMaxAttempts = 3

type Server struct {
	dispatcher *dispatch.Dispatcher
	statuses   store.StatusStore
	logger     *slog.Logger
}

func NewServer(d *dispatch.Dispatcher, statuses store.StatusStore, logger *slog.Logger) *Server {
	return &Server{dispatcher: d, statuses: statuses, logger: logger}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/jobs", s.submitJob)
	r.Get("/jobs/{id}", s.getJob)
	return r
}

type submitRequest struct {
	Task        string `json:"task"`
	Args        []any  `json:"args"`
	MaxAttempts int    `json:"max_attempts"`
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type statusResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Attempts  int    `json:"attempts"`
	UpdatedAt string `json:"updated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Task == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "task is required"})
		return
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = defaultMaxAttempts
	}
	if req.MaxAttempts < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "max_attempts must be at least 1"})
		return
	}

	jobID, err := s.dispatcher.Submit(r.Context(), req.Task, req.Args, req.MaxAttempts)
	if err != nil {
		if errors.Is(err, taskerr.ErrPublishUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "queue unavailable, try again later"})
			return
		}
		s.logger.Error("submit failed", "task", req.Task, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID, Status: "accepted"})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	rec, err := s.statuses.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
			return
		}
		s.logger.Error("status lookup failed", "job_id", jobID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "status lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		JobID:     rec.JobID,
		Status:    rec.Status.String(),
		Detail:    rec.Detail,
		Attempts:  rec.Attempts,
		UpdatedAt: rec.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
