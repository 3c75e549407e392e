// Package api exposes the HTTP interface for the novelbind service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/job"
	"github.com/bindery/novelbind/internal/novel"
)

// JobService is the coordinator surface the API depends on.
type JobService interface {
	Submit(ctx context.Context, req novel.JobRequest) (novel.Job, error)
	Status(ctx context.Context, jobID string) (novel.Job, error)
	Cancel(ctx context.Context, jobID string) error
}

// Server wires HTTP handlers to the job service.
type Server struct {
	router chi.Router
	jobs   JobService
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(jobs JobService, logger *zap.Logger) *Server {
	s := &Server{jobs: jobs, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/result", s.getJobResult)
				r.Post("/cancel", s.cancelJob)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	URL          string   `json:"url"`
	FirstChapter int      `json:"first_chapter"`
	LastChapter  int      `json:"last_chapter"`
	Formats      []string `json:"formats"`
	Policy       string   `json:"policy"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	formats := make([]novel.Format, 0, len(req.Formats))
	for _, f := range req.Formats {
		format, ok := novel.ParseFormat(f)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown format: "+f)
			return
		}
		formats = append(formats, format)
	}

	j, err := s.jobs.Submit(r.Context(), novel.JobRequest{
		WorkURL: req.URL,
		Range:   novel.ChapterRange{First: req.FirstChapter, Last: req.LastChapter},
		Formats: formats,
		Policy:  novel.Policy(req.Policy),
	})
	if err != nil {
		switch {
		case errors.Is(err, novel.ErrAdapterNotFound):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, job.ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": j.ID,
		"site":   j.Site,
		"status": string(j.Status),
	})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	j, err := s.jobs.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": j})
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	j, err := s.jobs.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if j.Status != novel.JobStatusCompleted {
		writeError(w, http.StatusConflict, "job not completed: "+string(j.Status))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":    j.ID,
		"title":     j.Title,
		"artifacts": j.Artifacts,
		"gaps":      j.Gaps,
	})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.jobs.Cancel(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, novel.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, job.ErrNotCancellable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": string(novel.JobStatusCancelled),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
