// Package api serves a read-only view of migration runs while they execute.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rflorenc/profilemig/internal/history"
	"github.com/rflorenc/profilemig/internal/models"
)

// History is the subset of history.Store the API reads.
type History interface {
	Runs(ctx context.Context, limit int) ([]history.RunRecord, error)
	Events(ctx context.Context, runID string) ([]history.Event, error)
}

// Server holds shared state for all API handlers.
type Server struct {
	Runs    *models.RunStore
	History History // optional
	Version string
}

// NewRouter builds the chi router with all API routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.Healthz)

		r.Get("/runs", s.ListRuns)
		r.Get("/runs/{id}", s.GetRun)
		r.Get("/runs/{id}/events", s.ListRunEvents)

		r.Get("/history", s.ListHistory)
	})

	// WebSocket (outside /api to avoid JSON content-type assumptions)
	r.Get("/ws/runs/{id}/logs", s.StreamRunLogs)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
