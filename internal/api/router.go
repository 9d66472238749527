package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/store"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(pipe *pipeline.Pipeline, db store.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(pipe, db)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Ingestion entry point.
	r.Post("/candidates", h.IngestCandidate)
	r.Get("/candidates/{id}", h.GetCandidateResult)

	// Loops.
	r.Get("/loops", h.ListLoops)
	r.Get("/loops/{id}", h.GetLoop)
	r.Post("/loops/{id}/reevaluate", h.Reevaluate)

	// Decision export.
	r.Get("/decisions", h.ListDecisions)
	r.Get("/decisions/{loop_id}", h.GetDecision)

	// Reporting.
	r.Get("/stats", h.Stats)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
