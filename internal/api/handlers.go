package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	pipe *pipeline.Pipeline
	db   store.Store
}

// NewHandler creates a new Handler.
func NewHandler(pipe *pipeline.Pipeline, db store.Store) *Handler {
	return &Handler{pipe: pipe, db: db}
}

// IngestCandidate handles POST /api/candidates.
//
// Synchronous by default: the candidate runs the full pipeline and the
// final Decision is returned. With ?async=1 the candidate is queued and a
// correlation id returned for pickup at GET /api/candidates/{id}.
func (h *Handler) IngestCandidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	if r.URL.Query().Get("async") == "1" {
		corrID := h.pipe.Enqueue(req.Candidate())
		writeJSON(w, http.StatusAccepted, AsyncAccepted{CorrelationID: corrID})
		return
	}

	res, err := h.pipe.Ingest(r.Context(), req.Candidate())
	if err != nil {
		slog.Error("ingest failed", slog.String("source_url", req.SourceURL), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	switch res.Outcome {
	case pipeline.OutcomeRejectedMalformed:
		writeJSON(w, http.StatusBadRequest, res)
	case pipeline.OutcomeDuplicateIngestion:
		writeJSON(w, http.StatusOK, res)
	default:
		writeJSON(w, http.StatusCreated, res)
	}
}

// GetCandidateResult handles GET /api/candidates/{id}: async pickup by
// correlation id. Falls back to the decision store so callers can use the
// loop id directly.
func (h *Handler) GetCandidateResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if res, ok := h.pipe.AsyncResult(id); ok {
		writeJSON(w, http.StatusOK, res)
		return
	}
	decision, err := h.db.GetDecision(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusOK, pipeline.Result{
			Outcome:  pipeline.OutcomeCreated,
			LoopID:   decision.LoopID,
			Decision: decision,
		})
		return
	}
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("unknown or still processing"))
		return
	}
	slog.Error("candidate result failed", slog.String("id", id), slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// ListLoops handles GET /api/loops with pagination and filtering.
func (h *Handler) ListLoops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	loops, total, err := h.db.ListLoops(r.Context(), store.LoopFilter{
		SourceType:  q.Get("source_type"),
		Category:    q.Get("category"),
		Disposition: q.Get("disposition"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		slog.Error("list loops failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, LoopListResponse{Loops: loops, Total: total})
}

// GetLoop handles GET /api/loops/{id}: the loop plus its pipeline
// artifacts.
func (h *Handler) GetLoop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	loop, err := h.db.GetLoop(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get loop failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	detail := LoopDetail{Loop: *loop}
	if fs, err := h.db.GetFeatureSet(r.Context(), id); err == nil {
		detail.Features = fs
	}
	if d, err := h.db.GetDecision(r.Context(), id); err == nil {
		detail.Decision = d
	}
	if links, err := h.db.DuplicateLinks(r.Context(), id); err == nil {
		detail.DuplicateLinks = links
	}
	writeJSON(w, http.StatusOK, detail)
}

// Reevaluate handles POST /api/loops/{id}/reevaluate: forced re-run under
// the currently configured stage versions.
func (h *Handler) Reevaluate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ReevaluateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}

	res, err := h.pipe.Reevaluate(r.Context(), id, req.Metadata)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("reevaluate failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListDecisions handles GET /api/decisions: the pollable decision log.
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	var since time.Time
	if raw := q.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("since must be RFC3339"))
			return
		}
		since = parsed
	}

	decisions, err := h.db.ListDecisions(r.Context(), since, limit)
	if err != nil {
		slog.Error("list decisions failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, DecisionListResponse{Decisions: decisions})
}

// GetDecision handles GET /api/decisions/{loop_id}.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "loop_id")
	decision, err := h.db.GetDecision(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get decision failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.Stats(r.Context())
	if err != nil {
		slog.Error("stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{PipelineStats: stats, QueueDepth: h.pipe.QueueDepth()})
}
