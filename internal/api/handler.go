// Package api provides the HTTP handlers for the offer builder.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/offerforge/internal/chat"
	"github.com/ashureev/offerforge/internal/conversation"
	"github.com/ashureev/offerforge/internal/store"
)

const (
	// defaultMaxRequestBodySize is the default maximum allowed request body size (64KB).
	defaultMaxRequestBodySize = 64 << 10
	defaultTurnTimeout        = 5 * time.Minute
)

// Options tunes the handlers.
type Options struct {
	MaxBodyBytes int64
	// TurnTimeout bounds a streaming turn after the client has gone.
	TurnTimeout time.Duration
	// Limiter throttles chat turns per user; nil disables throttling.
	Limiter *RateLimiter
}

// Handler serves the REST and streaming endpoints.
type Handler struct {
	repo   store.Repository
	conv   *conversation.Service
	chat   *chat.Service
	gen    chat.Generator
	pregen chat.Scheduler
	opts   Options
}

// NewHandler creates a Handler. pregen may be nil when pre-generation is off.
func NewHandler(repo store.Repository, chatSvc *chat.Service, gen chat.Generator, pregen chat.Scheduler, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxRequestBodySize
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = defaultTurnTimeout
	}
	return &Handler{
		repo:   repo,
		conv:   conversation.NewService(repo),
		chat:   chatSvc,
		gen:    gen,
		pregen: pregen,
		opts:   opts,
	}
}

// RegisterRoutes registers every /api route. Identity must already be resolved.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.PutProfile)

		r.Route("/systems", func(r chi.Router) {
			r.Get("/", h.ListSystems)
			r.Post("/", h.CreateSystem)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSystem)
				r.Put("/messages", h.PutMessages)
				r.Post("/reset", h.ResetHistory)
				r.Post("/chat", h.Chat)
				r.Post("/pregenerate", h.Pregenerate)
				r.Put("/offer", h.PutOffer)
			})
		})

		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/offer", h.PipelineOffer)
			r.Post("/analyze", h.PipelineAnalyze)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// readBody reads the capped request body, writing the problem itself on failure.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		WriteProblem(w, r, http.StatusBadRequest, "could not read request body")
		return nil, false
	}
	return data, true
}

// decodeJSON decodes the capped request body into v.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	data, ok := h.readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func systemID(r *http.Request) string {
	return chi.URLParam(r, "id")
}
