package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ashureev/offerforge/internal/chat"
	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/identity"
	"github.com/ashureev/offerforge/internal/observability"
	"github.com/ashureev/offerforge/internal/validation"
)

// GetMe returns the caller's identity.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if user == nil {
		Unauthorized(w, r)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  user.UserID,
		"username": user.Username,
	})
}

// GetProfile returns the caller's profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.repo.GetProfile(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		MapError(w, r, err)
		return
	}
	if profile == nil {
		WriteProblem(w, r, http.StatusNotFound, "No profile yet")
		return
	}
	JSON(w, http.StatusOK, profile)
}

// PutProfile validates and stores the caller's profile.
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var profile domain.Profile
	if !h.decodeJSON(w, r, &profile) {
		return
	}
	profile.UserID = identity.UserIDFromContext(r.Context())

	var c validation.Collector
	validation.Profile(&c, &profile)
	if err := c.Err(); err != nil {
		MapError(w, r, err)
		return
	}
	if err := h.repo.UpsertProfile(r.Context(), &profile); err != nil {
		MapError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, profile)
}

// ListSystems returns the caller's systems, newest first.
func (h *Handler) ListSystems(w http.ResponseWriter, r *http.Request) {
	systems, err := h.repo.ListSystems(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		MapError(w, r, err)
		return
	}
	if systems == nil {
		systems = []*domain.System{}
	}
	JSON(w, http.StatusOK, systems)
}

// CreateSystem starts a new system for the caller.
func (h *Handler) CreateSystem(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	sys := &domain.System{
		ID:                  ulid.Make().String(),
		UserID:              identity.UserIDFromContext(r.Context()),
		Status:              domain.StatusInProgress,
		ConversationHistory: []domain.ConversationMessage{},
		Messages:            []domain.DisplayMessage{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := h.repo.CreateSystem(r.Context(), sys); err != nil {
		MapError(w, r, err)
		return
	}
	observability.LoggerFromContext(r.Context()).Info("system created", "system_id", sys.ID, "user_id", sys.UserID)
	JSON(w, http.StatusCreated, sys)
}

// GetSystem returns one system record.
func (h *Handler) GetSystem(w http.ResponseWriter, r *http.Request) {
	sys, err := h.repo.GetSystem(r.Context(), systemID(r), identity.UserIDFromContext(r.Context()))
	if err != nil {
		MapError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, sys)
}

// PutMessages replaces the display history wholesale.
func (h *Handler) PutMessages(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readBody(w, r)
	if !ok {
		return
	}
	err := h.conv.SaveDisplay(r.Context(), systemID(r), identity.UserIDFromContext(r.Context()), json.RawMessage(data))
	if err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetHistory clears the compact history only.
func (h *Handler) ResetHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.conv.Reset(r.Context(), systemID(r), identity.UserIDFromContext(r.Context())); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pregenerate schedules background offer generation and returns immediately.
func (h *Handler) Pregenerate(w http.ResponseWriter, r *http.Request) {
	if h.pregen == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Pre-generation is disabled")
		return
	}
	userID := identity.UserIDFromContext(r.Context())
	if _, err := h.repo.GetSystem(r.Context(), systemID(r), userID); err != nil {
		MapError(w, r, err)
		return
	}
	h.pregen.Schedule(r.Context(), systemID(r), userID)
	JSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// PutOffer stores a user-edited offer and marks the system offer_ready.
func (h *Handler) PutOffer(w http.ResponseWriter, r *http.Request) {
	var offer domain.AssembledOffer
	if !h.decodeJSON(w, r, &offer) {
		return
	}
	saved, err := h.chat.EditOffer(r.Context(), systemID(r), identity.UserIDFromContext(r.Context()), offer)
	switch {
	case errors.Is(err, chat.ErrBusy):
		WriteProblem(w, r, http.StatusConflict, "A reply is still being written for this system")
	case errors.Is(err, chat.ErrFinalised):
		WriteProblem(w, r, http.StatusConflict, "This offer has already been finalised")
	case err != nil:
		MapError(w, r, err)
	default:
		JSON(w, http.StatusOK, saved)
	}
}
