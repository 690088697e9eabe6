package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/offerforge/internal/chat"
	"github.com/ashureev/offerforge/internal/identity"
	"github.com/ashureev/offerforge/internal/observability"
	"github.com/ashureev/offerforge/internal/stream"
)

// Chat handles POST /api/systems/{id}/chat: one streamed turn.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)

	// Rate-limit by user so rotating systems does not bypass throttling.
	if h.opts.Limiter != nil && !h.opts.Limiter.Allow(userID) {
		WriteProblem(w, r, http.StatusTooManyRequests, "Too many messages. Please wait a moment.")
		return
	}

	var req chat.ChatRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	req.SystemID = systemID(r)
	req.UserID = userID

	turn, err := h.chat.Begin(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrBusy):
			WriteProblem(w, r, http.StatusConflict, "A reply is still being written for this system")
		case errors.Is(err, chat.ErrBothInputs):
			WriteProblem(w, r, http.StatusBadRequest, err.Error())
		default:
			MapError(w, r, err)
		}
		return
	}

	sse, err := stream.NewSSEWriter(w)
	if err != nil {
		turn.Release()
		WriteProblem(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx = observability.WithSystemID(ctx, req.SystemID)
	log := observability.LoggerFromContext(ctx)
	log.Info("chat turn started",
		"user_id", userID,
		"username", identity.UsernameFromContext(ctx),
		"message_length", len(req.Message),
		"card_response", req.Response != nil,
	)

	// The turn outlives a disconnected client so its writes land; once the
	// client is gone events are dropped rather than failing the turn.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.TurnTimeout)
	defer cancel()
	gone := false
	sink := stream.SinkFunc(func(e stream.Event) error {
		if gone {
			return nil
		}
		if err := sse.Send(e); err != nil {
			gone = true
			log.Warn("client went away mid-turn", "error", err)
		}
		return nil
	})
	if err := turn.Run(turnCtx, sink); err != nil {
		log.Debug("chat turn ended with error", "error", err)
	}
}
