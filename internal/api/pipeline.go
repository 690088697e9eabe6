package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/observability"
	"github.com/ashureev/offerforge/internal/pipeline"
	"github.com/ashureev/offerforge/internal/validation"
)

// PipelineOffer runs the offer pipeline synchronously. A failed run is still
// a 200: the body carries status failed with the partial offer.
func (h *Handler) PipelineOffer(w http.ResponseWriter, r *http.Request) {
	var in pipeline.Input
	if !h.decodeJSON(w, r, &in) {
		return
	}
	res, err := h.gen.Generate(r.Context(), in, nil)
	if err != nil {
		MapError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// PipelineAnalyze runs the niche analysis for a profile.
func (h *Handler) PipelineAnalyze(w http.ResponseWriter, r *http.Request) {
	var profile domain.Profile
	if !h.decodeJSON(w, r, &profile) {
		return
	}
	recs, err := h.gen.Analyze(r.Context(), profile)
	if err != nil {
		if errors.Is(err, validation.ErrInvalid) {
			MapError(w, r, err)
			return
		}
		observability.LoggerFromContext(r.Context()).Warn("analysis failed", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "The analysis is unavailable right now. Please try again.")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"recommendations": recs})
}
