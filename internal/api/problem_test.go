package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashureev/offerforge/internal/store"
	"github.com/ashureev/offerforge/internal/validation"
)

func TestWriteProblem_UnauthorizedCarriesRedirect(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)

	Unauthorized(w, r)

	p := decodeProblem(t, w)
	assert.Equal(t, http.StatusUnauthorized, p.Status)
	assert.Equal(t, "/", p.Redirect)
	assert.Equal(t, "/api/me", p.Instance)
}

func TestMapError(t *testing.T) {
	var c validation.Collector
	c.Addf("pricing_setup", "must be non-negative")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound},
		{"validation", c.Err(), http.StatusUnprocessableEntity},
		{"busy", fmt.Errorf("write: %w", store.ErrConflict), http.StatusServiceUnavailable},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			MapError(w, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
			assert.Equal(t, tt.want, w.Code)
			p := decodeProblem(t, w)
			assert.Empty(t, p.Redirect)
			assert.NotContains(t, p.Detail, "disk on fire")
		})
	}
}
