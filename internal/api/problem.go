package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/offerforge/internal/conversation"
	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/store"
	"github.com/ashureev/offerforge/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
	// Redirect tells the client where to re-establish its identity.
	Redirect string `json:"redirect,omitempty"`
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

var problemTypes = map[int]problemType{
	http.StatusBadRequest:            {"https://offerforge.dev/errors/bad-request", "Bad Request"},
	http.StatusUnauthorized:          {"https://offerforge.dev/errors/unauthorized", "Unauthorized"},
	http.StatusNotFound:              {"https://offerforge.dev/errors/not-found", "Not Found"},
	http.StatusConflict:              {"https://offerforge.dev/errors/conflict", "Conflict"},
	http.StatusRequestEntityTooLarge: {"https://offerforge.dev/errors/too-large", "Request Entity Too Large"},
	http.StatusUnprocessableEntity:   {"https://offerforge.dev/errors/validation-error", "Validation Error"},
	http.StatusTooManyRequests:       {"https://offerforge.dev/errors/rate-limit", "Too Many Requests"},
	http.StatusInternalServerError:   {"https://offerforge.dev/errors/internal-error", "Internal Server Error"},
	http.StatusServiceUnavailable:    {"https://offerforge.dev/errors/service-unavailable", "Service Unavailable"},
}

func newProblem(r *http.Request, status int, detail string) Problem {
	pt, ok := problemTypes[status]
	if !ok {
		pt = problemType{typeURI: "https://offerforge.dev/errors/unknown", title: http.StatusText(status)}
	}
	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
	if status == http.StatusUnauthorized {
		p.Redirect = "/"
	}
	return p
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblemBody(w, status, newProblem(r, status, detail))
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	writeProblemBody(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: newProblem(r, http.StatusUnprocessableEntity, detail),
		Errors:  errs,
	})
}

// Unauthorized is the identity middleware's rejection.
func Unauthorized(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, r, http.StatusUnauthorized, "Your session has expired. Please start again.")
}

// IdentityFailed is written when no identity could be established.
func IdentityFailed(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
}

// MapError converts domain errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		WriteProblemWithErrors(w, r, "Some fields are invalid", verr.Fields)
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "System not found")
	case errors.Is(err, conversation.ErrNotArray):
		WriteProblem(w, r, http.StatusBadRequest, "messages must be an array")
	case errors.Is(err, domain.ErrInvalidCard):
		WriteProblem(w, r, http.StatusUnprocessableEntity, "A message carries an invalid card")
	case errors.Is(err, store.ErrConflict):
		WriteProblem(w, r, http.StatusServiceUnavailable, "The database is busy. Please retry.")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
