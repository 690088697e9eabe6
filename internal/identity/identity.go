// Package identity provides the anonymous per-device identity that scopes
// every system to its owner.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/offerforge/internal/domain"
)

const (
	CookieName      = "offerforge_uid"
	cookieMaxAge    = 30 * 24 * time.Hour
	lastSeenRefresh = 5 * time.Minute
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
)

var anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)

// UserStore is the slice of the store identity needs.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
}

// Options configures the middleware.
type Options struct {
	// AllowAnonymous lets a request without a known identity get a new one.
	// When false such requests are passed to Unauthorized.
	AllowAnonymous bool
	// Secure marks the cookie Secure; off in development.
	Secure bool
	// Unauthorized writes the rejection; a bare 401 when nil.
	Unauthorized http.HandlerFunc
	// Failed writes the response when identity cannot be established.
	Failed http.HandlerFunc
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// WithUser returns ctx carrying the given identity.
func WithUser(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, deriveUsername(userID))
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func deriveUsername(userID string) string {
	if len(userID) > 13 {
		return "anon-" + userID[len(userID)-8:]
	}
	return "anon-user"
}

// resolve returns the known user for the cookie, creating one when allowed.
func resolve(ctx context.Context, repo UserStore, cookieID string, allowAnonymous bool) (userID string, created bool, err error) {
	if isValidAnonID(cookieID) {
		user, err := repo.GetUser(ctx, cookieID)
		if err != nil {
			return "", false, err
		}
		if user != nil {
			if time.Since(user.LastSeenAt) > lastSeenRefresh {
				if err := repo.UpdateLastSeen(ctx, user.UserID, time.Now()); err != nil {
					slog.Warn("failed to refresh last seen", "user_id", user.UserID, "error", err)
				}
			}
			return user.UserID, false, nil
		}
		if allowAnonymous {
			return cookieID, true, createUser(ctx, repo, cookieID)
		}
		return "", false, nil
	}
	if !allowAnonymous {
		return "", false, nil
	}
	id, err := generateAnonID()
	if err != nil {
		return "", false, err
	}
	return id, true, createUser(ctx, repo, id)
}

func createUser(ctx context.Context, repo UserStore, userID string) error {
	now := time.Now()
	return repo.UpsertUser(ctx, &domain.User{
		UserID:     userID,
		Username:   deriveUsername(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func setCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Expires:  time.Now().Add(cookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// Middleware resolves the caller's identity and stores it in the context.
func Middleware(repo UserStore, opts Options) func(http.Handler) http.Handler {
	unauthorized := opts.Unauthorized
	if unauthorized == nil {
		unauthorized = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		}
	}
	failed := opts.Failed
	if failed == nil {
		failed = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"failed to establish identity"}`, http.StatusInternalServerError)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookieID string
			if c, err := r.Cookie(CookieName); err == nil {
				cookieID = c.Value
			}

			userID, _, err := resolve(r.Context(), repo, cookieID, opts.AllowAnonymous)
			if err != nil {
				slog.Error("identity resolution failed", "error", err)
				failed(w, r)
				return
			}
			if userID == "" {
				unauthorized(w, r)
				return
			}

			setCookie(w, userID, opts.Secure)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request logging.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
