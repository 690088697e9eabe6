// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/offerforge/internal/domain"
)

// Repository defines the persistence operations the service issues.
// Every system mutation is scoped by system id and user id; a system owned by
// someone else is reported as ErrNotFound.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetProfile retrieves a user's profile. Returns nil, nil when absent.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// UpsertProfile creates or replaces a user's profile.
	UpsertProfile(ctx context.Context, profile *domain.Profile) error

	// CreateSystem inserts a new system.
	CreateSystem(ctx context.Context, system *domain.System) error

	// GetSystem retrieves a system owned by userID.
	GetSystem(ctx context.Context, systemID, userID string) (*domain.System, error)

	// ListSystems returns the user's systems, newest first.
	ListSystems(ctx context.Context, userID string) ([]*domain.System, error)

	// SetChosenRecommendation stores the recommendation only if none is set yet.
	// It reports whether the write happened.
	SetChosenRecommendation(ctx context.Context, systemID, userID string, rec *domain.ChosenRecommendation) (bool, error)

	// SetAnswer stores one offer answer on the system.
	SetAnswer(ctx context.Context, systemID, userID string, field domain.AnswerField, value string) error

	// SaveOfferIfAbsent stores the offer only while the system has no populated
	// offer (missing, or without a transformation narrative). It reports
	// whether the write happened; a false return means another writer won.
	SaveOfferIfAbsent(ctx context.Context, systemID, userID string, offer *domain.AssembledOffer) (bool, error)

	// UpdateOffer replaces the offer with a user-edited one.
	UpdateOffer(ctx context.Context, systemID, userID string, offer *domain.AssembledOffer) error

	// UpdateStatus sets the system status.
	UpdateStatus(ctx context.Context, systemID, userID string, status domain.SystemStatus) error

	// ReplaceMessages stores the full display history wholesale.
	ReplaceMessages(ctx context.Context, systemID, userID string, messages []domain.DisplayMessage) error

	// AppendConversationHistory appends compact entries to the persisted history.
	AppendConversationHistory(ctx context.Context, systemID, userID string, entries []domain.ConversationMessage) error

	// ResetConversationHistory clears the compact history. It does not touch
	// the offer, the chosen recommendation or the display messages.
	ResetConversationHistory(ctx context.Context, systemID, userID string) error

	// ListSystemsAwaitingOffer returns in-progress systems with a chosen
	// recommendation and no offer that were last updated before idleSince.
	ListSystemsAwaitingOffer(ctx context.Context, idleSince time.Time, limit int) ([]*domain.System, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
