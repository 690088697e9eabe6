// Package domain contains core domain types for the offer builder.
package domain

import (
	"time"
)

// User represents a visitor building one or more systems.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsIdleSince reports whether the user has not been seen since the cutoff.
func (u *User) IsIdleSince(cutoff time.Time) bool {
	return u.LastSeenAt.Before(cutoff)
}
