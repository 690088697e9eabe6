package store

import (
	"errors"
	"fmt"

	"github.com/ashureev/offerforge/internal/shared"
)

var (
	// ErrNotFound is returned when a system does not exist or belongs to another user.
	ErrNotFound = errors.New("system not found")

	// ErrConflict is returned when SQLite stayed busy through every retry.
	ErrConflict = errors.New("database busy")

	// ErrInvalidField is returned by SetAnswer for an unknown answer field.
	ErrInvalidField = errors.New("unknown answer field")
)

// classify maps driver-level concurrency failures onto ErrConflict.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if shared.IsConflict(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
