// Package quality validates agent output before the pipeline accepts it.
// Gates are pure: no network, no persistence.
package quality

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRejected wraps every gate rejection.
var ErrRejected = errors.New("output rejected")

// Verdict is the outcome of one validation.
type Verdict[T any] struct {
	Accepted bool
	Value    T
	Reason   string
}

// Err returns nil for an accepted verdict and a wrapped ErrRejected otherwise.
func (v Verdict[T]) Err() error {
	if v.Accepted {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRejected, v.Reason)
}

// Check inspects one aspect of an output and returns a reason when it fails.
type Check[T any] func(T) (reason string, ok bool)

// Gate runs its checks in order and rejects on the first failure.
type Gate[T any] struct {
	name   string
	checks []Check[T]
}

// NewGate builds a named gate.
func NewGate[T any](name string, checks ...Check[T]) *Gate[T] {
	return &Gate[T]{name: name, checks: checks}
}

// Name identifies the gate in logs.
func (g *Gate[T]) Name() string { return g.name }

// Validate accepts out or returns the first failing reason.
func (g *Gate[T]) Validate(out T) Verdict[T] {
	for _, check := range g.checks {
		if reason, ok := check(out); !ok {
			return Verdict[T]{Reason: reason}
		}
	}
	return Verdict[T]{Accepted: true, Value: out}
}

func requireText(field, value string, minLen int) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return field + " is empty", false
	}
	if len(v) < minLen {
		return fmt.Sprintf("%s is shorter than %d characters", field, minLen), false
	}
	return "", true
}
