// Package chat drives the guided "build your offer" conversation: it turns
// one user message into an ordered stream of text, cards and progress.
package chat

import (
	"errors"

	"github.com/ashureev/offerforge/internal/domain"
)

// ChatRequest is the body of a streaming turn. At most one of Message and
// Response is set; an empty request resumes the conversation.
type ChatRequest struct {
	Message  string               `json:"message,omitempty"`
	Response *domain.CardResponse `json:"response,omitempty"`
	SystemID string               `json:"-"`
	UserID   string               `json:"-"`
}

// UserError is a failure the user can correct. Its message is shown as is.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message }
func (e *UserError) Unwrap() error { return e.Err }

func userErr(msg string, err error) error {
	return &UserError{Message: msg, Err: err}
}

var (
	// ErrBusy is returned when another turn for the system is still running.
	ErrBusy = errors.New("another turn is in progress")
	// ErrBothInputs is returned when a request carries a message and a response.
	ErrBothInputs = errors.New("send either a message or a card response")
	// ErrFinalised is returned when editing the offer of a completed system.
	ErrFinalised = errors.New("offer already finalised")
)

const genericFailure = "Something went wrong on our side. Please try again."

// PublicMessage returns the text safe to put in an error event.
func PublicMessage(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return genericFailure
}
