// Package stream defines the server events of one conversation turn, the
// sequencer that keeps them in protocol order and the SSE encoder.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashureev/offerforge/internal/domain"
)

// Type is the wire discriminator of an Event.
type Type string

const (
	TypeTextDelta Type = "text-delta"
	TypeTextDone  Type = "text-done"
	TypeToolStart Type = "tool-start"
	TypeProgress  Type = "progress"
	TypeCard      Type = "card"
	TypeDone      Type = "done"
	TypeError     Type = "error"
)

// ErrUnknownEvent is returned when decoding an unrecognised event type.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is one server event. The set of implementations is closed.
type Event interface {
	Type() Type
	event()
}

// TextDelta is a chunk of assistant text.
type TextDelta struct {
	Delta string
}

// TextDone closes a text segment and carries its full text.
type TextDone struct {
	Text string
}

// ToolStart announces that a generation stage is starting.
type ToolStart struct {
	Tool  string
	Label string
}

// Progress updates one step of a progress-tracker card.
type Progress struct {
	CardID string
	StepID string
	Status domain.StepStatus
	Label  string
}

// CardEvent emits or re-emits a card. Re-emission with the same id updates it.
type CardEvent struct {
	Card domain.Card
}

// Done ends a successful turn.
type Done struct {
	Status domain.SystemStatus
}

// Error ends a failed turn. Message is safe to show to the user.
type Error struct {
	Message string
}

func (TextDelta) Type() Type { return TypeTextDelta }
func (TextDone) Type() Type  { return TypeTextDone }
func (ToolStart) Type() Type { return TypeToolStart }
func (Progress) Type() Type  { return TypeProgress }
func (CardEvent) Type() Type { return TypeCard }
func (Done) Type() Type      { return TypeDone }
func (Error) Type() Type     { return TypeError }

func (TextDelta) event() {}
func (TextDone) event()  {}
func (ToolStart) event() {}
func (Progress) event()  {}
func (CardEvent) event() {}
func (Done) event()      {}
func (Error) event()     {}

// Terminal reports whether e ends a turn.
func Terminal(e Event) bool {
	switch e.(type) {
	case Done, Error:
		return true
	default:
		return false
	}
}

// wire is the flat JSON shape sent to clients.
type wire struct {
	Type    Type         `json:"type"`
	Delta   string       `json:"delta,omitempty"`
	Text    string       `json:"text,omitempty"`
	Tool    string       `json:"tool,omitempty"`
	Label   string       `json:"label,omitempty"`
	CardID  string       `json:"card_id,omitempty"`
	StepID  string       `json:"step_id,omitempty"`
	Status  string       `json:"status,omitempty"`
	Card    *domain.Card `json:"card,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Encode renders e as its JSON wire form.
func Encode(e Event) ([]byte, error) {
	var w wire
	switch ev := e.(type) {
	case TextDelta:
		w = wire{Type: TypeTextDelta, Delta: ev.Delta}
	case TextDone:
		w = wire{Type: TypeTextDone, Text: ev.Text}
	case ToolStart:
		w = wire{Type: TypeToolStart, Tool: ev.Tool, Label: ev.Label}
	case Progress:
		w = wire{Type: TypeProgress, CardID: ev.CardID, StepID: ev.StepID, Status: string(ev.Status), Label: ev.Label}
	case CardEvent:
		card := ev.Card
		w = wire{Type: TypeCard, Card: &card}
	case Done:
		w = wire{Type: TypeDone, Status: string(ev.Status)}
	case Error:
		w = wire{Type: TypeError, Message: ev.Message}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}
	return json.Marshal(w)
}

// Decode parses the JSON wire form produced by Encode.
func Decode(data []byte) (Event, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch w.Type {
	case TypeTextDelta:
		return TextDelta{Delta: w.Delta}, nil
	case TypeTextDone:
		return TextDone{Text: w.Text}, nil
	case TypeToolStart:
		return ToolStart{Tool: w.Tool, Label: w.Label}, nil
	case TypeProgress:
		return Progress{CardID: w.CardID, StepID: w.StepID, Status: domain.StepStatus(w.Status), Label: w.Label}, nil
	case TypeCard:
		if w.Card == nil {
			return nil, fmt.Errorf("decode event: card event without card")
		}
		return CardEvent{Card: *w.Card}, nil
	case TypeDone:
		return Done{Status: domain.SystemStatus(w.Status)}, nil
	case TypeError:
		return Error{Message: w.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, w.Type)
	}
}
