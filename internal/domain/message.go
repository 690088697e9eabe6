package domain

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind distinguishes plain text from card messages in the display history.
type MessageKind string

const (
	KindText MessageKind = "text"
	KindCard MessageKind = "card"
)

// CardRef is the compact reference to a card kept in the persisted history.
type CardRef struct {
	Type      CardType `json:"type"`
	Completed bool     `json:"completed"`
	Summary   string   `json:"summary"`
}

// ConversationMessage is the compact, persisted form of one turn.
// It never carries a card payload, only a CardRef.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Card      *CardRef  `json:"card,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DisplayMessage is one entry of the full display history, card payload included.
// Ref is set on a user message that answered a card.
type DisplayMessage struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Kind      MessageKind   `json:"kind"`
	Text      string        `json:"text,omitempty"`
	Card      *Card         `json:"card,omitempty"`
	Completed bool          `json:"completed,omitempty"`
	Response  *CardResponse `json:"response,omitempty"`
	Ref       *CardRef      `json:"ref,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// AnswerState derives the explicit micro-state of an input card message.
func (m *DisplayMessage) AnswerState() AnswerState {
	if m.Completed {
		return Answered
	}
	return Unanswered
}
