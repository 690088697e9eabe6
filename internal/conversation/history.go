// Package conversation keeps the display history of a system and derives
// the compact history persisted alongside it.
package conversation

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ashureev/offerforge/internal/domain"
)

var (
	ErrCardNotFound     = errors.New("card not found")
	ErrAlreadyAnswered  = errors.New("card already answered")
	ErrStatusRegression = errors.New("progress status regression")
	ErrNotInput         = errors.New("card does not accept input")
)

// History is the ordered display history of one conversation. Cards are
// addressed by id; answering a card and advancing a progress step are the
// only transitions, and neither can be undone.
//
// History never mutates a card it was given in place. Messages loaded from
// the store may share card pointers with it.
type History struct {
	messages []domain.DisplayMessage
	now      func() time.Time
}

// NewHistory wraps a copy of messages.
func NewHistory(messages []domain.DisplayMessage) *History {
	return &History{
		messages: append([]domain.DisplayMessage(nil), messages...),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Messages returns a copy of the display history.
func (h *History) Messages() []domain.DisplayMessage {
	return append([]domain.DisplayMessage(nil), h.messages...)
}

// Len is the number of messages; use it as a mark for Since.
func (h *History) Len() int { return len(h.messages) }

// Since returns the messages appended after mark.
func (h *History) Since(mark int) []domain.DisplayMessage {
	if mark < 0 || mark > len(h.messages) {
		mark = 0
	}
	return append([]domain.DisplayMessage(nil), h.messages[mark:]...)
}

// AppendUser records a free-text user message.
func (h *History) AppendUser(text string) domain.DisplayMessage {
	return h.append(domain.DisplayMessage{Role: domain.RoleUser, Kind: domain.KindText, Text: text})
}

// AppendAssistantText records a finished assistant text segment.
func (h *History) AppendAssistantText(text string) domain.DisplayMessage {
	return h.append(domain.DisplayMessage{Role: domain.RoleAssistant, Kind: domain.KindText, Text: text})
}

// ApplyCard appends a new card or updates the one with the same id. An
// update keeps every progress step at least as far along as before and is
// refused for a card that was already answered.
func (h *History) ApplyCard(card domain.Card) error {
	if err := card.Validate(); err != nil {
		return err
	}
	i := h.index(card.ID)
	if i < 0 {
		c := card
		h.append(domain.DisplayMessage{Role: domain.RoleAssistant, Kind: domain.KindCard, Card: &c})
		return nil
	}

	msg := &h.messages[i]
	if msg.Completed {
		return fmt.Errorf("%w: %s", ErrAlreadyAnswered, card.ID)
	}
	if msg.Card.Type != card.Type {
		return fmt.Errorf("%w: card %s changed type", domain.ErrInvalidCard, card.ID)
	}
	c := card
	if c.ProgressTracker != nil {
		c.ProgressTracker = advanceTracker(msg.Card.ProgressTracker, c.ProgressTracker)
	}
	msg.Card = &c
	return nil
}

// ApplyProgress moves one step of a progress tracker forward. A repeated
// status may still change the label.
func (h *History) ApplyProgress(cardID, stepID string, status domain.StepStatus, label string) error {
	i := h.index(cardID)
	if i < 0 || h.messages[i].Card.ProgressTracker == nil {
		return fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	msg := &h.messages[i]
	tracker := cloneTracker(msg.Card.ProgressTracker)
	step := tracker.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: %s/%s", ErrCardNotFound, cardID, stepID)
	}
	if !step.Status.CanAdvanceTo(status) {
		return fmt.Errorf("%w: %s %s -> %s", ErrStatusRegression, stepID, step.Status, status)
	}
	step.Status = status
	if label != "" {
		step.Label = label
	}
	card := *msg.Card
	card.ProgressTracker = tracker
	msg.Card = &card
	return nil
}

// Answer marks an input card answered and appends the user's reply as a
// message carrying the compact reference.
func (h *History) Answer(resp domain.CardResponse) (*domain.Card, domain.CardRef, error) {
	i := h.index(resp.CardID)
	if i < 0 {
		return nil, domain.CardRef{}, fmt.Errorf("%w: %s", ErrCardNotFound, resp.CardID)
	}
	msg := &h.messages[i]
	if !msg.Card.AcceptsInput() {
		return nil, domain.CardRef{}, fmt.Errorf("%w: %s", ErrNotInput, resp.CardID)
	}
	if !msg.AnswerState().CanTransitionTo(domain.Answered) {
		return nil, domain.CardRef{}, fmt.Errorf("%w: %s", ErrAlreadyAnswered, resp.CardID)
	}

	r := resp
	msg.Completed = true
	msg.Response = &r
	card := msg.Card

	ref := domain.CardRef{Type: card.Type, Completed: true, Summary: Summarize(card, &r)}
	h.append(domain.DisplayMessage{
		Role: domain.RoleUser,
		Kind: domain.KindText,
		Text: ref.Summary,
		Ref:  &ref,
	})
	return card, ref, nil
}

// Card returns the message holding cardID.
func (h *History) Card(cardID string) (domain.DisplayMessage, bool) {
	i := h.index(cardID)
	if i < 0 {
		return domain.DisplayMessage{}, false
	}
	return h.messages[i], true
}

// OpenCard returns the most recent input card still waiting for an answer.
func (h *History) OpenCard() (*domain.Card, bool) {
	for i := len(h.messages) - 1; i >= 0; i-- {
		m := h.messages[i]
		if m.Kind != domain.KindCard || m.Card == nil || !m.Card.AcceptsInput() {
			continue
		}
		if m.Completed {
			return nil, false
		}
		return m.Card, true
	}
	return nil, false
}

func (h *History) append(m domain.DisplayMessage) domain.DisplayMessage {
	m.ID = ulid.Make().String()
	m.CreatedAt = h.now()
	h.messages = append(h.messages, m)
	return m
}

func (h *History) index(cardID string) int {
	for i := len(h.messages) - 1; i >= 0; i-- {
		if c := h.messages[i].Card; c != nil && c.ID == cardID {
			return i
		}
	}
	return -1
}

func cloneTracker(t *domain.ProgressTracker) *domain.ProgressTracker {
	out := &domain.ProgressTracker{Title: t.Title, Steps: make([]domain.ProgressStep, len(t.Steps))}
	copy(out.Steps, t.Steps)
	return out
}

// advanceTracker returns next with each step kept at least at its prior status.
func advanceTracker(prev, next *domain.ProgressTracker) *domain.ProgressTracker {
	out := cloneTracker(next)
	if prev == nil {
		return out
	}
	for i := range out.Steps {
		if old := prev.Step(out.Steps[i].ID); old != nil && !old.Status.CanAdvanceTo(out.Steps[i].Status) {
			out.Steps[i].Status = old.Status
		}
	}
	return out
}
