package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/offerforge/internal/domain"
)

var (
	// ErrClosed is returned for any event after the turn's done or error.
	ErrClosed = errors.New("stream closed")
	// ErrOutOfOrder is returned for events that break the turn's ordering rules.
	ErrOutOfOrder = errors.New("event out of order")
)

// Sink receives events in their final order.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }

// Sequencer is the single writer for one turn. It closes open text segments
// before cards and terminal events, holds progress for cards that have not
// been emitted yet and drops step regressions. It is safe for concurrent use.
type Sequencer struct {
	mu   sync.Mutex
	sink Sink

	closed   bool
	textOpen bool
	text     strings.Builder

	cards    map[string]struct{}
	trackers map[string]map[string]domain.StepStatus
	pending  map[string][]Progress
}

// NewSequencer creates a sequencer writing to sink.
func NewSequencer(sink Sink) *Sequencer {
	return &Sequencer{
		sink:     sink,
		cards:    make(map[string]struct{}),
		trackers: make(map[string]map[string]domain.StepStatus),
		pending:  make(map[string][]Progress),
	}
}

// Emit orders and forwards e.
func (s *Sequencer) Emit(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	switch ev := e.(type) {
	case TextDelta:
		if ev.Delta == "" {
			return nil
		}
		s.textOpen = true
		s.text.WriteString(ev.Delta)
		return s.sink.Send(ev)
	case TextDone:
		if !s.textOpen {
			return fmt.Errorf("%w: text-done without open text", ErrOutOfOrder)
		}
		return s.closeText()
	case ToolStart:
		if err := s.closeText(); err != nil {
			return err
		}
		return s.sink.Send(ev)
	case CardEvent:
		return s.card(ev.Card)
	case Progress:
		return s.progress(ev)
	case Done, Error:
		if err := s.closeText(); err != nil {
			return err
		}
		s.closed = true
		for cardID, held := range s.pending {
			slog.Debug("dropping progress for card never emitted", "card_id", cardID, "count", len(held))
		}
		s.pending = nil
		return s.sink.Send(ev)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}
}

// Fail ends the turn with an error event unless it has already ended.
func (s *Sequencer) Fail(message string) error {
	if err := s.Emit(Error{Message: message}); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// Closed reports whether a terminal event has been emitted.
func (s *Sequencer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Status returns the last status emitted for a tracker step.
func (s *Sequencer) Status(cardID, stepID string) (domain.StepStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.trackers[cardID][stepID]
	return st, ok
}

func (s *Sequencer) closeText() error {
	if !s.textOpen {
		return nil
	}
	text := s.text.String()
	s.textOpen = false
	s.text.Reset()
	return s.sink.Send(TextDone{Text: text})
}

func (s *Sequencer) card(card domain.Card) error {
	if err := card.Validate(); err != nil {
		return err
	}
	if err := s.closeText(); err != nil {
		return err
	}

	if card.ProgressTracker != nil {
		card.ProgressTracker = mergeTracker(card.ProgressTracker, s.trackers[card.ID])
		steps := make(map[string]domain.StepStatus, len(card.ProgressTracker.Steps))
		for _, st := range card.ProgressTracker.Steps {
			steps[st.ID] = st.Status
		}
		s.trackers[card.ID] = steps
	}
	s.cards[card.ID] = struct{}{}
	if err := s.sink.Send(CardEvent{Card: card}); err != nil {
		return err
	}

	held := s.pending[card.ID]
	delete(s.pending, card.ID)
	for _, p := range held {
		if err := s.progress(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) progress(p Progress) error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrOutOfOrder, p.Status)
	}
	steps, ok := s.trackers[p.CardID]
	if !ok {
		if _, isCard := s.cards[p.CardID]; isCard {
			return fmt.Errorf("%w: card %s is not a progress tracker", ErrOutOfOrder, p.CardID)
		}
		s.pending[p.CardID] = append(s.pending[p.CardID], p)
		return nil
	}
	current, ok := steps[p.StepID]
	if !ok {
		return fmt.Errorf("%w: card %s has no step %s", ErrOutOfOrder, p.CardID, p.StepID)
	}
	if !current.CanAdvanceTo(p.Status) {
		slog.Debug("dropping progress regression",
			"card_id", p.CardID, "step_id", p.StepID, "from", current, "to", p.Status)
		return nil
	}
	steps[p.StepID] = p.Status
	return s.sink.Send(p)
}

// mergeTracker copies next and keeps any step status already further along.
func mergeTracker(next *domain.ProgressTracker, known map[string]domain.StepStatus) *domain.ProgressTracker {
	out := &domain.ProgressTracker{Title: next.Title, Steps: make([]domain.ProgressStep, len(next.Steps))}
	copy(out.Steps, next.Steps)
	for i, st := range out.Steps {
		if prev, ok := known[st.ID]; ok && !prev.CanAdvanceTo(st.Status) {
			out.Steps[i].Status = prev
		}
	}
	return out
}

// Buffer is a Sink that keeps every event in memory.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Send(e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

// Events returns a copy of the received events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}
