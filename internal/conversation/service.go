package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/observability"
)

// ErrNotArray is returned when a display history payload is not a JSON array.
var ErrNotArray = errors.New("messages must be an array")

// Repository is the slice of the store the conversation layer uses.
type Repository interface {
	GetSystem(ctx context.Context, systemID, userID string) (*domain.System, error)
	ReplaceMessages(ctx context.Context, systemID, userID string, messages []domain.DisplayMessage) error
	AppendConversationHistory(ctx context.Context, systemID, userID string, entries []domain.ConversationMessage) error
	ResetConversationHistory(ctx context.Context, systemID, userID string) error
}

// Service persists both histories of a system. All calls are owner scoped.
type Service struct {
	repo Repository
}

// NewService creates a conversation service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Load returns the system and a History over its display messages.
func (s *Service) Load(ctx context.Context, systemID, userID string) (*domain.System, *History, error) {
	sys, err := s.repo.GetSystem(ctx, systemID, userID)
	if err != nil {
		return nil, nil, err
	}
	return sys, NewHistory(sys.Messages), nil
}

// Save writes the full display history verbatim.
func (s *Service) Save(ctx context.Context, systemID, userID string, h *History) error {
	if err := s.repo.ReplaceMessages(ctx, systemID, userID, h.Messages()); err != nil {
		return fmt.Errorf("save display history: %w", err)
	}
	return nil
}

// SaveDisplay replaces the display history with a client supplied payload.
// Anything other than a JSON array is rejected; cards must be well formed.
func (s *Service) SaveDisplay(ctx context.Context, systemID, userID string, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return ErrNotArray
	}
	var messages []domain.DisplayMessage
	if err := json.Unmarshal(trimmed, &messages); err != nil {
		return fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	for i := range messages {
		if messages[i].Card == nil {
			continue
		}
		if err := messages[i].Card.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	if messages == nil {
		messages = []domain.DisplayMessage{}
	}
	return s.repo.ReplaceMessages(ctx, systemID, userID, messages)
}

// RecordTurn appends the compact form of the messages added since mark.
func (s *Service) RecordTurn(ctx context.Context, systemID, userID string, h *History, mark int) error {
	entries := Compact(h.Since(mark))
	if len(entries) == 0 {
		return nil
	}
	if err := s.repo.AppendConversationHistory(ctx, systemID, userID, entries); err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	observability.LoggerFromContext(ctx).Debug("turn recorded", "system_id", systemID, "entries", len(entries))
	return nil
}

// Reset clears the compact history only. The offer, the chosen
// recommendation and the display history are left alone.
func (s *Service) Reset(ctx context.Context, systemID, userID string) error {
	return s.repo.ResetConversationHistory(ctx, systemID, userID)
}
