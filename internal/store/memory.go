package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/offerforge/internal/domain"
)

// MemoryStore is a Repository kept in process memory. It honours the same
// ownership and conditional-write rules as SQLiteStore and is used by the CLI
// and hermetic tests.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	profiles map[string]domain.Profile
	systems  map[string]*domain.System
	now      func() time.Time
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		profiles: make(map[string]domain.Profile),
		systems:  make(map[string]*domain.System),
		now:      time.Now,
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

func (m *MemoryStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryStore) UpsertUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[user.UserID]; ok {
		existing.Username = user.Username
		existing.LastSeenAt = user.LastSeenAt
		existing.UpdatedAt = user.UpdatedAt
		m.users[user.UserID] = existing
		return nil
	}
	m.users[user.UserID] = *user
	return nil
}

func (m *MemoryStore) UpdateLastSeen(_ context.Context, userID string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	u.LastSeenAt = lastSeen
	u.UpdatedAt = m.now()
	m.users[userID] = u
	return nil
}

func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	p.Blockers = append([]domain.Blocker(nil), p.Blockers...)
	return &p, nil
}

func (m *MemoryStore) UpsertProfile(_ context.Context, profile *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *profile
	p.Blockers = append([]domain.Blocker(nil), profile.Blockers...)
	p.UpdatedAt = m.now()
	m.profiles[p.UserID] = p
	return nil
}

func (m *MemoryStore) CreateSystem(_ context.Context, system *domain.System) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.systems[system.ID]; exists {
		return fmt.Errorf("create system: duplicate id %s", system.ID)
	}
	s := cloneSystem(system)
	if s.Status == "" {
		s.Status = domain.StatusInProgress
	}
	m.systems[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSystem(_ context.Context, systemID, userID string) (*domain.System, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.owned(systemID, userID)
	if err != nil {
		return nil, err
	}
	return cloneSystem(s), nil
}

func (m *MemoryStore) ListSystems(_ context.Context, userID string) ([]*domain.System, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.System
	for _, s := range m.systems {
		if s.UserID == userID {
			out = append(out, cloneSystem(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListSystemsAwaitingOffer(_ context.Context, idleSince time.Time, limit int) ([]*domain.System, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []*domain.System
	for _, s := range m.systems {
		if s.Status == domain.StatusInProgress && s.ChosenRecommendation != nil &&
			!s.Offer.IsPopulated() && s.UpdatedAt.Before(idleSince) {
			out = append(out, cloneSystem(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SetChosenRecommendation(_ context.Context, systemID, userID string, rec *domain.ChosenRecommendation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.owned(systemID, userID)
	if err != nil {
		return false, err
	}
	if s.ChosenRecommendation != nil {
		return false, nil
	}
	r := *rec
	s.ChosenRecommendation = &r
	s.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) SaveOfferIfAbsent(_ context.Context, systemID, userID string, offer *domain.AssembledOffer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.owned(systemID, userID)
	if err != nil {
		return false, err
	}
	if s.Offer.IsPopulated() {
		return false, nil
	}
	o := *offer
	s.Offer = &o
	s.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) UpdateOffer(_ context.Context, systemID, userID string, offer *domain.AssembledOffer) error {
	return m.mutate(systemID, userID, func(s *domain.System) error {
		o := *offer
		s.Offer = &o
		return nil
	})
}

func (m *MemoryStore) SetAnswer(_ context.Context, systemID, userID string, field domain.AnswerField, value string) error {
	return m.mutate(systemID, userID, func(s *domain.System) error {
		switch field {
		case domain.AnswerDeliveryModel:
			s.DeliveryModel = domain.DeliveryModel(value)
		case domain.AnswerPricingDirection:
			s.PricingDirection = domain.PricingDirection(value)
		case domain.AnswerLocationCity:
			s.LocationCity = value
		case domain.AnswerSkipGuarantee:
			skip, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%w: skip_guarantee=%q", ErrInvalidField, value)
			}
			s.SkipGuarantee = skip
		default:
			return fmt.Errorf("%w: %s", ErrInvalidField, field)
		}
		return nil
	})
}

func (m *MemoryStore) UpdateStatus(_ context.Context, systemID, userID string, status domain.SystemStatus) error {
	return m.mutate(systemID, userID, func(s *domain.System) error {
		s.Status = status
		return nil
	})
}

func (m *MemoryStore) ReplaceMessages(_ context.Context, systemID, userID string, messages []domain.DisplayMessage) error {
	return m.mutate(systemID, userID, func(s *domain.System) error {
		s.Messages = append([]domain.DisplayMessage{}, messages...)
		return nil
	})
}

func (m *MemoryStore) AppendConversationHistory(_ context.Context, systemID, userID string, entries []domain.ConversationMessage) error {
	return m.mutate(systemID, userID, func(s *domain.System) error {
		s.ConversationHistory = append(s.ConversationHistory, entries...)
		return nil
	})
}

func (m *MemoryStore) ResetConversationHistory(_ context.Context, systemID, userID string) error {
	return m.mutate(systemID, userID, func(s *domain.System) error {
		s.ConversationHistory = []domain.ConversationMessage{}
		return nil
	})
}

func (m *MemoryStore) mutate(systemID, userID string, fn func(*domain.System) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.owned(systemID, userID)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	s.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) owned(systemID, userID string) (*domain.System, error) {
	s, ok := m.systems[systemID]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return s, nil
}

// cloneSystem copies s deeply enough that callers cannot mutate stored state.
// Card payloads inside messages are shared; nothing mutates them in place.
func cloneSystem(s *domain.System) *domain.System {
	c := *s
	if s.ChosenRecommendation != nil {
		r := *s.ChosenRecommendation
		c.ChosenRecommendation = &r
	}
	if s.Offer != nil {
		o := *s.Offer
		c.Offer = &o
	}
	c.ConversationHistory = append([]domain.ConversationMessage{}, s.ConversationHistory...)
	c.Messages = append([]domain.DisplayMessage{}, s.Messages...)
	return &c
}

var (
	_ Repository = (*MemoryStore)(nil)
	_ Repository = (*SQLiteStore)(nil)
)
