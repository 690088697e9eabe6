package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/offerforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T) Repository {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "offerforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemoryRepo(t *testing.T) Repository {
	t.Helper()
	return NewMemory()
}

var repos = map[string]func(t *testing.T) Repository{
	"sqlite": newSQLiteRepo,
	"memory": newMemoryRepo,
}

func seedSystem(t *testing.T, repo Repository, id, userID string) *domain.System {
	t.Helper()
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	sys := &domain.System{
		ID:        id,
		UserID:    userID,
		Status:    domain.StatusInProgress,
		CreatedAt: past,
		UpdatedAt: past,
	}
	require.NoError(t, repo.CreateSystem(context.Background(), sys))
	return sys
}

func roofing() *domain.ChosenRecommendation {
	return &domain.ChosenRecommendation{
		Niche:      "roofing",
		Bottleneck: "lead response time",
		Solution:   "instant lead reply",
	}
}

func TestRepository_SystemRoundTrip(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedSystem(t, repo, "sys-1", "user-1")

			got, err := repo.GetSystem(ctx, "sys-1", "user-1")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusInProgress, got.Status)
			assert.Nil(t, got.ChosenRecommendation)
			assert.Nil(t, got.Offer)
			assert.Empty(t, got.ConversationHistory)
			assert.Empty(t, got.Messages)
		})
	}
}

func TestRepository_OwnershipScoping(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedSystem(t, repo, "sys-1", "owner")

			// Given: a system owned by someone else
			// When: another user reads or writes it
			_, err := repo.GetSystem(ctx, "sys-1", "intruder")
			// Then: it looks missing and nothing changes
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = repo.SaveOfferIfAbsent(ctx, "sys-1", "intruder", &domain.AssembledOffer{TransformationFrom: "x"})
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, repo.ResetConversationHistory(ctx, "sys-1", "intruder"), ErrNotFound)
			assert.ErrorIs(t, repo.UpdateStatus(ctx, "sys-1", "intruder", domain.StatusComplete), ErrNotFound)

			got, err := repo.GetSystem(ctx, "sys-1", "owner")
			require.NoError(t, err)
			assert.Nil(t, got.Offer)
			assert.Equal(t, domain.StatusInProgress, got.Status)
		})
	}
}

func TestRepository_SaveOfferIfAbsentNeverClobbers(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedSystem(t, repo, "sys-1", "user-1")

			// Given: an offer without a narrative counts as absent
			ok, err := repo.SaveOfferIfAbsent(ctx, "sys-1", "user-1", &domain.AssembledOffer{PricingMonthly: 10})
			require.NoError(t, err)
			assert.True(t, ok)

			// When: a populated offer is written, then a second one
			first := &domain.AssembledOffer{TransformationFrom: "missed calls", PricingMonthly: 497}
			ok, err = repo.SaveOfferIfAbsent(ctx, "sys-1", "user-1", first)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = repo.SaveOfferIfAbsent(ctx, "sys-1", "user-1", &domain.AssembledOffer{TransformationFrom: "stale"})
			require.NoError(t, err)

			// Then: the second write is skipped
			assert.False(t, ok)
			got, err := repo.GetSystem(ctx, "sys-1", "user-1")
			require.NoError(t, err)
			assert.Equal(t, "missed calls", got.Offer.TransformationFrom)
		})
	}
}

func TestRepository_SaveOfferIfAbsentConcurrentWriters(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedSystem(t, repo, "sys-1", "user-1")

			const writers = 8
			var wg sync.WaitGroup
			results := make(chan bool, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ok, err := repo.SaveOfferIfAbsent(ctx, "sys-1", "user-1",
						&domain.AssembledOffer{TransformationFrom: "writer", PricingSetup: float64(i)})
					if err != nil {
						t.Errorf("writer %d: %v", i, err)
						return
					}
					results <- ok
				}(i)
			}
			wg.Wait()
			close(results)

			committed := 0
			for ok := range results {
				if ok {
					committed++
				}
			}
			assert.Equal(t, 1, committed)
		})
	}
}

func TestRepository_ChosenRecommendationWrittenOnce(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedSystem(t, repo, "sys-1", "user-1")

			ok, err := repo.SetChosenRecommendation(ctx, "sys-1", "user-1", roofing())
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = repo.SetChosenRecommendation(ctx, "sys-1", "user-1", &domain.ChosenRecommendation{Niche: "dental"})
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := repo.GetSystem(ctx, "sys-1", "user-1")
			require.NoError(t, err)
			assert.Equal(t, "roofing", got.ChosenRecommendation.Niche)
		})
	}
}

func TestRepository_ResetLeavesOfferAndRecommendation(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedSystem(t, repo, "sys-1", "user-1")

			// Given: a system with history, messages, offer and recommendation
			_, err := repo.SetChosenRecommendation(ctx, "sys-1", "user-1", roofing())
			require.NoError(t, err)
			_, err = repo.SaveOfferIfAbsent(ctx, "sys-1", "user-1", &domain.AssembledOffer{TransformationFrom: "slow replies"})
			require.NoError(t, err)
			require.NoError(t, repo.AppendConversationHistory(ctx, "sys-1", "user-1", []domain.ConversationMessage{
				{Role: domain.RoleUser, Content: "hi"},
				{Role: domain.RoleAssistant, Content: "hello"},
			}))
			require.NoError(t, repo.ReplaceMessages(ctx, "sys-1", "user-1", []domain.DisplayMessage{
				{ID: "m1", Role: domain.RoleUser, Kind: domain.KindText, Text: "hi"},
			}))

			// When: the conversation is reset
			require.NoError(t, repo.ResetConversationHistory(ctx, "sys-1", "user-1"))

			// Then: only the compact history is cleared
			got, err := repo.GetSystem(ctx, "sys-1", "user-1")
			require.NoError(t, err)
			assert.Empty(t, got.ConversationHistory)
			assert.Len(t, got.Messages, 1)
			require.NotNil(t, got.Offer)
			assert.Equal(t, "slow replies", got.Offer.TransformationFrom)
			require.NotNil(t, got.ChosenRecommendation)
			assert.Equal(t, "roofing", got.ChosenRecommendation.Niche)
		})
	}
}

func TestRepository_AppendConversationHistoryPreservesOrder(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedSystem(t, repo, "sys-1", "user-1")

			require.NoError(t, repo.AppendConversationHistory(ctx, "sys-1", "user-1",
				[]domain.ConversationMessage{{Role: domain.RoleUser, Content: "one"}}))
			require.NoError(t, repo.AppendConversationHistory(ctx, "sys-1", "user-1",
				[]domain.ConversationMessage{{Role: domain.RoleAssistant, Content: "two",
					Card: &domain.CardRef{Type: domain.CardEditableContent, Completed: true, Summary: "Offer edited"}}}))

			got, err := repo.GetSystem(ctx, "sys-1", "user-1")
			require.NoError(t, err)
			require.Len(t, got.ConversationHistory, 2)
			assert.Equal(t, "one", got.ConversationHistory[0].Content)
			assert.Equal(t, "Offer edited", got.ConversationHistory[1].Card.Summary)

			err = repo.AppendConversationHistory(ctx, "missing", "user-1",
				[]domain.ConversationMessage{{Role: domain.RoleUser, Content: "x"}})
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestRepository_SetAnswer(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedSystem(t, repo, "sys-1", "user-1")

			require.NoError(t, repo.SetAnswer(ctx, "sys-1", "user-1", domain.AnswerDeliveryModel, "subscription"))
			require.NoError(t, repo.SetAnswer(ctx, "sys-1", "user-1", domain.AnswerPricingDirection, "mid"))
			require.NoError(t, repo.SetAnswer(ctx, "sys-1", "user-1", domain.AnswerLocationCity, "Leeds"))
			require.NoError(t, repo.SetAnswer(ctx, "sys-1", "user-1", domain.AnswerSkipGuarantee, "true"))
			assert.ErrorIs(t, repo.SetAnswer(ctx, "sys-1", "user-1", "colour", "red"), ErrInvalidField)

			got, err := repo.GetSystem(ctx, "sys-1", "user-1")
			require.NoError(t, err)
			assert.Equal(t, domain.Answers{
				DeliveryModel:    domain.DeliverySubscription,
				PricingDirection: domain.PricingMid,
				LocationCity:     "Leeds",
				SkipGuarantee:    true,
			}, got.Answers())
		})
	}
}

func TestRepository_ListSystemsAwaitingOffer(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedSystem(t, repo, "no-rec", "user-1")
			seedSystem(t, repo, "has-rec", "user-1")
			seedSystem(t, repo, "has-offer", "user-1")

			_, err := repo.SetChosenRecommendation(ctx, "has-rec", "user-1", roofing())
			require.NoError(t, err)
			_, err = repo.SetChosenRecommendation(ctx, "has-offer", "user-1", roofing())
			require.NoError(t, err)
			_, err = repo.SaveOfferIfAbsent(ctx, "has-offer", "user-1", &domain.AssembledOffer{TransformationFrom: "done"})
			require.NoError(t, err)

			got, err := repo.ListSystemsAwaitingOffer(ctx, time.Now().Add(time.Minute), 10)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "has-rec", got[0].ID)

			// Recently touched systems are left alone.
			got, err = repo.ListSystemsAwaitingOffer(ctx, time.Now().Add(-time.Minute), 10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestRepository_Profiles(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()

			missing, err := repo.GetProfile(ctx, "user-1")
			require.NoError(t, err)
			assert.Nil(t, missing)

			require.NoError(t, repo.UpsertProfile(ctx, &domain.Profile{
				UserID:           "user-1",
				TimeAvailability: domain.Time5To15,
				RevenueGoal:      domain.Revenue1kTo3k,
				Blockers:         []domain.Blocker{domain.BlockerNoOffer},
			}))

			got, err := repo.GetProfile(ctx, "user-1")
			require.NoError(t, err)
			assert.True(t, got.IsComplete())
			assert.Equal(t, []domain.Blocker{domain.BlockerNoOffer}, got.Blockers)
		})
	}
}

func TestRepository_Users(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			now := time.Now().Truncate(time.Second)

			require.NoError(t, repo.UpsertUser(ctx, &domain.User{
				UserID: "user-1", Username: "guest", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
			}))
			later := now.Add(time.Minute)
			require.NoError(t, repo.UpdateLastSeen(ctx, "user-1", later))

			got, err := repo.GetUser(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, later.Unix(), got.LastSeenAt.Unix())

			none, err := repo.GetUser(ctx, "nobody")
			require.NoError(t, err)
			assert.Nil(t, none)
		})
	}
}
