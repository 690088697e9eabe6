package chat

import (
	"context"
	"fmt"

	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/quality"
	"github.com/ashureev/offerforge/internal/validation"
)

// EditOffer stores a user-edited offer and marks the system offer_ready.
// It takes the system's turn lock, so an edit never lands inside a running
// turn. Whether the guarantee may be empty comes from the system record,
// never from the submitted offer.
func (s *Service) EditOffer(ctx context.Context, systemID, userID string, offer domain.AssembledOffer) (*domain.AssembledOffer, error) {
	mu := s.turnLock(systemID)
	if !mu.TryLock() {
		return nil, ErrBusy
	}
	defer mu.Unlock()

	sys, err := s.repo.GetSystem(ctx, systemID, userID)
	if err != nil {
		return nil, err
	}
	if sys.Status == domain.StatusComplete {
		return nil, ErrFinalised
	}
	if offer.DeliveryModel == "" {
		offer.DeliveryModel = sys.DeliveryModel
	}
	offer.GuaranteeSkipped = sys.SkipGuarantee

	var c validation.Collector
	checkOffer(&c, &offer)
	if err := c.Err(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateOffer(ctx, systemID, userID, &offer); err != nil {
		return nil, fmt.Errorf("save edited offer: %w", err)
	}
	if err := s.repo.UpdateStatus(ctx, systemID, userID, domain.StatusOfferReady); err != nil {
		return nil, fmt.Errorf("mark offer ready: %w", err)
	}
	return &offer, nil
}

// checkOffer runs field validation and the offer gate over an edited offer.
func checkOffer(c *validation.Collector, offer *domain.AssembledOffer) {
	validation.Offer(c, offer)
	if v := quality.OfferGate().Validate(*offer); !v.Accepted {
		c.Addf("offer", "%s", v.Reason)
	}
}
