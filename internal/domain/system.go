package domain

import (
	"time"
)

// SystemStatus tracks how far a system has progressed.
type SystemStatus string

const (
	StatusInProgress SystemStatus = "in_progress"
	StatusOfferReady SystemStatus = "offer_ready"
	StatusComplete   SystemStatus = "complete"
)

// System is the record the conversation builds. It is owned by one user and
// every mutation is scoped by both ids.
type System struct {
	ID                   string                `json:"id"`
	UserID               string                `json:"user_id"`
	Status               SystemStatus          `json:"status"`
	ChosenRecommendation *ChosenRecommendation `json:"chosen_recommendation"`
	Offer                *AssembledOffer       `json:"offer"`
	ConversationHistory  []ConversationMessage `json:"conversation_history"`
	Messages             []DisplayMessage      `json:"messages"`
	DeliveryModel        DeliveryModel         `json:"delivery_model"`
	PricingDirection     PricingDirection      `json:"pricing_direction"`
	LocationCity         string                `json:"location_city"`
	SkipGuarantee        bool                  `json:"skip_guarantee"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// Answers collects the offer answers stored on the system.
func (s *System) Answers() Answers {
	return Answers{
		DeliveryModel:    s.DeliveryModel,
		PricingDirection: s.PricingDirection,
		LocationCity:     s.LocationCity,
		SkipGuarantee:    s.SkipGuarantee,
	}
}

// HasOffer reports whether a user-visible offer is already stored.
func (s *System) HasOffer() bool {
	return s.Offer.IsPopulated()
}

// AnswerField names one of the per-system offer answers.
type AnswerField string

const (
	AnswerDeliveryModel    AnswerField = "delivery_model"
	AnswerPricingDirection AnswerField = "pricing_direction"
	AnswerLocationCity     AnswerField = "location_city"
	AnswerSkipGuarantee    AnswerField = "skip_guarantee"
)
