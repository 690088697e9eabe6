package domain

import "strings"

// RevenuePotential estimates what a niche could earn per month.
type RevenuePotential struct {
	PerClient     float64 `json:"per_client"`
	TargetClients int     `json:"target_clients"`
	MonthlyTotal  float64 `json:"monthly_total"`
}

// ChosenRecommendation is the niche analysis result the user committed to.
// It is written once per system and never mutated afterwards.
type ChosenRecommendation struct {
	Niche            string           `json:"niche"`
	Bottleneck       string           `json:"bottleneck"`
	Solution         string           `json:"solution"`
	TargetSegment    string           `json:"target_segment"`
	SegmentRationale string           `json:"segment_rationale"`
	RevenuePotential RevenuePotential `json:"revenue_potential"`
	StrategicInsight string           `json:"strategic_insight"`
}

// Tag classifies the recommendation's niche.
func (c *ChosenRecommendation) Tag() NicheTag {
	return ClassifyNiche(c.Niche)
}

// Recommendation is one ranked candidate produced by the analysis stage.
type Recommendation struct {
	ID    string `json:"id"`
	Rank  int    `json:"rank"`
	Score int    `json:"score"`
	ChosenRecommendation
}

// DeliveryModel is how the user will deliver the system to clients.
type DeliveryModel string

const (
	DeliverySubscription DeliveryModel = "subscription"
	DeliveryDoneForYou   DeliveryModel = "done_for_you"
	DeliveryDoneWithYou  DeliveryModel = "done_with_you"
)

// DeliveryModelValues lists accepted delivery models in display order.
var DeliveryModelValues = []string{
	string(DeliverySubscription), string(DeliveryDoneForYou), string(DeliveryDoneWithYou),
}

// PricingDirection positions the offer against the niche's market.
type PricingDirection string

const (
	PricingLow     PricingDirection = "low"
	PricingMid     PricingDirection = "mid"
	PricingPremium PricingDirection = "premium"
)

// PricingDirectionValues lists accepted pricing directions in display order.
var PricingDirectionValues = []string{
	string(PricingLow), string(PricingMid), string(PricingPremium),
}

// Answers are the offer questions already answered in the conversation.
type Answers struct {
	DeliveryModel    DeliveryModel    `json:"delivery_model"`
	PricingDirection PricingDirection `json:"pricing_direction"`
	LocationCity     string           `json:"location_city"`
	SkipGuarantee    bool             `json:"skip_guarantee,omitempty"`
}

// AssembledOffer is the merged output of the fan-out and assembly stages.
type AssembledOffer struct {
	Segment            string        `json:"segment"`
	TransformationFrom string        `json:"transformation_from"`
	TransformationTo   string        `json:"transformation_to"`
	SystemDescription  string        `json:"system_description"`
	PricingSetup       float64       `json:"pricing_setup"`
	PricingMonthly     float64       `json:"pricing_monthly"`
	Guarantee          string        `json:"guarantee"`
	GuaranteeSkipped   bool          `json:"guarantee_skipped,omitempty"`
	DeliveryModel      DeliveryModel `json:"delivery_model"`
}

// IsPopulated reports whether the offer carries a transformation narrative.
// A populated offer has been shown to the user and must not be replaced by
// background generation.
func (o *AssembledOffer) IsPopulated() bool {
	return o != nil && strings.TrimSpace(o.TransformationFrom) != ""
}
