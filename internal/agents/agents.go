// Package agents implements the four generation agents: niche analyst,
// pricing strategist, guarantee specialist and offer writer.
package agents

import (
	"context"

	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/llm"
)

// Agent names used in logs and progress reporting.
const (
	NameAnalyst   = "niche_analyst"
	NamePricing   = "pricing_strategist"
	NameGuarantee = "guarantee_specialist"
	NameWriter    = "offer_writer"
)

// Agent is one step of the generation flow: a structured input in, a
// structured output or an error out.
type Agent[I, O any] interface {
	Name() string
	Run(ctx context.Context, in I) (O, error)
}

// AnalysisInput is what the niche analyst works from.
type AnalysisInput struct {
	Profile domain.Profile `json:"profile"`
}

// AnalysisOutput is a ranked list of niche recommendations.
type AnalysisOutput struct {
	Recommendations []domain.Recommendation `json:"recommendations"`
}

// OfferInput is shared by the three fan-out agents.
type OfferInput struct {
	Recommendation domain.ChosenRecommendation `json:"chosen_recommendation"`
	Profile        domain.Profile              `json:"profile"`
	Answers        domain.Answers              `json:"answers"`
}

// Playbook returns the niche playbook for the input's recommendation.
func (in OfferInput) Playbook() domain.Playbook {
	return domain.PlaybookFor(in.Recommendation.Tag())
}

// PricingOutput is the pricing strategist's result.
type PricingOutput struct {
	Setup     float64 `json:"setup"`
	Monthly   float64 `json:"monthly"`
	Rationale string  `json:"rationale"`
}

// GuaranteeOutput is the guarantee specialist's result.
type GuaranteeOutput struct {
	Text       string `json:"text"`
	Metric     string `json:"metric"`
	WindowDays int    `json:"window_days"`
	Skipped    bool   `json:"skipped,omitempty"`
}

// NarrativeOutput is the offer writer's result.
type NarrativeOutput struct {
	TransformationFrom string `json:"transformation_from"`
	TransformationTo   string `json:"transformation_to"`
	SystemDescription  string `json:"system_description"`
}

// Set bundles one implementation of each agent.
type Set struct {
	Analyst   Agent[AnalysisInput, AnalysisOutput]
	Pricing   Agent[OfferInput, PricingOutput]
	Guarantee Agent[OfferInput, GuaranteeOutput]
	Writer    Agent[OfferInput, NarrativeOutput]
}

// NewSet returns model-backed agents when gen is non-nil and the local
// deterministic agents otherwise.
func NewSet(gen llm.Generator) Set {
	if gen == nil {
		return NewLocalSet()
	}
	return NewLLMSet(gen)
}
