package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ashureev/offerforge/internal/llm"
)

// modelAgent asks a Generator for a JSON object and decodes it into O.
type modelAgent[I, O any] struct {
	name   string
	gen    llm.Generator
	system string
	prompt func(I) string
	// skip returns a result without calling the model when ok is true.
	skip func(I) (out O, ok bool)
	// finish fills fields the model is not trusted with.
	finish func(I, O) O
}

func (a *modelAgent[I, O]) Name() string { return a.name }

func (a *modelAgent[I, O]) Run(ctx context.Context, in I) (O, error) {
	if a.skip != nil {
		if out, ok := a.skip(in); ok {
			return out, nil
		}
	}

	var out O
	raw, err := a.gen.Generate(ctx, llm.Request{
		System:      a.system,
		Prompt:      a.prompt(in),
		JSON:        true,
		Temperature: 0.4,
	})
	if err != nil {
		return out, fmt.Errorf("%s: %w", a.name, err)
	}
	if err := llm.DecodeJSON(raw, &out); err != nil {
		return out, fmt.Errorf("%s: %w", a.name, err)
	}
	if a.finish != nil {
		out = a.finish(in, out)
	}
	return out, nil
}

// NewLLMSet returns agents backed by gen.
func NewLLMSet(gen llm.Generator) Set {
	return Set{
		Analyst: &modelAgent[AnalysisInput, AnalysisOutput]{
			name:   NameAnalyst,
			gen:    gen,
			system: analystSystem,
			prompt: analystPrompt,
			finish: func(_ AnalysisInput, out AnalysisOutput) AnalysisOutput {
				for i := range out.Recommendations {
					out.Recommendations[i].ID = uuid.NewString()
					out.Recommendations[i].Rank = i + 1
				}
				return out
			},
		},
		Pricing: &modelAgent[OfferInput, PricingOutput]{
			name:   NamePricing,
			gen:    gen,
			system: pricingSystem,
			prompt: pricingPrompt,
		},
		Guarantee: &modelAgent[OfferInput, GuaranteeOutput]{
			name:   NameGuarantee,
			gen:    gen,
			system: guaranteeSystem,
			prompt: guaranteePrompt,
			skip: func(in OfferInput) (GuaranteeOutput, bool) {
				return GuaranteeOutput{Skipped: true}, in.Answers.SkipGuarantee
			},
		},
		Writer: &modelAgent[OfferInput, NarrativeOutput]{
			name:   NameWriter,
			gen:    gen,
			system: writerSystem,
			prompt: writerPrompt,
		},
	}
}

const analystSystem = `You are a niche analyst for people starting an automation agency.
Recommend local business niches where a simple automated system removes a costly bottleneck.
Respond with one JSON object: {"recommendations":[{"score":0-100,"niche":"","bottleneck":"",
"solution":"","target_segment":"","segment_rationale":"","revenue_potential":{"per_client":0,
"target_clients":0,"monthly_total":0},"strategic_insight":""}]}. Return exactly three, best first.`

const pricingSystem = `You are a pricing strategist. Price a productised automation service.
Respond with one JSON object: {"setup":0,"monthly":0,"rationale":""}. Prices are whole numbers in the
local currency and never negative. Stay inside the anchor band unless the rationale explains why.`

const guaranteeSystem = `You are a guarantee specialist. Write one guarantee the operator can keep
by their own actions: response times, setup deadlines, delivered features. Never promise client
revenue, rankings or outcomes that depend on the client's customers.
Respond with one JSON object: {"text":"","metric":"","window_days":0}.`

const writerSystem = `You are an offer writer. Describe the before and after for the target segment
in one sentence each and the system in two sentences at most. Plain language, no hype.
Respond with one JSON object: {"transformation_from":"","transformation_to":"","system_description":""}.`

func analystPrompt(in AnalysisInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hours per week available: %s\n", in.Profile.TimeAvailability)
	fmt.Fprintf(&b, "Monthly revenue goal: %s\n", in.Profile.RevenueGoal)
	fmt.Fprintf(&b, "Blockers: %s\n", strings.Join(in.Profile.BlockerStrings(), ", "))
	if in.Profile.Context != "" {
		fmt.Fprintf(&b, "In their words: %s\n", in.Profile.Context)
	}
	return b.String()
}

func offerContext(in OfferInput) string {
	rec, _ := json.Marshal(in.Recommendation)
	var b strings.Builder
	fmt.Fprintf(&b, "Chosen niche: %s\n", rec)
	fmt.Fprintf(&b, "Delivery model: %s\n", in.Answers.DeliveryModel)
	fmt.Fprintf(&b, "Pricing direction: %s\n", in.Answers.PricingDirection)
	if in.Answers.LocationCity != "" {
		fmt.Fprintf(&b, "Location: %s\n", in.Answers.LocationCity)
	}
	fmt.Fprintf(&b, "Operator availability: %s hours/week, goal %s\n",
		in.Profile.TimeAvailability, in.Profile.RevenueGoal)
	return b.String()
}

func pricingPrompt(in OfferInput) string {
	band := in.Playbook().PriceBand(in.Answers.PricingDirection)
	return offerContext(in) + fmt.Sprintf("Anchor band: setup %.0f-%.0f, monthly %.0f-%.0f\n",
		band.SetupMin, band.SetupMax, band.MonthlyMin, band.MonthlyMax)
}

func guaranteePrompt(in OfferInput) string {
	pb := in.Playbook()
	return offerContext(in) + fmt.Sprintf("A guarantee that works in this niche: %s within %d days.\n",
		pb.GuaranteeMetric(), pb.GuaranteeWindowDays())
}

func writerPrompt(in OfferInput) string {
	segment := in.Recommendation.TargetSegment
	if segment == "" {
		segment = in.Playbook().DefaultSegment()
	}
	return offerContext(in) + "Target segment: " + segment + "\n"
}

var (
	_ Agent[OfferInput, PricingOutput]     = LocalPricing{}
	_ Agent[AnalysisInput, AnalysisOutput] = (*modelAgent[AnalysisInput, AnalysisOutput])(nil)
)
