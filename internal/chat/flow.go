package chat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/ashureev/offerforge/internal/domain"
)

// step is one stop of the guided flow. Card ids are "<step>:<ulid>" so an
// answer can be routed back to the question that asked it.
type step string

const (
	stepTime      step = "time_availability"
	stepRevenue   step = "revenue_goal"
	stepBlockers  step = "blockers"
	stepContext   step = "context"
	stepDelivery  step = "delivery_model"
	stepPricing   step = "pricing_direction"
	stepGuarantee step = "guarantee"
	stepAnalysis  step = "analysis"
	stepNiche     step = "niche"
	stepLocation  step = "location"
	stepGenerate  step = "generate"
	stepRetry     step = "retry"
	stepReview    step = "review"
	stepFinal     step = "final"
	stepComplete  step = "complete"
)

const (
	guaranteeInclude = "include"
	guaranteeSkip    = "skip"
	retryValue       = "retry"
)

func newCardID(s step) string {
	return string(s) + ":" + ulid.Make().String()
}

func stepOf(cardID string) step {
	s, _, _ := strings.Cut(cardID, ":")
	return step(s)
}

var (
	timeLabels = map[string]string{
		string(domain.TimeUnder5): "Under 5 hours",
		string(domain.Time5To15):  "5-15 hours",
		string(domain.Time15To30): "15-30 hours",
		string(domain.Time30Plus): "30+ hours",
	}
	revenueLabels = map[string]string{
		string(domain.RevenueUnder1k): "Under $1k",
		string(domain.Revenue1kTo3k):  "$1k-$3k",
		string(domain.Revenue3kTo5k):  "$3k-$5k",
		string(domain.Revenue5kTo10k): "$5k-$10k",
		string(domain.Revenue10kPlus): "$10k+",
	}
	blockerLabels = map[string]string{
		string(domain.BlockerNoOffer):      "I don't have an offer yet",
		string(domain.BlockerNoClients):    "I can't find clients",
		string(domain.BlockerNoTime):       "I'm short on time",
		string(domain.BlockerNoTechSkills): "I'm not technical",
		string(domain.BlockerNoConfidence): "I'm not confident selling",
	}
	deliveryLabels = map[string]string{
		string(domain.DeliverySubscription): "Monthly subscription",
		string(domain.DeliveryDoneForYou):   "Done for you",
		string(domain.DeliveryDoneWithYou):  "Done with you",
	}
	pricingLabels = map[string]string{
		string(domain.PricingLow):     "Entry level",
		string(domain.PricingMid):     "Market rate",
		string(domain.PricingPremium): "Premium",
	}
)

func options(values []string, labels map[string]string) []domain.Option {
	out := make([]domain.Option, len(values))
	for i, v := range values {
		out[i] = domain.Option{Value: v, Label: labels[v]}
	}
	return out
}

func optionCard(s step, prompt string, opts []domain.Option, maxSelect int) domain.Card {
	return domain.Card{
		ID:   newCardID(s),
		Type: domain.CardOptionSelector,
		OptionSelector: &domain.OptionSelector{
			Prompt:    prompt,
			Options:   opts,
			Multi:     maxSelect > 1,
			MaxSelect: maxSelect,
		},
	}
}

// question returns the intro text and card that ask for s.
func question(s step) (string, domain.Card) {
	switch s {
	case stepTime:
		return "Let's build your offer. First, a few questions about you.",
			optionCard(s, "How many hours a week can you put into this?",
				options(domain.TimeAvailabilityValues, timeLabels), 0)
	case stepRevenue:
		return "Got it.",
			optionCard(s, "What monthly revenue are you aiming for?",
				options(domain.RevenueGoalValues, revenueLabels), 0)
	case stepBlockers:
		return "And what's holding you back right now?",
			optionCard(s, fmt.Sprintf("Pick up to %d.", domain.MaxBlockers),
				options(domain.BlockerValues, blockerLabels), domain.MaxBlockers)
	case stepContext:
		return "Anything else I should know, like past jobs or industries you know well?",
			domain.Card{ID: newCardID(s), Type: domain.CardTextInput, TextInput: &domain.TextInput{
				Prompt:      "Tell me about your background (optional)",
				Placeholder: "I used to run the office at a roofing company...",
				Multiline:   true,
				MaxLength:   2000,
			}}
	case stepDelivery:
		return "Now let's shape the offer.",
			optionCard(s, "How do you want to deliver the system to clients?",
				options(domain.DeliveryModelValues, deliveryLabels), 0)
	case stepPricing:
		return "Where do you want to sit on price?",
			optionCard(s, "Pick a pricing direction.",
				options(domain.PricingDirectionValues, pricingLabels), 0)
	case stepGuarantee:
		return "A guarantee makes the offer easier to say yes to.",
			optionCard(s, "Should the offer include a guarantee?", []domain.Option{
				{Value: guaranteeInclude, Label: "Include a guarantee", Description: "Tied to a metric you control"},
				{Value: guaranteeSkip, Label: "No guarantee"},
			}, 0)
	case stepLocation:
		return "While I draft your offer, one last question.",
			domain.Card{ID: newCardID(s), Type: domain.CardLocation, Location: &domain.LocationInput{
				Prompt:      "Which city do you mainly serve?",
				Placeholder: "Leeds",
			}}
	case stepRetry:
		return "I couldn't finish your offer this time.",
			optionCard(s, "Want me to try again?", []domain.Option{{Value: retryValue, Label: "Try again"}}, 0)
	default:
		return "", domain.Card{}
	}
}

func nicheCard(recs []domain.Recommendation) domain.Card {
	return domain.Card{ID: newCardID(stepNiche), Type: domain.CardScoreCards, ScoreCards: &domain.ScoreCards{
		Prompt:          "These niches fit you best. Pick the one you want to build for.",
		Recommendations: recs,
	}}
}

func trackerCard(s step, title string, steps []domain.ProgressStep) domain.Card {
	return domain.Card{ID: newCardID(s), Type: domain.CardProgressTracker, ProgressTracker: &domain.ProgressTracker{
		Title: title,
		Steps: steps,
	}}
}

// Review field names match the offer's JSON keys.
const (
	fieldFrom        = "transformation_from"
	fieldTo          = "transformation_to"
	fieldDescription = "system_description"
	fieldSetup       = "pricing_setup"
	fieldMonthly     = "pricing_monthly"
	fieldGuarantee   = "guarantee"
)

func reviewCard(o *domain.AssembledOffer) domain.Card {
	fields := []domain.EditableField{
		{Name: fieldFrom, Label: "Where your client is today", Kind: domain.FieldTextarea, Value: o.TransformationFrom},
		{Name: fieldTo, Label: "Where they'll be", Kind: domain.FieldTextarea, Value: o.TransformationTo},
		{Name: fieldDescription, Label: "The system", Kind: domain.FieldTextarea, Value: o.SystemDescription},
		{Name: fieldSetup, Label: "Setup fee", Kind: domain.FieldCurrency, Value: formatPrice(o.PricingSetup)},
		{Name: fieldMonthly, Label: "Monthly fee", Kind: domain.FieldCurrency, Value: formatPrice(o.PricingMonthly)},
	}
	if !o.GuaranteeSkipped {
		fields = append(fields, domain.EditableField{Name: fieldGuarantee, Label: "Guarantee", Kind: domain.FieldTextarea, Value: o.Guarantee})
	}
	return domain.Card{ID: newCardID(stepReview), Type: domain.CardEditableContent, EditableContent: &domain.EditableContent{
		Title:  "Review your offer",
		Fields: fields,
	}}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
