package quality

import (
	"fmt"
	"math"
	"strings"

	"github.com/ashureev/offerforge/internal/agents"
	"github.com/ashureev/offerforge/internal/domain"
)

// maxPrice is a sanity ceiling; anything above is a model error, not a price.
const maxPrice = 100000

// AnalysisGate requires at least one complete, non-negative recommendation.
func AnalysisGate() *Gate[agents.AnalysisOutput] {
	return NewGate("analysis",
		func(out agents.AnalysisOutput) (string, bool) {
			if len(out.Recommendations) == 0 {
				return "no recommendations", false
			}
			return "", true
		},
		func(out agents.AnalysisOutput) (string, bool) {
			for i, r := range out.Recommendations {
				if reason, ok := requireText(fmt.Sprintf("recommendations[%d].niche", i), r.Niche, 3); !ok {
					return reason, false
				}
				if reason, ok := requireText(fmt.Sprintf("recommendations[%d].bottleneck", i), r.Bottleneck, 3); !ok {
					return reason, false
				}
				rp := r.RevenuePotential
				if rp.PerClient < 0 || rp.MonthlyTotal < 0 || rp.TargetClients < 0 {
					return fmt.Sprintf("recommendations[%d] has negative revenue potential", i), false
				}
				if r.Score < 0 || r.Score > 100 {
					return fmt.Sprintf("recommendations[%d].score out of range", i), false
				}
			}
			return "", true
		},
	)
}

// PricingGate requires finite, non-negative prices below the sanity ceiling.
// A subscription needs a monthly fee; other delivery models may be a one-off
// setup price, but the offer must charge something.
func PricingGate(delivery domain.DeliveryModel) *Gate[agents.PricingOutput] {
	return NewGate("pricing",
		func(out agents.PricingOutput) (string, bool) {
			for field, v := range map[string]float64{"setup": out.Setup, "monthly": out.Monthly} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return field + " is not a number", false
				}
				if v < 0 {
					return field + " is negative", false
				}
				if v > maxPrice {
					return field + " exceeds the sanity ceiling", false
				}
			}
			return "", true
		},
		func(out agents.PricingOutput) (string, bool) {
			if delivery == domain.DeliverySubscription && out.Monthly == 0 {
				return "subscription has no monthly price", false
			}
			if out.Setup == 0 && out.Monthly == 0 {
				return "offer charges nothing", false
			}
			return "", true
		},
	)
}

// outcomePromises are phrases that make a guarantee depend on things the
// operator does not control.
var outcomePromises = []string{
	"double your", "triple your", "guaranteed revenue", "guaranteed income",
	"more customers", "more clients", "more sales", "first page", "#1 on google",
	"10x", "roi of",
}

// GuaranteeGate requires a guarantee unless the user skipped it, and rejects
// guarantees that promise outcomes the operator cannot deliver.
func GuaranteeGate(skipAllowed bool) *Gate[agents.GuaranteeOutput] {
	return NewGate("guarantee",
		func(out agents.GuaranteeOutput) (string, bool) {
			if out.Skipped {
				if skipAllowed {
					return "", true
				}
				return "guarantee skipped without the user asking", false
			}
			return requireText("guarantee", out.Text, 20)
		},
		func(out agents.GuaranteeOutput) (string, bool) {
			lower := strings.ToLower(out.Text)
			for _, p := range outcomePromises {
				if strings.Contains(lower, p) {
					return fmt.Sprintf("guarantee promises an outcome outside the operator's control (%q)", p), false
				}
			}
			return "", true
		},
		func(out agents.GuaranteeOutput) (string, bool) {
			if !out.Skipped && out.WindowDays < 0 {
				return "guarantee window is negative", false
			}
			return "", true
		},
	)
}

// NarrativeGate requires all three narrative fields and a real transformation.
func NarrativeGate() *Gate[agents.NarrativeOutput] {
	return NewGate("narrative",
		func(out agents.NarrativeOutput) (string, bool) {
			if reason, ok := requireText("transformation_from", out.TransformationFrom, 10); !ok {
				return reason, false
			}
			if reason, ok := requireText("transformation_to", out.TransformationTo, 10); !ok {
				return reason, false
			}
			return requireText("system_description", out.SystemDescription, 10)
		},
		func(out agents.NarrativeOutput) (string, bool) {
			if strings.EqualFold(strings.TrimSpace(out.TransformationFrom), strings.TrimSpace(out.TransformationTo)) {
				return "transformation_from and transformation_to are identical", false
			}
			return "", true
		},
	)
}

// OfferGate checks the assembled offer as a whole.
func OfferGate() *Gate[domain.AssembledOffer] {
	return NewGate("offer",
		func(o domain.AssembledOffer) (string, bool) {
			if !o.IsPopulated() {
				return "offer has no transformation narrative", false
			}
			if o.PricingSetup < 0 || o.PricingMonthly < 0 {
				return "offer has a negative price", false
			}
			if !o.GuaranteeSkipped && strings.TrimSpace(o.Guarantee) == "" {
				return "offer has no guarantee", false
			}
			return "", true
		},
	)
}
