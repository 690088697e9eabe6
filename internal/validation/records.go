package validation

import (
	"math"
	"strings"

	"github.com/ashureev/offerforge/internal/domain"
)

// MaxCityLength caps location_city.
const MaxCityLength = 80

// MaxContextLength caps the free-text profile context.
const MaxContextLength = 2000

// Profile checks the structured profile signals.
func Profile(c *Collector, p *domain.Profile) {
	c.Add(ValidateEnum("time_availability", string(p.TimeAvailability), domain.TimeAvailabilityValues))
	c.Add(ValidateEnum("revenue_goal", string(p.RevenueGoal), domain.RevenueGoalValues))
	if len(p.Blockers) == 0 {
		c.Addf("blockers", "must list at least one blocker")
	}
	if len(p.Blockers) > domain.MaxBlockers {
		c.Addf("blockers", "must list at most %d blockers", domain.MaxBlockers)
	}
	seen := make(map[domain.Blocker]bool, len(p.Blockers))
	for _, b := range p.Blockers {
		if err := ValidateEnum("blockers", string(b), domain.BlockerValues); err != nil {
			c.Add(err)
			break
		}
		if seen[b] {
			c.Addf("blockers", "must not repeat %s", b)
			break
		}
		seen[b] = true
	}
	c.Add(ValidateMaxLength("context", p.Context, MaxContextLength))
	c.Add(ValidateNoNullBytes("context", p.Context))
}

// Answers checks the offer answers. Empty values are allowed only when
// requireAll is false.
func Answers(c *Collector, a domain.Answers, requireAll bool) {
	if a.DeliveryModel != "" || requireAll {
		c.Add(ValidateEnum("delivery_model", string(a.DeliveryModel), domain.DeliveryModelValues))
	}
	if a.PricingDirection != "" || requireAll {
		c.Add(ValidateEnum("pricing_direction", string(a.PricingDirection), domain.PricingDirectionValues))
	}
	if requireAll {
		c.Add(ValidateRequired("location_city", a.LocationCity))
	}
	c.Add(ValidateMaxLength("location_city", a.LocationCity, MaxCityLength))
	c.Add(ValidateNoNullBytes("location_city", a.LocationCity))
}

// Recommendation checks the fields the fan-out depends on.
func Recommendation(c *Collector, r *domain.ChosenRecommendation) {
	c.Add(ValidateRequired("chosen_recommendation.niche", r.Niche))
	c.Add(ValidateRequired("chosen_recommendation.bottleneck", r.Bottleneck))
	c.Add(ValidateNonNegative("chosen_recommendation.revenue_potential.per_client", r.RevenuePotential.PerClient))
	c.Add(ValidateNonNegative("chosen_recommendation.revenue_potential.monthly_total", r.RevenuePotential.MonthlyTotal))
}

// Offer checks an assembled or user-edited offer.
func Offer(c *Collector, o *domain.AssembledOffer) {
	c.Add(ValidateRequired("transformation_from", o.TransformationFrom))
	c.Add(ValidateRequired("transformation_to", o.TransformationTo))
	c.Add(ValidateRequired("system_description", o.SystemDescription))
	Price(c, "pricing_setup", o.PricingSetup)
	Price(c, "pricing_monthly", o.PricingMonthly)
	if !o.GuaranteeSkipped {
		c.Add(ValidateRequired("guarantee", o.Guarantee))
	}
	if o.DeliveryModel != "" {
		c.Add(ValidateEnum("delivery_model", string(o.DeliveryModel), domain.DeliveryModelValues))
	}
	for field, v := range map[string]string{
		"segment": o.Segment, "transformation_from": o.TransformationFrom,
		"transformation_to": o.TransformationTo, "system_description": o.SystemDescription,
		"guarantee": o.Guarantee,
	} {
		if strings.Contains(v, "\x00") {
			c.Add(ValidateNoNullBytes(field, v))
		}
	}
}

// Price rejects negative and non-finite amounts.
func Price(c *Collector, field string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.Addf(field, "must be a finite number")
		return
	}
	c.Add(ValidateNonNegative(field, v))
}
