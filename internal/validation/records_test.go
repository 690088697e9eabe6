package validation

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ashureev/offerforge/internal/domain"
)

func TestProfileValidation(t *testing.T) {
	tests := []struct {
		name    string
		profile domain.Profile
		fields  []string
	}{
		{
			name: "valid",
			profile: domain.Profile{
				TimeAvailability: domain.Time5To15,
				RevenueGoal:      domain.Revenue1kTo3k,
				Blockers:         []domain.Blocker{domain.BlockerNoOffer},
			},
		},
		{
			name:    "empty",
			profile: domain.Profile{},
			fields:  []string{"time_availability", "revenue_goal", "blockers"},
		},
		{
			name: "too many blockers",
			profile: domain.Profile{
				TimeAvailability: domain.Time30Plus,
				RevenueGoal:      domain.Revenue10kPlus,
				Blockers: []domain.Blocker{
					domain.BlockerNoOffer, domain.BlockerNoClients,
					domain.BlockerNoTime, domain.BlockerNoConfidence,
				},
			},
			fields: []string{"blockers"},
		},
		{
			name: "duplicate blocker",
			profile: domain.Profile{
				TimeAvailability: domain.TimeUnder5,
				RevenueGoal:      domain.RevenueUnder1k,
				Blockers:         []domain.Blocker{domain.BlockerNoTime, domain.BlockerNoTime},
			},
			fields: []string{"blockers"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Collector
			Profile(&c, &tt.profile)
			var got []string
			for _, e := range c.Errors() {
				got = append(got, e.Field)
			}
			if strings.Join(got, ",") != strings.Join(tt.fields, ",") {
				t.Fatalf("fields = %v, want %v", got, tt.fields)
			}
		})
	}
}

func TestAnswersValidation(t *testing.T) {
	var partial Collector
	Answers(&partial, domain.Answers{DeliveryModel: domain.DeliverySubscription}, false)
	if partial.HasErrors() {
		t.Fatalf("partial answers should pass: %s", partial.Summary())
	}

	var full Collector
	Answers(&full, domain.Answers{DeliveryModel: domain.DeliverySubscription}, true)
	if len(full.Errors()) != 2 {
		t.Fatalf("expected pricing_direction and location_city errors, got %s", full.Summary())
	}

	var long Collector
	Answers(&long, domain.Answers{LocationCity: strings.Repeat("a", MaxCityLength+1)}, false)
	if !long.HasErrors() {
		t.Fatal("city over the limit should fail")
	}
}

func TestOfferValidation(t *testing.T) {
	offer := domain.AssembledOffer{
		TransformationFrom: "leads wait hours",
		TransformationTo:   "leads answered in minutes",
		SystemDescription:  "an SMS responder",
		PricingSetup:       750,
		PricingMonthly:     297,
		Guarantee:          "reply within 5 minutes or a month free",
	}
	var c Collector
	Offer(&c, &offer)
	if err := c.Err(); err != nil {
		t.Fatalf("valid offer rejected: %v", err)
	}

	offer.Guarantee = ""
	offer.GuaranteeSkipped = true
	offer.PricingMonthly = math.NaN()
	var c2 Collector
	Offer(&c2, &offer)
	err := c2.Err()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	var verr *Error
	if !errors.As(err, &verr) || len(verr.Fields) != 1 || verr.Fields[0].Field != "pricing_monthly" {
		t.Fatalf("unexpected fields: %v", err)
	}
}
