package domain

import "time"

// TimeAvailability is how many hours a week the user can invest.
type TimeAvailability string

const (
	TimeUnder5 TimeAvailability = "under_5"
	Time5To15  TimeAvailability = "5_to_15"
	Time15To30 TimeAvailability = "15_to_30"
	Time30Plus TimeAvailability = "30_plus"
)

// RevenueGoal is the monthly revenue the user is aiming for.
type RevenueGoal string

const (
	RevenueUnder1k RevenueGoal = "under_1k"
	Revenue1kTo3k  RevenueGoal = "1k_3k"
	Revenue3kTo5k  RevenueGoal = "3k_5k"
	Revenue5kTo10k RevenueGoal = "5k_10k"
	Revenue10kPlus RevenueGoal = "10k_plus"
)

// Blocker is something the user says is holding them back.
type Blocker string

const (
	BlockerNoOffer      Blocker = "no_offer"
	BlockerNoClients    Blocker = "no_clients"
	BlockerNoTime       Blocker = "no_time"
	BlockerNoTechSkills Blocker = "no_tech_skills"
	BlockerNoConfidence Blocker = "no_confidence"
)

// MaxBlockers caps the blockers a profile may carry.
const MaxBlockers = 3

// TimeAvailabilityValues lists the accepted time availability answers in display order.
var TimeAvailabilityValues = []string{
	string(TimeUnder5), string(Time5To15), string(Time15To30), string(Time30Plus),
}

// RevenueGoalValues lists the accepted revenue goals in display order.
var RevenueGoalValues = []string{
	string(RevenueUnder1k), string(Revenue1kTo3k), string(Revenue3kTo5k),
	string(Revenue5kTo10k), string(Revenue10kPlus),
}

// BlockerValues lists the accepted blockers in display order.
var BlockerValues = []string{
	string(BlockerNoOffer), string(BlockerNoClients), string(BlockerNoTime),
	string(BlockerNoTechSkills), string(BlockerNoConfidence),
}

// Profile holds the signals the niche analysis runs on.
type Profile struct {
	UserID           string           `json:"user_id,omitempty"`
	TimeAvailability TimeAvailability `json:"time_availability"`
	RevenueGoal      RevenueGoal      `json:"revenue_goal"`
	Blockers         []Blocker        `json:"blockers"`
	Context          string           `json:"context,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at,omitempty"`
}

// IsComplete reports whether the structured signals are all present.
// Context is optional free text and does not gate completeness.
func (p *Profile) IsComplete() bool {
	return p != nil && p.TimeAvailability != "" && p.RevenueGoal != "" && len(p.Blockers) > 0
}

// BlockerStrings returns the blockers as plain strings.
func (p *Profile) BlockerStrings() []string {
	out := make([]string, len(p.Blockers))
	for i, b := range p.Blockers {
		out[i] = string(b)
	}
	return out
}
