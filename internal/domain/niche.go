package domain

import "strings"

// NicheTag is the closed set of verticals the generators know how to handle.
type NicheTag string

const (
	NicheHomeServices         NicheTag = "home_services"
	NicheHealthClinic         NicheTag = "health_clinic"
	NicheProfessionalServices NicheTag = "professional_services"
	NicheRealEstate           NicheTag = "real_estate"
	NicheFitness              NicheTag = "fitness"
	NicheHospitality          NicheTag = "hospitality"
	// NicheGeneral is the fallback for anything unrecognised.
	NicheGeneral NicheTag = "general"
)

// nicheKeywords is checked in order; the first tag with a matching keyword wins.
var nicheKeywords = []struct {
	tag      NicheTag
	keywords []string
}{
	{NicheHomeServices, []string{"roof", "plumb", "hvac", "electric", "landscap", "clean", "pest", "contractor", "remodel", "paint", "handyman", "garage door", "solar"}},
	{NicheHealthClinic, []string{"dental", "dentist", "chiro", "clinic", "med spa", "physio", "therap", "optometr", "vet", "orthodont"}},
	{NicheProfessionalServices, []string{"law", "legal", "attorney", "account", "bookkeep", "tax", "insurance", "financial", "consult", "agency"}},
	{NicheRealEstate, []string{"real estate", "realtor", "property", "mortgage", "letting", "broker"}},
	{NicheFitness, []string{"gym", "fitness", "personal train", "yoga", "pilates", "crossfit", "martial"}},
	{NicheHospitality, []string{"restaurant", "cafe", "hotel", "salon", "barber", "spa", "bakery", "catering", "pub"}},
}

// ClassifyNiche maps a free-text niche to its tag, falling back to NicheGeneral.
func ClassifyNiche(niche string) NicheTag {
	n := strings.ToLower(strings.TrimSpace(niche))
	if n == "" {
		return NicheGeneral
	}
	for _, entry := range nicheKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(n, kw) {
				return entry.tag
			}
		}
	}
	return NicheGeneral
}

// PriceBand is an anchor range for setup and monthly pricing.
type PriceBand struct {
	SetupMin   float64 `json:"setup_min"`
	SetupMax   float64 `json:"setup_max"`
	MonthlyMin float64 `json:"monthly_min"`
	MonthlyMax float64 `json:"monthly_max"`
}

// Midpoints returns the centre of the band.
func (b PriceBand) Midpoints() (setup, monthly float64) {
	return (b.SetupMin + b.SetupMax) / 2, (b.MonthlyMin + b.MonthlyMax) / 2
}

// Playbook is the niche-specific capability the generators draw on.
type Playbook interface {
	Tag() NicheTag
	// PriceBand returns pricing anchors for the chosen direction.
	PriceBand(direction PricingDirection) PriceBand
	// GuaranteeMetric is an outcome the operator controls and can measure.
	GuaranteeMetric() string
	// GuaranteeWindowDays is how long the operator has to hit the metric.
	GuaranteeWindowDays() int
	// DefaultSegment describes the typical buyer when the analysis gave none.
	DefaultSegment() string
}

type playbook struct {
	tag     NicheTag
	base    PriceBand
	metric  string
	window  int
	segment string
}

func (p playbook) Tag() NicheTag            { return p.tag }
func (p playbook) GuaranteeMetric() string  { return p.metric }
func (p playbook) GuaranteeWindowDays() int { return p.window }
func (p playbook) DefaultSegment() string   { return p.segment }

func (p playbook) PriceBand(direction PricingDirection) PriceBand {
	factor := 1.0
	switch direction {
	case PricingLow:
		factor = 0.6
	case PricingPremium:
		factor = 1.8
	case PricingMid:
	}
	return PriceBand{
		SetupMin:   p.base.SetupMin * factor,
		SetupMax:   p.base.SetupMax * factor,
		MonthlyMin: p.base.MonthlyMin * factor,
		MonthlyMax: p.base.MonthlyMax * factor,
	}
}

var (
	homeServicesPlaybook = playbook{
		tag:     NicheHomeServices,
		base:    PriceBand{SetupMin: 500, SetupMax: 1500, MonthlyMin: 297, MonthlyMax: 697},
		metric:  "every new enquiry gets a reply within 5 minutes, day or night",
		window:  30,
		segment: "owner-operated trade businesses with 2-15 staff",
	}
	healthClinicPlaybook = playbook{
		tag:     NicheHealthClinic,
		base:    PriceBand{SetupMin: 800, SetupMax: 2000, MonthlyMin: 397, MonthlyMax: 897},
		metric:  "every missed call receives a booking link by text within 2 minutes",
		window:  30,
		segment: "independent clinics with one or two locations",
	}
	professionalServicesPlaybook = playbook{
		tag:     NicheProfessionalServices,
		base:    PriceBand{SetupMin: 1000, SetupMax: 2500, MonthlyMin: 497, MonthlyMax: 997},
		metric:  "every web enquiry is qualified and offered a consultation slot the same day",
		window:  45,
		segment: "small firms where the partners still answer new enquiries",
	}
	realEstatePlaybook = playbook{
		tag:     NicheRealEstate,
		base:    PriceBand{SetupMin: 700, SetupMax: 1800, MonthlyMin: 347, MonthlyMax: 797},
		metric:  "every portal lead is contacted within 5 minutes and followed up for 14 days",
		window:  30,
		segment: "independent agents and small agencies",
	}
	fitnessPlaybook = playbook{
		tag:     NicheFitness,
		base:    PriceBand{SetupMin: 400, SetupMax: 1200, MonthlyMin: 197, MonthlyMax: 497},
		metric:  "every trial sign-up is contacted the same day and reminded before their first session",
		window:  30,
		segment: "studios and gyms with under 500 members",
	}
	hospitalityPlaybook = playbook{
		tag:     NicheHospitality,
		base:    PriceBand{SetupMin: 300, SetupMax: 900, MonthlyMin: 147, MonthlyMax: 397},
		metric:  "every booking request and review receives a reply within one hour",
		window:  30,
		segment: "independent venues run by the owner",
	}
	generalPlaybook = playbook{
		tag:     NicheGeneral,
		base:    PriceBand{SetupMin: 500, SetupMax: 1500, MonthlyMin: 250, MonthlyMax: 650},
		metric:  "the system is live and handling enquiries within 14 days of kickoff",
		window:  14,
		segment: "owner-led local businesses",
	}
)

// PlaybookFor returns the playbook for a tag; unknown tags get the general one.
func PlaybookFor(tag NicheTag) Playbook {
	switch tag {
	case NicheHomeServices:
		return homeServicesPlaybook
	case NicheHealthClinic:
		return healthClinicPlaybook
	case NicheProfessionalServices:
		return professionalServicesPlaybook
	case NicheRealEstate:
		return realEstatePlaybook
	case NicheFitness:
		return fitnessPlaybook
	case NicheHospitality:
		return hospitalityPlaybook
	case NicheGeneral:
		return generalPlaybook
	default:
		return generalPlaybook
	}
}
