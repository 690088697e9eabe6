package agents

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ashureev/offerforge/internal/domain"
)

// NewLocalSet returns agents that derive every facet from the niche playbooks
// without calling a model. They back the "local" provider, the CLI and tests.
func NewLocalSet() Set {
	return Set{
		Analyst:   LocalAnalyst{},
		Pricing:   LocalPricing{},
		Guarantee: LocalGuarantee{},
		Writer:    LocalWriter{},
	}
}

type nicheSeed struct {
	tag        domain.NicheTag
	niche      string
	bottleneck string
	solution   string
	base       int
}

var nicheCatalog = []nicheSeed{
	{domain.NicheHomeServices, "roofing contractors", "lead response time", "an instant lead-response system that texts back and books every new enquiry", 70},
	{domain.NicheHealthClinic, "dental practices", "missed calls during patient hours", "a missed-call text-back and online booking assistant", 68},
	{domain.NicheProfessionalServices, "accounting firms", "slow intake of new enquiries", "an intake assistant that qualifies enquiries and books consultations", 64},
	{domain.NicheRealEstate, "independent estate agents", "portal leads going cold", "a follow-up sequence that works every portal lead for 14 days", 62},
	{domain.NicheFitness, "boutique fitness studios", "trial sign-ups that never show up", "a trial onboarding and reminder sequence", 60},
	{domain.NicheHospitality, "independent restaurants", "unanswered booking requests and reviews", "a booking and review reply assistant", 58},
}

var revenueTargets = map[domain.RevenueGoal]float64{
	domain.RevenueUnder1k: 750,
	domain.Revenue1kTo3k:  2000,
	domain.Revenue3kTo5k:  4000,
	domain.Revenue5kTo10k: 7500,
	domain.Revenue10kPlus: 12000,
}

// LocalAnalyst ranks the niche catalog against the profile signals.
type LocalAnalyst struct{}

func (LocalAnalyst) Name() string { return NameAnalyst }

func (LocalAnalyst) Run(ctx context.Context, in AnalysisInput) (AnalysisOutput, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisOutput{}, err
	}

	hinted := domain.ClassifyNiche(in.Profile.Context)
	type scored struct {
		seed  nicheSeed
		score int
	}
	ranked := make([]scored, 0, len(nicheCatalog))
	for _, seed := range nicheCatalog {
		score := seed.base + profileAffinity(seed.tag, &in.Profile)
		if hinted != domain.NicheGeneral && hinted == seed.tag {
			score += 25
		}
		ranked = append(ranked, scored{seed: seed, score: min(score, 99)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	target := revenueTargets[in.Profile.RevenueGoal]
	if target == 0 {
		target = revenueTargets[domain.Revenue1kTo3k]
	}

	out := AnalysisOutput{}
	for i, r := range ranked[:3] {
		pb := domain.PlaybookFor(r.seed.tag)
		_, perClient := pb.PriceBand(domain.PricingMid).Midpoints()
		clients := int(math.Ceil(target / perClient))
		out.Recommendations = append(out.Recommendations, domain.Recommendation{
			ID:    uuid.NewString(),
			Rank:  i + 1,
			Score: r.score,
			ChosenRecommendation: domain.ChosenRecommendation{
				Niche:            r.seed.niche,
				Bottleneck:       r.seed.bottleneck,
				Solution:         r.seed.solution,
				TargetSegment:    pb.DefaultSegment(),
				SegmentRationale: fmt.Sprintf("They feel %s directly in lost revenue and can decide quickly.", r.seed.bottleneck),
				RevenuePotential: domain.RevenuePotential{
					PerClient:     perClient,
					TargetClients: clients,
					MonthlyTotal:  perClient * float64(clients),
				},
				StrategicInsight: fmt.Sprintf("%d clients at %.0f a month reaches your goal.", clients, perClient),
			},
		})
	}
	return out, nil
}

func profileAffinity(tag domain.NicheTag, p *domain.Profile) int {
	score := 0
	switch p.RevenueGoal {
	case domain.Revenue5kTo10k, domain.Revenue10kPlus:
		if tag == domain.NicheHealthClinic || tag == domain.NicheProfessionalServices {
			score += 8
		}
	case domain.RevenueUnder1k:
		if tag == domain.NicheHospitality || tag == domain.NicheFitness {
			score += 6
		}
	case domain.Revenue1kTo3k, domain.Revenue3kTo5k:
	}
	switch p.TimeAvailability {
	case domain.TimeUnder5:
		if tag == domain.NicheHospitality || tag == domain.NicheFitness {
			score += 6
		}
		if tag == domain.NicheProfessionalServices {
			score -= 4
		}
	case domain.Time30Plus:
		if tag == domain.NicheProfessionalServices {
			score += 4
		}
	case domain.Time5To15, domain.Time15To30:
	}
	for _, b := range p.Blockers {
		switch b {
		case domain.BlockerNoClients:
			if tag == domain.NicheHomeServices || tag == domain.NicheRealEstate {
				score += 5
			}
		case domain.BlockerNoTechSkills:
			if tag == domain.NicheHospitality || tag == domain.NicheFitness {
				score += 4
			}
		case domain.BlockerNoConfidence:
			if tag == domain.NicheHomeServices {
				score += 3
			}
		case domain.BlockerNoOffer, domain.BlockerNoTime:
		}
	}
	return score
}

// LocalPricing prices from the playbook band for the chosen direction.
type LocalPricing struct{}

func (LocalPricing) Name() string { return NamePricing }

func (LocalPricing) Run(ctx context.Context, in OfferInput) (PricingOutput, error) {
	if err := ctx.Err(); err != nil {
		return PricingOutput{}, err
	}
	direction := in.Answers.PricingDirection
	if direction == "" {
		direction = domain.PricingMid
	}
	setup, monthly := in.Playbook().PriceBand(direction).Midpoints()

	switch in.Answers.DeliveryModel {
	case domain.DeliverySubscription:
		setup *= 0.5
	case domain.DeliveryDoneForYou:
		setup *= 1.25
		monthly *= 1.1
	case domain.DeliveryDoneWithYou:
		monthly *= 0.85
	}

	return PricingOutput{
		Setup:     roundPrice(setup),
		Monthly:   roundPrice(monthly),
		Rationale: fmt.Sprintf("%s pricing for %s, %s delivery", direction, in.Recommendation.Niche, deliveryPhrase(in.Answers.DeliveryModel)),
	}, nil
}

// roundPrice snaps to a charm price (497 rather than 500) above 100.
func roundPrice(v float64) float64 {
	if v < 100 {
		return math.Max(0, math.Round(v))
	}
	return math.Round(v/10)*10 - 3
}

// LocalGuarantee builds the guarantee from the playbook's controllable metric.
type LocalGuarantee struct{}

func (LocalGuarantee) Name() string { return NameGuarantee }

func (LocalGuarantee) Run(ctx context.Context, in OfferInput) (GuaranteeOutput, error) {
	if err := ctx.Err(); err != nil {
		return GuaranteeOutput{}, err
	}
	if in.Answers.SkipGuarantee {
		return GuaranteeOutput{Skipped: true}, nil
	}
	pb := in.Playbook()
	return GuaranteeOutput{
		Text: fmt.Sprintf("We guarantee that %s. If that is not true within %d days of going live, your next month is free.",
			pb.GuaranteeMetric(), pb.GuaranteeWindowDays()),
		Metric:     pb.GuaranteeMetric(),
		WindowDays: pb.GuaranteeWindowDays(),
	}, nil
}

// LocalWriter writes the transformation narrative from the recommendation.
type LocalWriter struct{}

func (LocalWriter) Name() string { return NameWriter }

func (LocalWriter) Run(ctx context.Context, in OfferInput) (NarrativeOutput, error) {
	if err := ctx.Err(); err != nil {
		return NarrativeOutput{}, err
	}
	rec := in.Recommendation
	segment := rec.TargetSegment
	if segment == "" {
		segment = in.Playbook().DefaultSegment()
	}
	where := ""
	if in.Answers.LocationCity != "" {
		where = " in " + in.Answers.LocationCity
	}
	solution := rec.Solution
	if solution == "" {
		solution = "an automated follow-up system"
	}

	return NarrativeOutput{
		TransformationFrom: fmt.Sprintf("%s%s losing work to %s.", capitalize(rec.Niche), where, rec.Bottleneck),
		TransformationTo:   fmt.Sprintf("%s%s where %s is handled automatically, so no enquiry slips through.", capitalize(segment), where, rec.Bottleneck),
		SystemDescription:  fmt.Sprintf("%s, %s.", capitalize(solution), deliveryPhrase(in.Answers.DeliveryModel)),
	}, nil
}

func deliveryPhrase(m domain.DeliveryModel) string {
	switch m {
	case domain.DeliverySubscription:
		return "delivered as a monthly subscription"
	case domain.DeliveryDoneForYou:
		return "set up and run for the client"
	case domain.DeliveryDoneWithYou:
		return "built together with the client's team"
	default:
		return "delivered as a managed service"
	}
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
