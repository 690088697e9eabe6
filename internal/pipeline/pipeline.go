// Package pipeline runs the offer generation flow: one analysis stage, a
// parallel fan-out of pricing, guarantee and narrative, then assembly.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/offerforge/internal/agents"
	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/observability"
	"github.com/ashureev/offerforge/internal/quality"
	"github.com/ashureev/offerforge/internal/validation"
)

// attemptsPerStage is the first try plus one regeneration.
const attemptsPerStage = 2

// Pipeline coordinates the generation agents through their quality gates.
// It has no retry policy across a whole run.
type Pipeline struct {
	agents agents.Set
}

// New creates a pipeline over the given agents.
func New(set agents.Set) *Pipeline {
	return &Pipeline{agents: set}
}

// Analyze runs the niche analyst and returns ranked recommendations.
func (p *Pipeline) Analyze(ctx context.Context, profile domain.Profile) ([]domain.Recommendation, error) {
	var c validation.Collector
	validation.Profile(&c, &profile)
	if err := c.Err(); err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With("stage", "analysis")
	out, err := runGated(ctx, log, p.agents.Analyst, quality.AnalysisGate(), agents.AnalysisInput{Profile: profile})
	if err != nil {
		return nil, err
	}
	return out.Recommendations, nil
}

// Generate runs the fan-out and assembly stages. The returned error is
// non-nil only for invalid input; agent failures are reported in the Result.
func (p *Pipeline) Generate(ctx context.Context, in Input, progress ProgressFunc) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	report := serialised(progress)
	log := observability.LoggerFromContext(ctx).With(
		"run_id", uuid.NewString(),
		"niche", in.ChosenRecommendation.Niche,
	)
	start := time.Now()
	log.Info("pipeline started")

	agentIn := agents.OfferInput{
		Recommendation: in.ChosenRecommendation,
		Profile:        in.Profile,
		Answers:        in.Answers,
	}

	var (
		mu        sync.Mutex
		failures  []FacetFailure
		pricing   *agents.PricingOutput
		guarantee *agents.GuaranteeOutput
		narrative *agents.NarrativeOutput
	)
	fail := func(f Facet, err error) {
		mu.Lock()
		failures = append(failures, FacetFailure{Facet: f, Reason: err.Error()})
		mu.Unlock()
	}

	// Branches never return an error so one failure cannot cancel its siblings.
	var g errgroup.Group
	g.Go(func() error {
		report(StepPricing, domain.StepActive, "")
		out, err := runGated(ctx, log, p.agents.Pricing, quality.PricingGate(in.Answers.DeliveryModel), agentIn)
		if err != nil {
			fail(FacetPricing, err)
			report(StepPricing, domain.StepDone, "Failed")
			return nil
		}
		pricing = &out
		report(StepPricing, domain.StepDone, "")
		return nil
	})
	g.Go(func() error {
		report(StepGuarantee, domain.StepActive, "")
		out, err := runGated(ctx, log, p.agents.Guarantee, quality.GuaranteeGate(in.Answers.SkipGuarantee), agentIn)
		if err != nil {
			fail(FacetGuarantee, err)
			report(StepGuarantee, domain.StepDone, "Failed")
			return nil
		}
		guarantee = &out
		report(StepGuarantee, domain.StepDone, "")
		return nil
	})
	g.Go(func() error {
		report(StepNarrative, domain.StepActive, "")
		out, err := runGated(ctx, log, p.agents.Writer, quality.NarrativeGate(), agentIn)
		if err != nil {
			fail(FacetNarrative, err)
			report(StepNarrative, domain.StepDone, "Failed")
			return nil
		}
		narrative = &out
		report(StepNarrative, domain.StepDone, "")
		return nil
	})
	_ = g.Wait()

	report(StepAssembly, domain.StepActive, "")
	result := assemble(in, pricing, guarantee, narrative, failures)
	if result.Succeeded() {
		report(StepAssembly, domain.StepDone, "")
		log.Info("pipeline finished", "status", result.Status, "elapsed_ms", time.Since(start).Milliseconds())
	} else {
		report(StepAssembly, domain.StepDone, "Incomplete")
		log.Warn("pipeline failed",
			"missing", result.Missing,
			"reason", result.Reason,
			"elapsed_ms", time.Since(start).Milliseconds())
	}
	return result, nil
}

// assemble merges the fan-out results. It fails when any branch is missing
// and then returns the successful facets as a partial offer.
func assemble(in Input, pricing *agents.PricingOutput, guarantee *agents.GuaranteeOutput, narrative *agents.NarrativeOutput, failures []FacetFailure) Result {
	segment := strings.TrimSpace(in.ChosenRecommendation.TargetSegment)
	if segment == "" {
		segment = domain.PlaybookFor(in.ChosenRecommendation.Tag()).DefaultSegment()
	}
	delivery := in.Answers.DeliveryModel

	var missing []Facet
	if pricing == nil {
		missing = append(missing, FacetPricing)
	}
	if guarantee == nil {
		missing = append(missing, FacetGuarantee)
	}
	if narrative == nil {
		missing = append(missing, FacetNarrative)
	}

	if len(missing) > 0 {
		partial := &PartialOffer{Segment: ptr(segment)}
		if delivery != "" {
			partial.DeliveryModel = ptr(delivery)
		}
		if pricing != nil {
			partial.PricingSetup = ptr(pricing.Setup)
			partial.PricingMonthly = ptr(pricing.Monthly)
		}
		if guarantee != nil {
			if guarantee.Skipped {
				partial.GuaranteeSkipped = true
			} else {
				partial.Guarantee = ptr(guarantee.Text)
			}
		}
		if narrative != nil {
			partial.TransformationFrom = ptr(narrative.TransformationFrom)
			partial.TransformationTo = ptr(narrative.TransformationTo)
			partial.SystemDescription = ptr(narrative.SystemDescription)
		}
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		return Result{
			Status:   StatusFailed,
			Reason:   "could not generate " + strings.Join(names, ", "),
			Partial:  partial,
			Missing:  missing,
			Failures: failures,
		}
	}

	offer := domain.AssembledOffer{
		Segment:            segment,
		TransformationFrom: narrative.TransformationFrom,
		TransformationTo:   narrative.TransformationTo,
		SystemDescription:  narrative.SystemDescription,
		PricingSetup:       pricing.Setup,
		PricingMonthly:     pricing.Monthly,
		Guarantee:          guarantee.Text,
		GuaranteeSkipped:   guarantee.Skipped,
		DeliveryModel:      delivery,
	}
	if guarantee.Skipped {
		offer.Guarantee = ""
	}
	if v := quality.OfferGate().Validate(offer); !v.Accepted {
		return Result{Status: StatusFailed, Reason: v.Reason}
	}
	return Result{Status: StatusSuccess, Result: &offer}
}

// runGated runs an agent and validates its output, allowing one regeneration
// with the original input.
func runGated[I, O any](ctx context.Context, log *slog.Logger, agent agents.Agent[I, O], gate *quality.Gate[O], in I) (O, error) {
	var last error
	for attempt := 1; attempt <= attemptsPerStage; attempt++ {
		start := time.Now()
		log.Debug("agent run start", "agent", agent.Name(), "attempt", attempt)

		out, err := agent.Run(ctx, in)
		if err == nil {
			verdict := gate.Validate(out)
			if verdict.Accepted {
				log.Info("agent run end",
					"agent", agent.Name(),
					"attempt", attempt,
					"elapsed_ms", time.Since(start).Milliseconds())
				return verdict.Value, nil
			}
			err = verdict.Err()
		}
		last = err
		log.Warn("agent attempt failed",
			"agent", agent.Name(),
			"gate", gate.Name(),
			"attempt", attempt,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		if ctx.Err() != nil {
			break
		}
	}
	var zero O
	return zero, fmt.Errorf("%s failed after regeneration: %w", agent.Name(), last)
}

// serialised wraps fn so concurrent branches report one at a time.
func serialised(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(Step, domain.StepStatus, string) {}
	}
	var mu sync.Mutex
	return func(step Step, status domain.StepStatus, label string) {
		mu.Lock()
		defer mu.Unlock()
		fn(step, status, label)
	}
}
