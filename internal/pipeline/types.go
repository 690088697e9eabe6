package pipeline

import (
	"errors"

	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/validation"
)

// ErrInvalidInput is matched by input validation failures; no agent runs.
var ErrInvalidInput = validation.ErrInvalid

// Status is the outcome of one generation run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Facet names one fan-out branch.
type Facet string

const (
	FacetPricing   Facet = "pricing"
	FacetGuarantee Facet = "guarantee"
	FacetNarrative Facet = "narrative"
)

// Step is a progress step reported while generating. The three facets plus
// the assembly join.
type Step string

const (
	StepPricing   Step = Step(FacetPricing)
	StepGuarantee Step = Step(FacetGuarantee)
	StepNarrative Step = Step(FacetNarrative)
	StepAssembly  Step = "assembly"
)

// Steps lists progress steps in display order.
var Steps = []Step{StepPricing, StepGuarantee, StepNarrative, StepAssembly}

// ProgressFunc observes step transitions. Calls are serialised by the pipeline.
type ProgressFunc func(step Step, status domain.StepStatus, label string)

// Input is the pipeline invocation payload.
type Input struct {
	ChosenRecommendation domain.ChosenRecommendation `json:"chosenRecommendation"`
	Profile              domain.Profile              `json:"profile"`
	Answers              domain.Answers              `json:"answers"`
}

// Validate rejects malformed input before any agent call.
func (in *Input) Validate() error {
	var c validation.Collector
	validation.Recommendation(&c, &in.ChosenRecommendation)
	validation.Profile(&c, &in.Profile)
	validation.Answers(&c, in.Answers, false)
	return c.Err()
}

// PartialOffer carries the facets that did succeed in a failed run. A nil
// field means the facet is missing; it is never replaced with a zero value.
type PartialOffer struct {
	Segment            *string               `json:"segment,omitempty"`
	TransformationFrom *string               `json:"transformation_from,omitempty"`
	TransformationTo   *string               `json:"transformation_to,omitempty"`
	SystemDescription  *string               `json:"system_description,omitempty"`
	PricingSetup       *float64              `json:"pricing_setup,omitempty"`
	PricingMonthly     *float64              `json:"pricing_monthly,omitempty"`
	Guarantee          *string               `json:"guarantee,omitempty"`
	GuaranteeSkipped   bool                  `json:"guarantee_skipped,omitempty"`
	DeliveryModel      *domain.DeliveryModel `json:"delivery_model,omitempty"`
}

// FacetFailure reports why one branch failed.
type FacetFailure struct {
	Facet  Facet  `json:"facet"`
	Reason string `json:"reason"`
}

// Result is the pipeline's contract with its callers.
type Result struct {
	Status   Status                 `json:"status"`
	Result   *domain.AssembledOffer `json:"result,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	Partial  *PartialOffer          `json:"partial,omitempty"`
	Missing  []Facet                `json:"missing,omitempty"`
	Failures []FacetFailure         `json:"failures,omitempty"`
}

// Succeeded reports whether the run produced an offer.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess && r.Result != nil
}

// IsInvalidInput reports whether err came from input validation.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func ptr[T any](v T) *T { return &v }
