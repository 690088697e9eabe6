package domain

import (
	"errors"
	"fmt"
)

// CardType names one variant of the card union.
type CardType string

const (
	CardOptionSelector  CardType = "option-selector"
	CardTextInput       CardType = "text-input"
	CardLocation        CardType = "location"
	CardProgressTracker CardType = "progress-tracker"
	CardScoreCards      CardType = "score-cards"
	CardEditableContent CardType = "editable-content"
	CardOfferSummary    CardType = "offer-summary"
	CardSystemReady     CardType = "system-ready"
)

// ErrInvalidCard is returned when a card's payload does not match its type.
var ErrInvalidCard = errors.New("invalid card")

// StepStatus is the state of one progress-tracker step.
// Steps only ever move forward: pending, active, done.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepActive  StepStatus = "active"
	StepDone    StepStatus = "done"
)

func (s StepStatus) rank() int {
	switch s {
	case StepPending:
		return 0
	case StepActive:
		return 1
	case StepDone:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s StepStatus) Valid() bool {
	return s.rank() >= 0
}

// CanAdvanceTo reports whether moving from s to next is non-decreasing.
func (s StepStatus) CanAdvanceTo(next StepStatus) bool {
	return next.Valid() && next.rank() >= s.rank()
}

// AnswerState is the micro-state of a card that expects user input.
type AnswerState string

const (
	Unanswered AnswerState = "unanswered"
	Answered   AnswerState = "answered"
)

// CanTransitionTo reports whether the answer state may move to next.
func (a AnswerState) CanTransitionTo(next AnswerState) bool {
	return a == Unanswered && next == Answered
}

// Option is one choice on an option-selector card.
type Option struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// OptionSelector asks the user to pick one or more options.
type OptionSelector struct {
	Prompt    string   `json:"prompt"`
	Options   []Option `json:"options"`
	Multi     bool     `json:"multi,omitempty"`
	MaxSelect int      `json:"max_select,omitempty"`
}

// Label returns the label of the option with the given value.
func (o *OptionSelector) Label(value string) (string, bool) {
	for _, opt := range o.Options {
		if opt.Value == value {
			return opt.Label, true
		}
	}
	return "", false
}

// TextInput asks for free text.
type TextInput struct {
	Prompt      string `json:"prompt"`
	Placeholder string `json:"placeholder,omitempty"`
	Multiline   bool   `json:"multiline,omitempty"`
	MaxLength   int    `json:"max_length,omitempty"`
}

// LocationInput asks for the city the user operates in.
type LocationInput struct {
	Prompt      string `json:"prompt"`
	Placeholder string `json:"placeholder,omitempty"`
}

// ProgressStep is one row of a progress tracker.
type ProgressStep struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

// ProgressTracker shows an ordered list of steps.
type ProgressTracker struct {
	Title string         `json:"title"`
	Steps []ProgressStep `json:"steps"`
}

// Step returns a pointer to the step with the given id.
func (p *ProgressTracker) Step(id string) *ProgressStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Done reports whether every step has finished.
func (p *ProgressTracker) Done() bool {
	for _, s := range p.Steps {
		if s.Status != StepDone {
			return false
		}
	}
	return len(p.Steps) > 0
}

// ScoreCards presents ranked niche recommendations.
type ScoreCards struct {
	Prompt          string           `json:"prompt"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Find returns the recommendation with the given id.
func (s *ScoreCards) Find(id string) (Recommendation, bool) {
	for _, r := range s.Recommendations {
		if r.ID == id {
			return r, true
		}
	}
	return Recommendation{}, false
}

// FieldKind is the editor used for an editable field.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldTextarea FieldKind = "textarea"
	FieldCurrency FieldKind = "currency"
)

// EditableField is one named value the user may change.
type EditableField struct {
	Name  string    `json:"name"`
	Label string    `json:"label"`
	Kind  FieldKind `json:"kind"`
	Value string    `json:"value"`
}

// EditableContent lets the user review and edit generated content.
type EditableContent struct {
	Title  string          `json:"title"`
	Fields []EditableField `json:"fields"`
}

// OfferSummary displays the assembled offer.
type OfferSummary struct {
	Headline string         `json:"headline"`
	Offer    AssembledOffer `json:"offer"`
}

// SystemReady is the final card of the conversation.
type SystemReady struct {
	DemoURL string         `json:"demo_url"`
	Offer   AssembledOffer `json:"offer"`
}

// Card is a structured UI directive embedded in the conversation.
// Exactly one payload field is set and it must match Type.
type Card struct {
	ID   string   `json:"id"`
	Type CardType `json:"type"`

	OptionSelector  *OptionSelector  `json:"option_selector,omitempty"`
	TextInput       *TextInput       `json:"text_input,omitempty"`
	Location        *LocationInput   `json:"location,omitempty"`
	ProgressTracker *ProgressTracker `json:"progress_tracker,omitempty"`
	ScoreCards      *ScoreCards      `json:"score_cards,omitempty"`
	EditableContent *EditableContent `json:"editable_content,omitempty"`
	OfferSummary    *OfferSummary    `json:"offer_summary,omitempty"`
	SystemReady     *SystemReady     `json:"system_ready,omitempty"`
}

func (c *Card) payloads() map[CardType]bool {
	return map[CardType]bool{
		CardOptionSelector:  c.OptionSelector != nil,
		CardTextInput:       c.TextInput != nil,
		CardLocation:        c.Location != nil,
		CardProgressTracker: c.ProgressTracker != nil,
		CardScoreCards:      c.ScoreCards != nil,
		CardEditableContent: c.EditableContent != nil,
		CardOfferSummary:    c.OfferSummary != nil,
		CardSystemReady:     c.SystemReady != nil,
	}
}

// Validate checks that the card has an id and exactly the payload its type names.
func (c *Card) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidCard)
	}
	set := c.payloads()
	if _, known := set[c.Type]; !known {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCard, c.Type)
	}
	for typ, present := range set {
		if typ == c.Type && !present {
			return fmt.Errorf("%w: %s card without payload", ErrInvalidCard, c.Type)
		}
		if typ != c.Type && present {
			return fmt.Errorf("%w: %s card carries %s payload", ErrInvalidCard, c.Type, typ)
		}
	}
	if c.ProgressTracker != nil {
		for _, s := range c.ProgressTracker.Steps {
			if s.ID == "" || !s.Status.Valid() {
				return fmt.Errorf("%w: bad progress step %q", ErrInvalidCard, s.ID)
			}
		}
	}
	return nil
}

// AcceptsInput reports whether the card waits for a user response.
func (c *Card) AcceptsInput() bool {
	switch c.Type {
	case CardOptionSelector, CardTextInput, CardLocation, CardScoreCards, CardEditableContent:
		return true
	case CardProgressTracker, CardOfferSummary, CardSystemReady:
		return false
	default:
		return false
	}
}

// CardResponse is what the user submitted for an input card.
type CardResponse struct {
	CardID string            `json:"card_id"`
	Values []string          `json:"values,omitempty"`
	Text   string            `json:"text,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}
