package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/offerforge/internal/agents"
	"github.com/ashureev/offerforge/internal/conversation"
	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/observability"
	"github.com/ashureev/offerforge/internal/pipeline"
	"github.com/ashureev/offerforge/internal/stream"
	"github.com/ashureev/offerforge/internal/transcript"
)

const defaultChunkWords = 4

// Repository is the slice of the store a turn reads and writes.
type Repository interface {
	conversation.Repository
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpsertProfile(ctx context.Context, profile *domain.Profile) error
	SetChosenRecommendation(ctx context.Context, systemID, userID string, rec *domain.ChosenRecommendation) (bool, error)
	SetAnswer(ctx context.Context, systemID, userID string, field domain.AnswerField, value string) error
	SaveOfferIfAbsent(ctx context.Context, systemID, userID string, offer *domain.AssembledOffer) (bool, error)
	UpdateOffer(ctx context.Context, systemID, userID string, offer *domain.AssembledOffer) error
	UpdateStatus(ctx context.Context, systemID, userID string, status domain.SystemStatus) error
}

// Generator runs the analysis and offer pipeline.
type Generator interface {
	Analyze(ctx context.Context, profile domain.Profile) ([]domain.Recommendation, error)
	Generate(ctx context.Context, in pipeline.Input, progress pipeline.ProgressFunc) (pipeline.Result, error)
}

// Scheduler starts background offer generation.
type Scheduler interface {
	Schedule(ctx context.Context, systemID, userID string)
	Await(ctx context.Context, systemID string) bool
}

// Config tunes the chat service.
type Config struct {
	DemoBaseURL string
	// ChunkWords is how many words go into one text delta.
	ChunkWords int
}

// Service runs conversation turns. At most one turn per system runs at a time.
type Service struct {
	repo        Repository
	conv        *conversation.Service
	gen         Generator
	pregen      Scheduler
	transcripts transcript.Logger
	cfg         Config

	turnLocks sync.Map // systemID -> *sync.Mutex
}

// NewService creates a chat service. pregen may be nil.
func NewService(repo Repository, gen Generator, pregen Scheduler, transcripts transcript.Logger, cfg Config) *Service {
	if cfg.ChunkWords <= 0 {
		cfg.ChunkWords = defaultChunkWords
	}
	if transcripts == nil {
		transcripts = transcript.Nop{}
	}
	return &Service{
		repo:        repo,
		conv:        conversation.NewService(repo),
		gen:         gen,
		pregen:      pregen,
		transcripts: transcripts,
		cfg:         cfg,
	}
}

// Turn is one user turn that has been admitted but not yet run.
type Turn struct {
	s       *Service
	req     ChatRequest
	sys     *domain.System
	profile *domain.Profile
	h       *conversation.History
	mark    int
	seq     *stream.Sequencer
	log     *slog.Logger
	unlock  func()
}

// turnLock returns the mutex that serialises writers of one system.
func (s *Service) turnLock(systemID string) *sync.Mutex {
	v, _ := s.turnLocks.LoadOrStore(systemID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Begin admits a turn: it takes the system's turn lock and loads its state.
// Errors are returned before anything is streamed.
func (s *Service) Begin(ctx context.Context, req ChatRequest) (*Turn, error) {
	if req.Response != nil && strings.TrimSpace(req.Message) != "" {
		return nil, ErrBothInputs
	}
	mu := s.turnLock(req.SystemID)
	if !mu.TryLock() {
		return nil, ErrBusy
	}

	sys, h, err := s.conv.Load(ctx, req.SystemID, req.UserID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	profile, err := s.repo.GetProfile(ctx, req.UserID)
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		profile = &domain.Profile{UserID: req.UserID}
	}

	return &Turn{
		s:       s,
		req:     req,
		sys:     sys,
		profile: profile,
		h:       h,
		mark:    h.Len(),
		log:     observability.LoggerFromContext(ctx).With("system_id", req.SystemID),
		unlock:  sync.OnceFunc(mu.Unlock),
	}, nil
}

// Release gives up an admitted turn without running it.
func (t *Turn) Release() { t.unlock() }

// Run streams the turn into sink and always ends it with exactly one done
// or error event. The returned error is for logging only.
func (t *Turn) Run(ctx context.Context, sink stream.Sink) error {
	defer t.unlock()
	t.seq = stream.NewSequencer(sink)
	start := time.Now()

	err := t.run(ctx)
	if recErr := t.s.conv.RecordTurn(ctx, t.req.SystemID, t.req.UserID, t.h, t.mark); recErr != nil {
		t.log.Warn("failed to record compact history", "error", recErr)
	}
	if err != nil {
		t.log.Warn("turn failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if failErr := t.seq.Fail(PublicMessage(err)); failErr != nil {
			t.log.Warn("failed to emit error event", "error", failErr)
		}
		return err
	}
	t.log.Info("turn finished", "status", t.sys.Status, "elapsed_ms", time.Since(start).Milliseconds())
	return t.seq.Emit(stream.Done{Status: t.sys.Status})
}

func (t *Turn) run(ctx context.Context) error {
	switch {
	case t.req.Response != nil:
		if err := t.answer(ctx, *t.req.Response); err != nil {
			return err
		}
	case strings.TrimSpace(t.req.Message) != "":
		text := strings.TrimSpace(t.req.Message)
		open, ok := t.h.OpenCard()
		if ok && (open.Type == domain.CardTextInput || open.Type == domain.CardLocation) {
			if err := t.answer(ctx, domain.CardResponse{CardID: open.ID, Text: text}); err != nil {
				return err
			}
			break
		}
		t.h.AppendUser(text)
		t.logTranscript("outbound", "chat_user_message", text)
		if ok {
			t.say("Please answer the question above so we can keep going.")
			return t.emitCard(ctx, *open)
		}
	}
	return t.advance(ctx)
}

// advance asks the next question or runs the next automatic stage.
func (t *Turn) advance(ctx context.Context) error {
	if open, ok := t.h.OpenCard(); ok {
		return t.emitCard(ctx, *open)
	}
	for {
		switch st := t.next(); st {
		case stepAnalysis:
			return t.analyse(ctx)
		case stepGenerate:
			ok, err := t.generate(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return t.ask(ctx, stepRetry)
			}
		case stepReview:
			t.say("Here's your draft. Change anything that doesn't sound like you.")
			return t.emitCard(ctx, reviewCard(t.sys.Offer))
		case stepFinal:
			return t.finish(ctx)
		case stepComplete:
			t.say("Your system is ready. You can reopen the demo from the card above.")
			return nil
		default:
			return t.ask(ctx, st)
		}
	}
}

func (t *Turn) next() step {
	p, sys := t.profile, t.sys
	answered := t.answeredSteps()
	switch {
	case p.TimeAvailability == "":
		return stepTime
	case p.RevenueGoal == "":
		return stepRevenue
	case len(p.Blockers) == 0:
		return stepBlockers
	case p.Context == "" && !answered[stepContext]:
		return stepContext
	case sys.DeliveryModel == "":
		return stepDelivery
	case sys.PricingDirection == "":
		return stepPricing
	case !sys.SkipGuarantee && !answered[stepGuarantee]:
		return stepGuarantee
	case sys.ChosenRecommendation == nil:
		return stepAnalysis
	case sys.LocationCity == "":
		return stepLocation
	case !sys.HasOffer():
		return stepGenerate
	case sys.Status == domain.StatusInProgress:
		return stepReview
	case sys.Status == domain.StatusOfferReady:
		return stepFinal
	default:
		return stepComplete
	}
}

func (t *Turn) answeredSteps() map[step]bool {
	out := make(map[step]bool)
	for _, m := range t.h.Messages() {
		if m.Kind == domain.KindCard && m.Card != nil && m.Completed {
			out[stepOf(m.Card.ID)] = true
		}
	}
	return out
}

func (t *Turn) ask(ctx context.Context, st step) error {
	intro, card := question(st)
	if card.ID == "" {
		return fmt.Errorf("no question for step %s", st)
	}
	t.say(intro)
	return t.emitCard(ctx, card)
}

func (t *Turn) analyse(ctx context.Context) error {
	if err := t.seq.Emit(stream.ToolStart{Tool: agents.NameAnalyst, Label: "Finding your best niches"}); err != nil {
		return err
	}
	tracker := trackerCard(stepAnalysis, "Analysing your profile", []domain.ProgressStep{
		{ID: string(stepAnalysis), Label: "Matching niches to your profile", Status: domain.StepPending},
	})
	if err := t.emitCard(ctx, tracker); err != nil {
		return err
	}
	t.progress(ctx, tracker.ID, string(stepAnalysis), domain.StepActive, "")

	recs, err := t.s.gen.Analyze(ctx, *t.profile)
	if err != nil {
		t.progress(ctx, tracker.ID, string(stepAnalysis), domain.StepDone, "Failed")
		return userErr("I couldn't analyse your profile just now. Please try again.", err)
	}
	t.progress(ctx, tracker.ID, string(stepAnalysis), domain.StepDone, "")
	t.say(fmt.Sprintf("I found %d niches that fit you.", len(recs)))
	return t.emitCard(ctx, nicheCard(recs))
}

var generationLabels = map[pipeline.Step]string{
	pipeline.StepPricing:   "Pricing",
	pipeline.StepGuarantee: "Guarantee",
	pipeline.StepNarrative: "Transformation story",
	pipeline.StepAssembly:  "Putting it together",
}

// generate produces the offer, reusing a pre-generated one when present.
// It reports false when the pipeline failed and the user should retry.
func (t *Turn) generate(ctx context.Context) (bool, error) {
	if err := t.seq.Emit(stream.ToolStart{Tool: "offer_pipeline", Label: "Building your offer"}); err != nil {
		return false, err
	}
	steps := make([]domain.ProgressStep, len(pipeline.Steps))
	for i, st := range pipeline.Steps {
		steps[i] = domain.ProgressStep{ID: string(st), Label: generationLabels[st], Status: domain.StepPending}
	}
	tracker := trackerCard(stepGenerate, "Building your offer", steps)
	if err := t.emitCard(ctx, tracker); err != nil {
		return false, err
	}

	if t.s.pregen != nil && t.s.pregen.Await(ctx, t.req.SystemID) {
		t.log.Debug("awaited in-flight pre-generation")
	}
	if err := t.reload(ctx); err != nil {
		return false, err
	}
	if t.sys.HasOffer() {
		for _, st := range pipeline.Steps {
			t.progress(ctx, tracker.ID, string(st), domain.StepDone, "")
		}
		t.log.Info("using pre-generated offer")
		t.say("Your offer is ready.")
		return true, nil
	}

	in := pipeline.Input{
		ChosenRecommendation: *t.sys.ChosenRecommendation,
		Profile:              *t.profile,
		Answers:              t.sys.Answers(),
	}
	res, err := t.s.gen.Generate(ctx, in, func(st pipeline.Step, status domain.StepStatus, label string) {
		t.progress(ctx, tracker.ID, string(st), status, label)
	})
	if err != nil {
		return false, userErr("Some of your answers are incomplete. Please start a new system.", err)
	}
	if !res.Succeeded() {
		missing := make([]string, len(res.Missing))
		for i, f := range res.Missing {
			missing[i] = generationLabels[pipeline.Step(f)]
		}
		t.say("Some parts of the offer didn't come together: " + strings.Join(missing, ", ") + ".")
		return false, nil
	}

	committed, err := t.s.repo.SaveOfferIfAbsent(ctx, t.req.SystemID, t.req.UserID, res.Result)
	if err != nil {
		return false, fmt.Errorf("save offer: %w", err)
	}
	if committed {
		t.sys.Offer = res.Result
	} else if err := t.reload(ctx); err != nil {
		return false, err
	}
	t.say("Your offer is ready.")
	return true, nil
}

func (t *Turn) finish(ctx context.Context) error {
	offer := *t.sys.Offer
	headline := "Your offer"
	if t.sys.ChosenRecommendation != nil {
		headline = "Your offer for " + t.sys.ChosenRecommendation.Niche
	}
	t.say("Here's the final version.")
	if err := t.emitCard(ctx, domain.Card{
		ID:           newCardID(stepFinal),
		Type:         domain.CardOfferSummary,
		OfferSummary: &domain.OfferSummary{Headline: headline, Offer: offer},
	}); err != nil {
		return err
	}
	if err := t.s.repo.UpdateStatus(ctx, t.req.SystemID, t.req.UserID, domain.StatusComplete); err != nil {
		return fmt.Errorf("complete system: %w", err)
	}
	t.sys.Status = domain.StatusComplete
	demo := strings.TrimRight(t.s.cfg.DemoBaseURL, "/") + "/" + t.req.SystemID
	return t.emitCard(ctx, domain.Card{
		ID:          newCardID(stepComplete),
		Type:        domain.CardSystemReady,
		SystemReady: &domain.SystemReady{DemoURL: demo, Offer: offer},
	})
}

func (t *Turn) emitCard(ctx context.Context, card domain.Card) error {
	if err := t.h.ApplyCard(card); err != nil && !errors.Is(err, conversation.ErrAlreadyAnswered) {
		return err
	}
	if err := t.seq.Emit(stream.CardEvent{Card: card}); err != nil {
		return err
	}
	t.save(ctx)
	return nil
}

// progress records and streams a step change. Regressions are dropped.
func (t *Turn) progress(ctx context.Context, cardID, stepID string, status domain.StepStatus, label string) {
	if err := t.h.ApplyProgress(cardID, stepID, status, label); err != nil {
		t.log.Debug("progress not applied", "card_id", cardID, "step_id", stepID, "error", err)
		return
	}
	if err := t.seq.Emit(stream.Progress{CardID: cardID, StepID: stepID, Status: status, Label: label}); err != nil {
		t.log.Debug("progress not emitted", "card_id", cardID, "step_id", stepID, "error", err)
	}
	t.save(ctx)
}

// say streams text in word chunks as one closed segment and records it, so
// every assistant message in the history matches one text-done on the wire.
func (t *Turn) say(text string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return
	}
	for i := 0; i < len(words); i += t.s.cfg.ChunkWords {
		end := min(i+t.s.cfg.ChunkWords, len(words))
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}
		if err := t.seq.Emit(stream.TextDelta{Delta: chunk}); err != nil {
			t.log.Debug("text delta not emitted", "error", err)
			return
		}
	}
	if err := t.seq.Emit(stream.TextDone{}); err != nil {
		t.log.Debug("text done not emitted", "error", err)
		return
	}
	spoken := strings.Join(words, " ")
	t.h.AppendAssistantText(spoken)
	t.logTranscript("inbound", "chat_assistant_message", spoken)
}

// save persists the display history; the last successful save is what a
// reload shows, so a failure here is logged and the turn continues.
func (t *Turn) save(ctx context.Context) {
	if err := t.s.conv.Save(ctx, t.req.SystemID, t.req.UserID, t.h); err != nil {
		t.log.Warn("failed to save display history", "error", err)
	}
}

func (t *Turn) reload(ctx context.Context) error {
	sys, err := t.s.repo.GetSystem(ctx, t.req.SystemID, t.req.UserID)
	if err != nil {
		return fmt.Errorf("reload system: %w", err)
	}
	t.sys = sys
	return nil
}

func (t *Turn) logTranscript(direction, eventType, content string) {
	t.s.transcripts.Log(transcript.Event{
		UserID:     t.req.UserID,
		SystemID:   t.req.SystemID,
		Channel:    "chat_http",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
	})
}

// compile-time check that the pipeline satisfies Generator.
var _ Generator = (*pipeline.Pipeline)(nil)

func boolAnswer(v bool) string { return strconv.FormatBool(v) }
