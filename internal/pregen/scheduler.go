// Package pregen starts offer generation in the background as soon as a
// system has a chosen recommendation, so the offer is ready before the
// conversation reaches the step that needs it.
package pregen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/observability"
	"github.com/ashureev/offerforge/internal/pipeline"
	"github.com/ashureev/offerforge/internal/store"
)

// Outcome describes how one background run ended.
type Outcome string

const (
	OutcomeCommitted           Outcome = "committed"
	OutcomeSkippedExisting     Outcome = "skipped_existing"
	OutcomeSkippedInFlight     Outcome = "skipped_in_flight"
	OutcomeSkippedMissingInput Outcome = "skipped_missing_input"
	// OutcomeSuperseded means the run finished but another writer stored an
	// offer first; the conditional write was a no-op.
	OutcomeSuperseded Outcome = "superseded"
	OutcomeFailed     Outcome = "failed"
)

const defaultTimeout = 3 * time.Minute

// Repository is the slice of the store the scheduler reads and writes.
type Repository interface {
	GetSystem(ctx context.Context, systemID, userID string) (*domain.System, error)
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	SaveOfferIfAbsent(ctx context.Context, systemID, userID string, offer *domain.AssembledOffer) (bool, error)
}

// Generator runs the offer pipeline.
type Generator interface {
	Generate(ctx context.Context, in pipeline.Input, progress pipeline.ProgressFunc) (pipeline.Result, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout bounds each background run.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithOutcomeHook observes every finished or skipped run.
func WithOutcomeHook(fn func(systemID string, outcome Outcome)) Option {
	return func(s *Scheduler) { s.onOutcome = fn }
}

// Scheduler runs at most one background generation per system. A run only
// ever commits through a conditional write, so it cannot replace an offer
// that appeared while it was working.
type Scheduler struct {
	repo      Repository
	gen       Generator
	timeout   time.Duration
	onOutcome func(string, Outcome)

	inFlight sync.Map // systemID -> chan struct{} closed when the run ends

	// mu orders wg.Add in Schedule against wg.Wait in Shutdown.
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// New creates a scheduler.
func New(repo Repository, gen Generator, opts ...Option) *Scheduler {
	s := &Scheduler{repo: repo, gen: gen, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule starts a background run for the system and returns immediately.
// The run outlives ctx; only ctx's values (request id) are kept for logging.
func (s *Scheduler) Schedule(ctx context.Context, systemID, userID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	if _, loaded := s.inFlight.LoadOrStore(systemID, done); loaded {
		s.mu.Unlock()
		s.report(ctx, systemID, OutcomeSkippedInFlight, nil)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.inFlight.Delete(systemID)
			close(done)
		}()

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		outcome, err := s.run(runCtx, systemID, userID)
		s.report(runCtx, systemID, outcome, err)
	}()
}

// Await blocks until the in-flight run for systemID, if any, has ended or
// ctx is done. It reports whether a run was awaited to completion.
func (s *Scheduler) Await(ctx context.Context, systemID string) bool {
	v, ok := s.inFlight.Load(systemID)
	if !ok {
		return false
	}
	select {
	case <-v.(chan struct{}):
		return true
	case <-ctx.Done():
		return false
	}
}

// InFlight reports whether a run for systemID is currently executing.
func (s *Scheduler) InFlight(systemID string) bool {
	_, ok := s.inFlight.Load(systemID)
	return ok
}

// Shutdown stops accepting work and waits for running generations or ctx.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, systemID, userID string) (Outcome, error) {
	system, err := s.repo.GetSystem(ctx, systemID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return OutcomeSkippedMissingInput, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}
	if system.HasOffer() {
		return OutcomeSkippedExisting, nil
	}
	if system.ChosenRecommendation == nil {
		return OutcomeSkippedMissingInput, nil
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return OutcomeFailed, err
	}
	if !profile.IsComplete() {
		return OutcomeSkippedMissingInput, nil
	}

	res, err := s.gen.Generate(ctx, pipeline.Input{
		ChosenRecommendation: *system.ChosenRecommendation,
		Profile:              *profile,
		Answers:              system.Answers(),
	}, nil)
	if err != nil {
		if pipeline.IsInvalidInput(err) {
			return OutcomeSkippedMissingInput, err
		}
		return OutcomeFailed, err
	}
	if !res.Succeeded() {
		return OutcomeFailed, errors.New(res.Reason)
	}

	committed, err := s.repo.SaveOfferIfAbsent(ctx, systemID, userID, res.Result)
	if err != nil {
		return OutcomeFailed, err
	}
	if !committed {
		return OutcomeSuperseded, nil
	}
	return OutcomeCommitted, nil
}

// report logs the outcome. Failures are swallowed here: the live
// conversation can always generate on demand.
func (s *Scheduler) report(ctx context.Context, systemID string, outcome Outcome, err error) {
	log := observability.LoggerFromContext(ctx).With("system_id", systemID, "outcome", outcome)
	switch outcome {
	case OutcomeCommitted:
		log.Info("pre-generation committed offer")
	case OutcomeFailed:
		log.Warn("pre-generation failed", "error", err)
	case OutcomeSkippedExisting, OutcomeSkippedInFlight, OutcomeSkippedMissingInput, OutcomeSuperseded:
		attrs := []any{}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		log.Log(ctx, slog.LevelInfo, "pre-generation skipped", attrs...)
	}
	if s.onOutcome != nil {
		s.onOutcome(systemID, outcome)
	}
}
