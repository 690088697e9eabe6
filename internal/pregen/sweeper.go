package pregen

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/offerforge/internal/domain"
)

// sweepBatch caps how many systems one tick reschedules.
const sweepBatch = 50

// Lister finds systems that have a chosen recommendation but no offer.
type Lister interface {
	ListSystemsAwaitingOffer(ctx context.Context, idleSince time.Time, limit int) ([]*domain.System, error)
}

// StartSweeper periodically reschedules systems whose offer never landed,
// for example because the process restarted mid-run. The loop runs in its own
// goroutine until ctx is cancelled; the returned channel closes when it has
// stopped. A zero interval disables it.
func StartSweeper(ctx context.Context, repo Lister, s *Scheduler, interval, minAge time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		slog.Info("pre-generation sweeper disabled")
		close(done)
		return done
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("pre-generation sweeper started", "interval", interval, "min_age", minAge)

		for {
			select {
			case <-ctx.Done():
				slog.Info("pre-generation sweeper shutting down", "reason", ctx.Err())
				return
			case <-ticker.C:
				n, err := Sweep(ctx, repo, s, minAge)
				if err != nil {
					slog.Error("pre-generation sweep failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("pre-generation sweep rescheduled systems", "count", n)
				}
			}
		}
	}()
	return done
}

// Sweep runs one pass and returns how many systems were handed to the scheduler.
func Sweep(ctx context.Context, repo Lister, s *Scheduler, minAge time.Duration) (int, error) {
	systems, err := repo.ListSystemsAwaitingOffer(ctx, time.Now().Add(-minAge), sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sys := range systems {
		if s.InFlight(sys.ID) {
			continue
		}
		s.Schedule(ctx, sys.ID, sys.UserID)
		n++
	}
	return n, nil
}
