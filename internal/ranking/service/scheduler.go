package service

import (
	"context"
	"time"

	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// Scheduler periodically recomputes the customer ranking and then runs
// the offer rule engine on the fresh scores
type Scheduler struct {
	engine   *Engine
	offers   *OfferEngine
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
}

// NewScheduler creates a new ranking scheduler
func NewScheduler(engine *Engine, offers *OfferEngine, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		offers:   offers,
		interval: interval,
		logger:   log.WithComponent("ranking-scheduler"),
	}
}

// Start starts the scheduler in a background goroutine. The first run
// happens immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("ranking scheduler started")

		s.run(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("ranking scheduler stopped")
				return
			case <-ticker.C:
				s.run(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	if _, err := s.engine.Run(ctx, time.Now()); err != nil {
		s.logger.Error().Err(err).Msg("ranking run failed")
		return
	}
	if _, err := s.offers.Run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("offer rule run failed")
	}
}
