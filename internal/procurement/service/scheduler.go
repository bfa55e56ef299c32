package service

import (
	"context"
	"time"

	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// Scheduler runs the procurement orchestrator periodically
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       *logger.Logger
	cancel       context.CancelFunc
}

// NewScheduler creates a new procurement scheduler
func NewScheduler(orchestrator *Orchestrator, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       log.WithComponent("procurement-scheduler"),
	}
}

// Start starts the scheduler in a background goroutine. The first run
// happens immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("procurement scheduler started")

		s.run(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("procurement scheduler stopped")
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
	if _, err := s.orchestrator.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("procurement run failed")
	}
}
