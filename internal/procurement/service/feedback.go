package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// WeightsNotifier publishes weight adjustment events
type WeightsNotifier interface {
	NotifyWeightsAdjusted(ctx context.Context, version int64, weights map[string]float64, adjustedBy string)
}

// FeedbackAdjuster mutates the shared scoring weights from operator
// feedback. Updates serialize through the weight row's lock so
// concurrent submissions cannot break the sum-to-1 invariant.
type FeedbackAdjuster struct {
	db          *database.DB
	weightsRepo *repository.WeightsRepository
	notifier    WeightsNotifier
	logger      *logger.Logger
}

// NewFeedbackAdjuster creates a new feedback adjuster
func NewFeedbackAdjuster(db *database.DB, weightsRepo *repository.WeightsRepository, notifier WeightsNotifier, log *logger.Logger) *FeedbackAdjuster {
	return &FeedbackAdjuster{
		db:          db,
		weightsRepo: weightsRepo,
		notifier:    notifier,
		logger:      log.WithComponent("feedback-adjuster"),
	}
}

// Apply adds each recognized criterion's delta to the current weight,
// clamps to [0,1] and renormalizes so the weights sum to 1 again.
// Unrecognized criteria in the signal are ignored. The feedback entry is
// logged in the same transaction as the weight update.
func (a *FeedbackAdjuster) Apply(ctx context.Context, entry *repository.FeedbackEntry, signal map[string]float64) (*repository.ScoringWeights, error) {
	var updated *repository.ScoringWeights

	err := a.db.TransactionWithRetry(ctx, txRetryAttempts, func(tx *sqlx.Tx) error {
		weights, err := a.weightsRepo.GetForUpdateTx(tx)
		if err != nil {
			return err
		}

		weights.SetFromMap(adjustWeights(weights.AsMap(), signal))
		if err := a.weightsRepo.SaveTx(tx, weights); err != nil {
			return err
		}

		if entry != nil {
			if err := a.weightsRepo.InsertFeedbackTx(tx, entry, signal); err != nil {
				return err
			}
		}

		updated = weights
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info().
		Int64("version", updated.Version).
		Msg("scoring weights adjusted")

	if a.notifier != nil {
		adjustedBy := ""
		if entry != nil {
			adjustedBy = entry.Decision
		}
		a.notifier.NotifyWeightsAdjusted(ctx, updated.Version, updated.AsMap(), adjustedBy)
	}

	return updated, nil
}

// adjustWeights applies the per-criterion deltas, clamps each weight to
// [0,1] and renormalizes the result to sum to 1
func adjustWeights(m, signal map[string]float64) map[string]float64 {
	for criterion := range m {
		if delta, ok := signal[criterion]; ok {
			m[criterion] = clamp01(m[criterion] + delta)
		}
	}

	var total float64
	for _, w := range m {
		total += w
	}
	if total <= 0 {
		// Every weight clamped to zero: recover to the factory
		// configuration instead of dividing by zero.
		m = repository.DefaultWeights().AsMap()
		total = 1
	}
	for criterion := range m {
		m[criterion] /= total
	}
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
