package service

import (
	"context"
	"time"

	"github.com/tucanprint/tucan-backend/internal/ranking/repository"
	"github.com/tucanprint/tucan-backend/pkg/errors"
)

// Standing is the explicit ranked/unranked variant for a customer, so
// callers branch on Ranked instead of probing for a missing cache row
type Standing struct {
	CustomerID int64      `json:"customer_id"`
	Ranked     bool       `json:"ranked"`
	Score      float64    `json:"score,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Standing returns the customer's current standing. A customer without a
// computed ranking is an explicit Unranked result, not an error.
func (e *Engine) Standing(ctx context.Context, customerID int64) (*Standing, error) {
	ranking, err := e.rankingRepo.GetScore(ctx, customerID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return &Standing{
				CustomerID: customerID,
				Ranked:     false,
				Reason:     "no ranking computed for this customer yet",
			}, nil
		}
		return nil, err
	}

	return &Standing{
		CustomerID: ranking.CustomerID,
		Ranked:     true,
		Score:      ranking.Score,
		UpdatedAt:  &ranking.UpdatedAt,
	}, nil
}

// History returns the customer's per-period score history
func (e *Engine) History(ctx context.Context, customerID int64, limit int) ([]repository.RankingHistory, error) {
	if limit <= 0 || limit > 100 {
		limit = 24
	}
	return e.rankingRepo.ListHistory(ctx, customerID, limit)
}

// ListScores returns every cached customer score, best first
func (e *Engine) ListScores(ctx context.Context) ([]repository.CustomerRanking, error) {
	return e.rankingRepo.ListScores(ctx)
}
