package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/errors"
)

// CustomerRanking is the materialized current score, one row per customer
type CustomerRanking struct {
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	Score      float64   `db:"score" json:"score"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// RankingHistory is one customer's score for one period, with the signed
// variation against the chronologically preceding period and the raw
// normalized metric components
type RankingHistory struct {
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	Period     string    `db:"period" json:"period"`
	Score      float64   `db:"score" json:"score"`
	Variacion  float64   `db:"variacion" json:"variacion"`
	Metrics    string    `db:"metrics" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MetricsMap decodes the stored normalized metric components
func (h *RankingHistory) MetricsMap() map[string]float64 {
	m := map[string]float64{}
	json.Unmarshal([]byte(h.Metrics), &m)
	return m
}

// RankingRepository handles the ranking cache and per-period history
type RankingRepository struct {
	db *database.DB
}

// NewRankingRepository creates a new ranking repository
func NewRankingRepository(db *database.DB) *RankingRepository {
	return &RankingRepository{db: db}
}

// SaveScore upserts a customer's current score
func (r *RankingRepository) SaveScore(ctx context.Context, customerID int64, score float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customer_rankings (customer_id, score, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (customer_id) DO UPDATE SET score = EXCLUDED.score, updated_at = NOW()
	`, customerID, score)
	return err
}

// GetScore returns a customer's current cached score
func (r *RankingRepository) GetScore(ctx context.Context, customerID int64) (*CustomerRanking, error) {
	var ranking CustomerRanking
	query := `SELECT customer_id, score, updated_at FROM customer_rankings WHERE customer_id = $1`
	if err := r.db.GetContext(ctx, &ranking, query, customerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("customer ranking")
		}
		return nil, err
	}
	return &ranking, nil
}

// ListScores returns all cached scores, best first
func (r *RankingRepository) ListScores(ctx context.Context) ([]CustomerRanking, error) {
	var rankings []CustomerRanking
	query := `SELECT customer_id, score, updated_at FROM customer_rankings ORDER BY score DESC, customer_id`
	if err := r.db.SelectContext(ctx, &rankings, query); err != nil {
		return nil, err
	}
	return rankings, nil
}

// UpsertHistory writes a customer's history row for one period. Rerunning
// the engine within the same period overwrites the row, never duplicates.
func (r *RankingRepository) UpsertHistory(ctx context.Context, h *RankingHistory) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customer_ranking_history (customer_id, period, score, variacion, metrics, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (customer_id, period) DO UPDATE SET
			score = EXCLUDED.score,
			variacion = EXCLUDED.variacion,
			metrics = EXCLUDED.metrics
	`, h.CustomerID, h.Period, h.Score, h.Variacion, h.Metrics)
	return err
}

// PreviousPeriod returns the customer's most recent history row strictly
// before the given period, or nil when none exists. Period strings order
// chronologically within one periodicity.
func (r *RankingRepository) PreviousPeriod(ctx context.Context, customerID int64, period string) (*RankingHistory, error) {
	var h RankingHistory
	query := `
		SELECT customer_id, period, score, variacion, metrics, created_at
		FROM customer_ranking_history
		WHERE customer_id = $1 AND period < $2
		ORDER BY period DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &h, query, customerID, period)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHistory returns a customer's history, newest period first
func (r *RankingRepository) ListHistory(ctx context.Context, customerID int64, limit int) ([]RankingHistory, error) {
	var history []RankingHistory
	query := `
		SELECT customer_id, period, score, variacion, metrics, created_at
		FROM customer_ranking_history
		WHERE customer_id = $1
		ORDER BY period DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &history, query, customerID, limit); err != nil {
		return nil, err
	}
	return history, nil
}
