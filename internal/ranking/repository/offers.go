package repository

import (
	"context"
	"time"

	"github.com/tucanprint/tucan-backend/pkg/database"
)

// Offer lifecycle states. Transitions past "pending" belong to the
// operator/customer flow; "applied" is set by the order subsystem when a
// discount is consumed.
const (
	OfferStatePending  = "pending"
	OfferStateSent     = "sent"
	OfferStateAccepted = "accepted"
	OfferStateRejected = "rejected"
	OfferStateApplied  = "applied"
)

// Offer kinds
const (
	OfferKindDiscount      = "discount"
	OfferKindLoyalty       = "loyalty"
	OfferKindStockPriority = "stock_priority"
	OfferKindPromotion     = "promotion"
)

// OfferProposal is a customer benefit generated by the rule engine
type OfferProposal struct {
	ID            int64     `db:"id" json:"id"`
	CustomerID    int64     `db:"customer_id" json:"customer_id"`
	Title         string    `db:"title" json:"title"`
	Kind          string    `db:"kind" json:"kind"`
	State         string    `db:"state" json:"state"`
	RuleName      string    `db:"rule_name" json:"rule_name"`
	ScoreSnapshot float64   `db:"score_snapshot" json:"score_snapshot"`
	Params        string    `db:"params" json:"params"`
	Period        string    `db:"period" json:"period"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// OfferRepository handles offer proposal persistence
type OfferRepository struct {
	db *database.DB
}

// NewOfferRepository creates a new offer repository
func NewOfferRepository(db *database.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// GetOrCreate inserts the offer unless one with the same customer and
// title already exists. Returns true when a new row was created, so
// rerunning the rule engine with unchanged inputs never duplicates.
func (r *OfferRepository) GetOrCreate(ctx context.Context, offer *OfferProposal) (bool, error) {
	offer.State = OfferStatePending

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO offer_proposals (customer_id, title, kind, state, rule_name, score_snapshot, params, period, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (customer_id, title) DO NOTHING
	`, offer.CustomerID, offer.Title, offer.Kind, offer.State, offer.RuleName, offer.ScoreSnapshot, offer.Params, offer.Period)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	err = r.db.GetContext(ctx, &offer.ID,
		`SELECT id FROM offer_proposals WHERE customer_id = $1 AND title = $2`,
		offer.CustomerID, offer.Title)
	return true, err
}

// List returns offers, newest first, optionally filtered by state
func (r *OfferRepository) List(ctx context.Context, state string, limit int) ([]OfferProposal, error) {
	var offers []OfferProposal
	const columns = `id, customer_id, title, kind, state, rule_name, score_snapshot, params, period, created_at`

	if state != "" {
		query := `SELECT ` + columns + ` FROM offer_proposals WHERE state = $1 ORDER BY created_at DESC LIMIT $2`
		if err := r.db.SelectContext(ctx, &offers, query, state, limit); err != nil {
			return nil, err
		}
		return offers, nil
	}

	query := `SELECT ` + columns + ` FROM offer_proposals ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &offers, query, limit); err != nil {
		return nil, err
	}
	return offers, nil
}
