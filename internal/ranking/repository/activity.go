package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/pkg/database"
)

// CustomerActivity aggregates one customer's order history over the
// ranking window. CriticalValue is the value of orders whose product BOM
// contains an above-threshold-priced stock item; Margin is revenue minus
// BOM cost, floored at zero per order.
type CustomerActivity struct {
	CustomerID    int64           `db:"customer_id"`
	OrderCount    int64           `db:"order_count"`
	TotalValue    decimal.Decimal `db:"total_value"`
	CriticalValue decimal.Decimal `db:"critical_value"`
	Margin        decimal.Decimal `db:"margin"`
}

// ActivityRepository aggregates order history for the ranking engine
type ActivityRepository struct {
	db *database.DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *database.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Aggregate returns per-customer activity for orders created since the
// window start. Cancelled orders are excluded.
func (r *ActivityRepository) Aggregate(ctx context.Context, since time.Time, criticalThreshold decimal.Decimal) ([]CustomerActivity, error) {
	var rows []CustomerActivity
	query := `
		SELECT o.customer_id,
		       COUNT(*) AS order_count,
		       COALESCE(SUM(o.total), 0) AS total_value,
		       COALESCE(SUM(o.total) FILTER (WHERE EXISTS (
		           SELECT 1
		           FROM bom_entries be
		           JOIN stock_items si ON si.id = be.stock_item_id
		           WHERE be.product_id = o.product_id AND si.unit_cost >= $2
		       )), 0) AS critical_value,
		       COALESCE(SUM(GREATEST(0, o.total - o.quantity * COALESCE((
		           SELECT SUM(be.qty_per_unit * si.unit_cost)
		           FROM bom_entries be
		           JOIN stock_items si ON si.id = be.stock_item_id
		           WHERE be.product_id = o.product_id
		       ), 0))), 0) AS margin
		FROM orders o
		WHERE o.created_at >= $1 AND o.status <> 'cancelled'
		GROUP BY o.customer_id
		ORDER BY o.customer_id
	`
	if err := r.db.SelectContext(ctx, &rows, query, since, criticalThreshold); err != nil {
		return nil, err
	}
	return rows, nil
}
