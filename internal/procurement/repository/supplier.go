package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/errors"
)

// Supplier is the reference data the scorer and orchestrator need
type Supplier struct {
	ID              int64   `db:"id" json:"id"`
	Name            string  `db:"name" json:"name"`
	IsActive        bool    `db:"is_active" json:"is_active"`
	StockInquiryURL *string `db:"stock_inquiry_url" json:"stock_inquiry_url,omitempty"`
}

// SupplierStats aggregates a supplier's purchase-order history for
// scoring. AvgPrice is null when the supplier has no priced orders;
// LastInquiryAvailable is null when no inquiry was ever answered.
type SupplierStats struct {
	SupplierID           int64            `db:"supplier_id"`
	TotalOrders          int64            `db:"total_orders"`
	ConfirmedOrders      int64            `db:"confirmed_orders"`
	IncidentOrders       int64            `db:"incident_orders"`
	AvgPrice             *decimal.Decimal `db:"avg_price"`
	LastInquiryAvailable *bool            `db:"last_inquiry_available"`
}

// SupplierScore is the materialized score cache, one row per supplier
type SupplierScore struct {
	SupplierID int64     `db:"supplier_id" json:"supplier_id"`
	Score      float64   `db:"score" json:"score"`
	ComputedAt time.Time `db:"computed_at" json:"computed_at"`
}

// SupplierRepository handles supplier reference data and the score cache
type SupplierRepository struct {
	db *database.DB
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *database.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

// Get returns a supplier by ID
func (r *SupplierRepository) Get(ctx context.Context, id int64) (*Supplier, error) {
	var supplier Supplier
	query := `SELECT id, name, is_active, stock_inquiry_url FROM suppliers WHERE id = $1`
	if err := r.db.GetContext(ctx, &supplier, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("supplier")
		}
		return nil, err
	}
	return &supplier, nil
}

// ListActive returns all active suppliers ordered by ID
func (r *SupplierRepository) ListActive(ctx context.Context) ([]Supplier, error) {
	var suppliers []Supplier
	query := `SELECT id, name, is_active, stock_inquiry_url FROM suppliers WHERE is_active = TRUE ORDER BY id`
	if err := r.db.SelectContext(ctx, &suppliers, query); err != nil {
		return nil, err
	}
	return suppliers, nil
}

// ListStats aggregates purchase-order history for all active suppliers,
// scoped to one stock item where the signal is item-specific: the price
// average and the latest answered inquiry only count the given item, so
// an "unavailable" answer for one item never depresses a supplier for
// another. Confirmed and incident counts are supplier-wide delivery
// outcomes.
func (r *SupplierRepository) ListStats(ctx context.Context, stockItemID int64) ([]SupplierStats, error) {
	var stats []SupplierStats
	query := `
		SELECT s.id AS supplier_id,
		       COUNT(po.id) AS total_orders,
		       COUNT(po.id) FILTER (WHERE po.confirmed) AS confirmed_orders,
		       COUNT(po.id) FILTER (WHERE po.incident) AS incident_orders,
		       AVG(po.unit_price) FILTER (WHERE po.stock_item_id = $1) AS avg_price,
		       (
		           SELECT i.status = 'available'
		           FROM supplier_stock_inquiries i
		           WHERE i.supplier_id = s.id
		             AND i.stock_item_id = $1
		             AND i.status NOT IN ('pending', 'error')
		           ORDER BY i.created_at DESC
		           LIMIT 1
		       ) AS last_inquiry_available
		FROM suppliers s
		LEFT JOIN purchase_orders po ON po.supplier_id = s.id
		WHERE s.is_active = TRUE
		GROUP BY s.id
		ORDER BY s.id
	`
	if err := r.db.SelectContext(ctx, &stats, query, stockItemID); err != nil {
		return nil, err
	}
	return stats, nil
}

// SaveScore upserts a supplier's cached score
func (r *SupplierRepository) SaveScore(ctx context.Context, supplierID int64, score float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO supplier_scores (supplier_id, score, computed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (supplier_id) DO UPDATE SET score = EXCLUDED.score, computed_at = NOW()
	`, supplierID, score)
	return err
}

// GetScore returns a supplier's cached score
func (r *SupplierRepository) GetScore(ctx context.Context, supplierID int64) (*SupplierScore, error) {
	var score SupplierScore
	query := `SELECT supplier_id, score, computed_at FROM supplier_scores WHERE supplier_id = $1`
	if err := r.db.GetContext(ctx, &score, query, supplierID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("supplier score")
		}
		return nil, err
	}
	return &score, nil
}
