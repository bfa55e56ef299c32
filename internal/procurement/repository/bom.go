package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/pkg/database"
)

// BomEntry links a product to a stock item with a per-unit quantity.
// Immutable reference data.
type BomEntry struct {
	ProductID   int64           `db:"product_id" json:"product_id"`
	StockItemID int64           `db:"stock_item_id" json:"stock_item_id"`
	QtyPerUnit  decimal.Decimal `db:"qty_per_unit" json:"qty_per_unit"`
}

// BomRepository reads bill-of-materials reference data
type BomRepository struct {
	db *database.DB
}

// NewBomRepository creates a new BOM repository
func NewBomRepository(db *database.DB) *BomRepository {
	return &BomRepository{db: db}
}

// ListByProduct returns all BOM entries for a product. A product with no
// entries returns an empty slice, not an error.
func (r *BomRepository) ListByProduct(ctx context.Context, productID int64) ([]BomEntry, error) {
	var entries []BomEntry
	query := `
		SELECT product_id, stock_item_id, qty_per_unit
		FROM bom_entries
		WHERE product_id = $1
		ORDER BY stock_item_id
	`
	if err := r.db.SelectContext(ctx, &entries, query, productID); err != nil {
		return nil, err
	}
	return entries, nil
}
