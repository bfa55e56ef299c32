package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/errors"
)

// StockItem is a raw material tracked by on-hand quantity. The quantity
// column is only ever written through the stock ledger.
type StockItem struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
	UnitCost  decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// StockRepository handles stock item persistence
type StockRepository struct {
	db *database.DB
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *database.DB) *StockRepository {
	return &StockRepository{db: db}
}

// Get returns a stock item by ID
func (r *StockRepository) Get(ctx context.Context, id int64) (*StockItem, error) {
	var item StockItem
	query := `SELECT id, name, quantity, unit_cost, is_active, created_at, updated_at FROM stock_items WHERE id = $1`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("stock item")
		}
		return nil, err
	}
	return &item, nil
}

// ListActiveAtOrBelow returns active items whose on-hand quantity is at
// or below the given threshold
func (r *StockRepository) ListActiveAtOrBelow(ctx context.Context, threshold decimal.Decimal) ([]StockItem, error) {
	var items []StockItem
	query := `
		SELECT id, name, quantity, unit_cost, is_active, created_at, updated_at
		FROM stock_items
		WHERE is_active = TRUE AND quantity <= $1
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &items, query, threshold); err != nil {
		return nil, err
	}
	return items, nil
}

// Quantity returns an item's current on-hand quantity without locking.
// Items that do not exist are treated as zero stock.
func (r *StockRepository) Quantity(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.db.GetContext(ctx, &qty, `SELECT quantity FROM stock_items WHERE id = $1`, itemID)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

// QuantityForUpdateTx reads an item's on-hand quantity under a row lock.
// Items that do not exist are treated as zero stock.
func (r *StockRepository) QuantityForUpdateTx(tx *sqlx.Tx, itemID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := tx.Get(&qty, `SELECT quantity FROM stock_items WHERE id = $1 FOR UPDATE`, itemID)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

// SetQuantityTx writes an item's on-hand quantity. Callers must hold the
// row lock via QuantityForUpdateTx in the same transaction.
func (r *StockRepository) SetQuantityTx(tx *sqlx.Tx, itemID int64, qty decimal.Decimal) error {
	_, err := tx.Exec(`UPDATE stock_items SET quantity = $2, updated_at = NOW() WHERE id = $1`, itemID, qty)
	return err
}
