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

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusInProcess = "in_process"
	OrderStatusReserved  = "reserved"
	OrderStatusCancelled = "cancelled"
)

// Order is the read-only view of an order needed by the automation core
type Order struct {
	ID         int64           `db:"id" json:"id"`
	CustomerID int64           `db:"customer_id" json:"customer_id"`
	ProductID  int64           `db:"product_id" json:"product_id"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	Status     string          `db:"status" json:"status"`
	Total      decimal.Decimal `db:"total" json:"total"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// OrderRepository reads order history
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Get returns an order by ID
func (r *OrderRepository) Get(ctx context.Context, id int64) (*Order, error) {
	var order Order
	query := `SELECT id, customer_id, product_id, quantity, status, total, created_at FROM orders WHERE id = $1`
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("order")
		}
		return nil, err
	}
	return &order, nil
}

// ListRecentOpen returns non-cancelled orders created since the given time
func (r *OrderRepository) ListRecentOpen(ctx context.Context, since time.Time) ([]Order, error) {
	var orders []Order
	query := `
		SELECT id, customer_id, product_id, quantity, status, total, created_at
		FROM orders
		WHERE created_at >= $1 AND status <> $2
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &orders, query, since, OrderStatusCancelled); err != nil {
		return nil, err
	}
	return orders, nil
}

// Reservation is the stock a single order currently holds, written when
// the consumption calculator applies an order's requirements. It is the
// "old requirements" side of net-delta adjustment.
type Reservation struct {
	OrderID     int64           `db:"order_id"`
	StockItemID int64           `db:"stock_item_id"`
	Quantity    decimal.Decimal `db:"quantity"`
}

// ReservationRepository tracks per-order applied requirements
type ReservationRepository struct {
	db *database.DB
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db *database.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// GetForOrderTx returns the order's currently applied requirements
func (r *ReservationRepository) GetForOrderTx(tx *sqlx.Tx, orderID int64) (map[int64]decimal.Decimal, error) {
	var rows []Reservation
	query := `SELECT order_id, stock_item_id, quantity FROM order_reservations WHERE order_id = $1 ORDER BY stock_item_id`
	if err := tx.Select(&rows, query, orderID); err != nil {
		return nil, err
	}

	reqs := make(map[int64]decimal.Decimal, len(rows))
	for _, row := range rows {
		reqs[row.StockItemID] = row.Quantity
	}
	return reqs, nil
}

// ReplaceForOrderTx overwrites the order's applied requirements
func (r *ReservationRepository) ReplaceForOrderTx(tx *sqlx.Tx, orderID int64, reqs map[int64]decimal.Decimal) error {
	if _, err := tx.Exec(`DELETE FROM order_reservations WHERE order_id = $1`, orderID); err != nil {
		return err
	}

	for _, itemID := range sortedItemIDs(reqs) {
		_, err := tx.Exec(
			`INSERT INTO order_reservations (order_id, stock_item_id, quantity) VALUES ($1, $2, $3)`,
			orderID, itemID, reqs[itemID],
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteForOrderTx removes the order's applied requirements
func (r *ReservationRepository) DeleteForOrderTx(tx *sqlx.Tx, orderID int64) error {
	_, err := tx.Exec(`DELETE FROM order_reservations WHERE order_id = $1`, orderID)
	return err
}

// StockApplicationRepository guards stock effects against double
// application: one row per (order, lifecycle state), inserted with the
// stock mutation in the same transaction.
type StockApplicationRepository struct {
	db *database.DB
}

// NewStockApplicationRepository creates a new stock application repository
func NewStockApplicationRepository(db *database.DB) *StockApplicationRepository {
	return &StockApplicationRepository{db: db}
}

// LockForOrderTx serializes stock mutations for one order by locking its
// application rows for the rest of the transaction. The reservation rows
// cannot carry this lock because ReplaceForOrderTx deletes and reinserts
// them.
func (r *StockApplicationRepository) LockForOrderTx(tx *sqlx.Tx, orderID int64) error {
	var states []string
	return tx.Select(&states, `SELECT state FROM stock_applications WHERE order_id = $1 ORDER BY state FOR UPDATE`, orderID)
}

// MarkAppliedTx records that stock effects for the given order and state
// were applied. Returns false when the pair was already recorded, in
// which case the caller must skip the mutation.
func (r *StockApplicationRepository) MarkAppliedTx(tx *sqlx.Tx, orderID int64, state string) (bool, error) {
	result, err := tx.Exec(`
		INSERT INTO stock_applications (order_id, state, applied_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (order_id, state) DO NOTHING
	`, orderID, state)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
