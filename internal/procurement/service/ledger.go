package service

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// Requirements maps stock item ID to a required quantity
type Requirements map[int64]decimal.Decimal

// CheckResult is the outcome of comparing requirements against on-hand
// stock. Shortfall holds the missing quantity per item.
type CheckResult struct {
	OK        bool         `json:"ok"`
	Shortfall Requirements `json:"shortfall,omitempty"`
}

const txRetryAttempts = 3

// StockLedger owns every mutation of stock item quantities. All writes
// run under per-item row locks acquired in ascending item ID order, and
// on-hand quantity clamps at zero instead of going negative: keeping the
// order pipeline moving outranks strict requirement satisfaction, and
// the gap is picked up by shortfall-triggered procurement.
type StockLedger struct {
	db        *database.DB
	stockRepo *repository.StockRepository
	logger    *logger.Logger
}

// NewStockLedger creates a new stock ledger
func NewStockLedger(db *database.DB, stockRepo *repository.StockRepository, log *logger.Logger) *StockLedger {
	return &StockLedger{
		db:        db,
		stockRepo: stockRepo,
		logger:    log.WithComponent("stock-ledger"),
	}
}

// Check compares requirements against current on-hand quantities.
// Items that do not exist count as zero stock.
func (l *StockLedger) Check(ctx context.Context, reqs Requirements) (*CheckResult, error) {
	result := &CheckResult{OK: true, Shortfall: Requirements{}}

	for _, itemID := range sortedIDs(reqs) {
		onHand, err := l.stockRepo.Quantity(ctx, itemID)
		if err != nil {
			return nil, err
		}

		if onHand.LessThan(reqs[itemID]) {
			result.OK = false
			result.Shortfall[itemID] = reqs[itemID].Sub(onHand)
		}
	}

	return result, nil
}

// Reserve decrements on-hand quantities for the given requirements
func (l *StockLedger) Reserve(ctx context.Context, reqs Requirements) error {
	return l.db.TransactionWithRetry(ctx, txRetryAttempts, func(tx *sqlx.Tx) error {
		return l.ReserveTx(tx, reqs)
	})
}

// ReserveTx decrements on-hand quantities inside an existing transaction
func (l *StockLedger) ReserveTx(tx *sqlx.Tx, reqs Requirements) error {
	for _, itemID := range sortedIDs(reqs) {
		if err := l.adjustTx(tx, itemID, reqs[itemID].Neg()); err != nil {
			return err
		}
	}
	return nil
}

// Release returns previously reserved quantities to stock
func (l *StockLedger) Release(ctx context.Context, reqs Requirements) error {
	return l.db.TransactionWithRetry(ctx, txRetryAttempts, func(tx *sqlx.Tx) error {
		return l.ReleaseTx(tx, reqs)
	})
}

// ReleaseTx returns quantities to stock inside an existing transaction
func (l *StockLedger) ReleaseTx(tx *sqlx.Tx, reqs Requirements) error {
	for _, itemID := range sortedIDs(reqs) {
		if err := l.adjustTx(tx, itemID, reqs[itemID]); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDelta moves stock from the old requirement state to the new one
// in a single atomic unit. Only the positive per-item deltas are
// validated; the returned shortfall is a warning, the delta is applied
// regardless.
func (l *StockLedger) ApplyDelta(ctx context.Context, oldReqs, newReqs Requirements) (*CheckResult, error) {
	var result *CheckResult
	err := l.db.TransactionWithRetry(ctx, txRetryAttempts, func(tx *sqlx.Tx) error {
		var txErr error
		result, txErr = l.ApplyDeltaTx(tx, oldReqs, newReqs)
		return txErr
	})
	return result, err
}

// ApplyDeltaTx applies the signed requirement delta inside an existing
// transaction
func (l *StockLedger) ApplyDeltaTx(tx *sqlx.Tx, oldReqs, newReqs Requirements) (*CheckResult, error) {
	deltas := requirementDelta(oldReqs, newReqs)
	result := &CheckResult{OK: true, Shortfall: Requirements{}}

	for _, itemID := range sortedIDs(deltas) {
		delta := deltas[itemID]

		onHand, err := l.stockRepo.QuantityForUpdateTx(tx, itemID)
		if err != nil {
			return nil, err
		}

		if delta.IsPositive() && onHand.LessThan(delta) {
			result.OK = false
			result.Shortfall[itemID] = delta.Sub(onHand)
		}

		// A positive delta is extra consumption, so it comes off stock
		if err := l.setClampedTx(tx, itemID, onHand.Sub(delta)); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// IncrementOnHandTx adds committed incoming stock inside an existing
// transaction
func (l *StockLedger) IncrementOnHandTx(tx *sqlx.Tx, itemID int64, qty decimal.Decimal) error {
	return l.adjustTx(tx, itemID, qty)
}

func (l *StockLedger) adjustTx(tx *sqlx.Tx, itemID int64, delta decimal.Decimal) error {
	onHand, err := l.stockRepo.QuantityForUpdateTx(tx, itemID)
	if err != nil {
		return err
	}
	return l.setClampedTx(tx, itemID, onHand.Add(delta))
}

func (l *StockLedger) setClampedTx(tx *sqlx.Tx, itemID int64, qty decimal.Decimal) error {
	if qty.IsNegative() {
		l.logger.Warn().
			Int64("stock_item_id", itemID).
			Str("requested", qty.String()).
			Msg("stock would go negative, clamping at zero")
		qty = decimal.Zero
	}
	return l.stockRepo.SetQuantityTx(tx, itemID, qty)
}

// requirementDelta computes new - old over the union of both key sets.
// Zero deltas are dropped.
func requirementDelta(oldReqs, newReqs Requirements) Requirements {
	deltas := Requirements{}
	for itemID, qty := range newReqs {
		deltas[itemID] = qty
	}
	for itemID, qty := range oldReqs {
		deltas[itemID] = deltas[itemID].Sub(qty)
	}
	for itemID, delta := range deltas {
		if delta.IsZero() {
			delete(deltas, itemID)
		}
	}
	return deltas
}

func sortedIDs(reqs Requirements) []int64 {
	ids := make([]int64, 0, len(reqs))
	for id := range reqs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
