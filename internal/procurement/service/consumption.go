package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// Lifecycle states guarded by the stock application ledger
const (
	applicationReserved = "reserved"
	applicationReleased = "released"
)

// ShortfallNotifier publishes shortfall warnings to the event bus
type ShortfallNotifier interface {
	NotifyShortfall(ctx context.Context, orderID *int64, shortfall Requirements)
}

// ConsumptionCalculator applies order-driven stock movements. Stock
// effects are applied exactly once per order lifecycle transition:
// creation reserves, modification applies the net delta, cancellation
// releases. Insufficient stock is a warning, never a hard failure.
type ConsumptionCalculator struct {
	db              *database.DB
	resolver        Resolver
	ledger          *StockLedger
	reservationRepo *repository.ReservationRepository
	applicationRepo *repository.StockApplicationRepository
	notifier        ShortfallNotifier
	logger          *logger.Logger
}

// NewConsumptionCalculator creates a new consumption calculator
func NewConsumptionCalculator(
	db *database.DB,
	resolver Resolver,
	ledger *StockLedger,
	reservationRepo *repository.ReservationRepository,
	applicationRepo *repository.StockApplicationRepository,
	notifier ShortfallNotifier,
	log *logger.Logger,
) *ConsumptionCalculator {
	return &ConsumptionCalculator{
		db:              db,
		resolver:        resolver,
		ledger:          ledger,
		reservationRepo: reservationRepo,
		applicationRepo: applicationRepo,
		notifier:        notifier,
		logger:          log.WithComponent("consumption"),
	}
}

// OnOrderCreated resolves the order's requirements and reserves them.
// Returns the availability check result; a shortfall does not block the
// reservation.
func (c *ConsumptionCalculator) OnOrderCreated(ctx context.Context, order *repository.Order) (*CheckResult, error) {
	reqs, err := c.resolver.Resolve(ctx, order.ProductID, order.Quantity)
	if err != nil {
		return nil, err
	}

	result, err := c.ledger.Check(ctx, reqs)
	if err != nil {
		return nil, err
	}

	err = c.db.TransactionWithRetry(ctx, txRetryAttempts, func(tx *sqlx.Tx) error {
		applied, err := c.applicationRepo.MarkAppliedTx(tx, order.ID, applicationReserved)
		if err != nil {
			return err
		}
		if !applied {
			c.logger.Info().Int64("order_id", order.ID).Msg("reservation already applied, skipping")
			return nil
		}

		if err := c.ledger.ReserveTx(tx, reqs); err != nil {
			return err
		}
		return c.reservationRepo.ReplaceForOrderTx(tx, order.ID, reqs)
	})
	if err != nil {
		return nil, err
	}

	if !result.OK {
		c.logger.Warn().
			Int64("order_id", order.ID).
			Int("shortfall_items", len(result.Shortfall)).
			Msg("order reserved with insufficient stock")
		c.notifier.NotifyShortfall(ctx, &order.ID, result.Shortfall)
	}

	return result, nil
}

// OnOrderUpdated applies the net delta between the order's previously
// applied requirements and its new ones. A quantity decrease never needs
// validation; only the positive deltas are checked. Re-running with the
// same inputs is a no-op because the previous requirements are read back
// from the reservation table. Concurrent updates of the same order
// serialize on the order's application-ledger lock, so each one reads
// the baseline the previous one committed.
func (c *ConsumptionCalculator) OnOrderUpdated(ctx context.Context, order *repository.Order) (*CheckResult, error) {
	newReqs, err := c.resolver.Resolve(ctx, order.ProductID, order.Quantity)
	if err != nil {
		return nil, err
	}

	var result *CheckResult
	err = c.db.TransactionWithRetry(ctx, txRetryAttempts, func(tx *sqlx.Tx) error {
		if err := c.applicationRepo.LockForOrderTx(tx, order.ID); err != nil {
			return err
		}

		oldReqs, err := c.reservationRepo.GetForOrderTx(tx, order.ID)
		if err != nil {
			return err
		}

		result, err = c.ledger.ApplyDeltaTx(tx, oldReqs, newReqs)
		if err != nil {
			return err
		}

		return c.reservationRepo.ReplaceForOrderTx(tx, order.ID, newReqs)
	})
	if err != nil {
		return nil, err
	}

	if !result.OK {
		c.logger.Warn().
			Int64("order_id", order.ID).
			Int("shortfall_items", len(result.Shortfall)).
			Msg("order adjusted with insufficient stock")
		c.notifier.NotifyShortfall(ctx, &order.ID, result.Shortfall)
	}

	return result, nil
}

// OnOrderCancelled releases the order's applied requirements in full.
// Takes the same per-order lock as OnOrderUpdated so a cancellation
// never races an in-flight adjustment's baseline read.
func (c *ConsumptionCalculator) OnOrderCancelled(ctx context.Context, orderID int64) error {
	return c.db.TransactionWithRetry(ctx, txRetryAttempts, func(tx *sqlx.Tx) error {
		if err := c.applicationRepo.LockForOrderTx(tx, orderID); err != nil {
			return err
		}

		applied, err := c.applicationRepo.MarkAppliedTx(tx, orderID, applicationReleased)
		if err != nil {
			return err
		}
		if !applied {
			c.logger.Info().Int64("order_id", orderID).Msg("release already applied, skipping")
			return nil
		}

		reqs, err := c.reservationRepo.GetForOrderTx(tx, orderID)
		if err != nil {
			return err
		}

		if err := c.ledger.ReleaseTx(tx, reqs); err != nil {
			return err
		}
		return c.reservationRepo.DeleteForOrderTx(tx, orderID)
	})
}
