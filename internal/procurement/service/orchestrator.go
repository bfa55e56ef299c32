package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/internal/params"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// recentOrderWindow bounds the order scan of the shortfall detection
const recentOrderWindow = 7 * 24 * time.Hour

// Params is the configuration surface the orchestrator reads
type Params interface {
	GetInt(ctx context.Context, name string, def int) int
	GetBool(ctx context.Context, name string, def bool) bool
	GetFloat(ctx context.Context, name string, def float64) float64
}

// ProposalNotifier publishes procurement decision events
type ProposalNotifier interface {
	NotifyProposalAccepted(ctx context.Context, proposal *repository.ProcurementProposal)
	NotifyProposalRejected(ctx context.Context, proposal *repository.ProcurementProposal)
}

// RunSummary reports what one orchestrator run did
type RunSummary struct {
	Candidates       int `json:"candidates"`
	ProposalsCreated int `json:"proposals_created"`
	AutoAccepted     int `json:"auto_accepted"`
	Failures         int `json:"failures"`
}

type candidate struct {
	stockItemID int64
	requiredQty decimal.Decimal
	trigger     string
	orderID     *int64
}

// Orchestrator detects stock shortfalls, recommends a supplier, creates
// a draft purchase order plus stock inquiry, and optionally auto-accepts
// the proposal. One failed candidate never aborts the run.
type Orchestrator struct {
	db           *database.DB
	resolver     Resolver
	ledger       *StockLedger
	recommender  Recommender
	inquirer     StockInquirer
	orderRepo    *repository.OrderRepository
	stockRepo    *repository.StockRepository
	supplierRepo *repository.SupplierRepository
	proposalRepo *repository.ProposalRepository
	params       Params
	notifier     ProposalNotifier
	logger       *logger.Logger
}

// NewOrchestrator creates a new procurement orchestrator
func NewOrchestrator(
	db *database.DB,
	resolver Resolver,
	ledger *StockLedger,
	recommender Recommender,
	inquirer StockInquirer,
	orderRepo *repository.OrderRepository,
	stockRepo *repository.StockRepository,
	supplierRepo *repository.SupplierRepository,
	proposalRepo *repository.ProposalRepository,
	paramStore Params,
	notifier ProposalNotifier,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		db:           db,
		resolver:     resolver,
		ledger:       ledger,
		recommender:  recommender,
		inquirer:     inquirer,
		orderRepo:    orderRepo,
		stockRepo:    stockRepo,
		supplierRepo: supplierRepo,
		proposalRepo: proposalRepo,
		params:       paramStore,
		notifier:     notifier,
		logger:       log.WithComponent("procurement-orchestrator"),
	}
}

// RunOnce executes one full shortfall detection and proposal cycle
func (o *Orchestrator) RunOnce(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{}

	globalMin := o.params.GetInt(ctx, params.ParamGlobalMinStock, params.DefaultGlobalMinStock)
	cooldownDays := o.params.GetInt(ctx, params.ParamProposalCooldownDays, params.DefaultProposalCooldownDays)
	cooldownSince := time.Now().AddDate(0, 0, -cooldownDays)

	candidates, err := o.collectCandidates(ctx, globalMin)
	if err != nil {
		return nil, err
	}
	summary.Candidates = len(candidates)

	for _, cand := range candidates {
		recent, err := o.proposalRepo.HasRecentProposal(ctx, cand.stockItemID, cooldownSince)
		if err != nil {
			o.logger.Error().Err(err).Int64("stock_item_id", cand.stockItemID).Msg("cool-down check failed")
			summary.Failures++
			continue
		}
		if recent {
			o.logger.Debug().Int64("stock_item_id", cand.stockItemID).Msg("proposal within cool-down window, skipping")
			continue
		}

		if err := o.propose(ctx, cand, summary); err != nil {
			o.logger.Error().Err(err).Int64("stock_item_id", cand.stockItemID).Msg("proposal creation failed")
			summary.Failures++
		}
	}

	o.logger.Info().
		Dur("duration", time.Since(start)).
		Int("candidates", summary.Candidates).
		Int("proposals", summary.ProposalsCreated).
		Int("auto_accepted", summary.AutoAccepted).
		Int("failures", summary.Failures).
		Msg("procurement run completed")

	return summary, nil
}

// collectCandidates gathers shortfall items from two triggers: recent
// orders whose BOM requirements exceed stock, and active items at or
// below the global minimum. The first trigger wins when both fire for
// the same item.
func (o *Orchestrator) collectCandidates(ctx context.Context, globalMin int) ([]candidate, error) {
	seen := make(map[int64]bool)
	var candidates []candidate

	orders, err := o.orderRepo.ListRecentOpen(ctx, time.Now().Add(-recentOrderWindow))
	if err != nil {
		return nil, err
	}

	for i := range orders {
		order := orders[i]
		reqs, err := o.resolver.Resolve(ctx, order.ProductID, order.Quantity)
		if err != nil {
			o.logger.Error().Err(err).Int64("order_id", order.ID).Msg("BOM resolution failed, skipping order")
			continue
		}
		if len(reqs) == 0 {
			continue
		}

		result, err := o.ledger.Check(ctx, reqs)
		if err != nil {
			return nil, err
		}

		for _, itemID := range sortedIDs(result.Shortfall) {
			if seen[itemID] {
				continue
			}
			seen[itemID] = true
			candidates = append(candidates, candidate{
				stockItemID: itemID,
				requiredQty: result.Shortfall[itemID],
				trigger:     repository.TriggerOrderShortfall,
				orderID:     &order.ID,
			})
		}
	}

	lowItems, err := o.stockRepo.ListActiveAtOrBelow(ctx, decimal.NewFromInt(int64(globalMin)))
	if err != nil {
		return nil, err
	}

	// Restock to twice the configured minimum, never less than one unit
	requiredQty := decimal.NewFromInt(int64(globalMin) * 2)
	if requiredQty.LessThan(decimal.NewFromInt(1)) {
		requiredQty = decimal.NewFromInt(1)
	}

	for _, item := range lowItems {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		candidates = append(candidates, candidate{
			stockItemID: item.ID,
			requiredQty: requiredQty,
			trigger:     repository.TriggerMinimumStock,
		})
	}

	return candidates, nil
}

// propose creates the draft, inquiry and proposal for one candidate and
// walks the auto-accept path when configured
func (o *Orchestrator) propose(ctx context.Context, cand candidate, summary *RunSummary) error {
	rec, err := o.recommender.Recommend(ctx, cand.stockItemID)
	if err != nil {
		return err
	}
	if rec == nil {
		o.logger.Warn().Int64("stock_item_id", cand.stockItemID).Msg("no active suppliers, skipping candidate")
		return nil
	}

	draft := &repository.PurchaseOrderDraft{
		StockItemID: cand.stockItemID,
		SupplierID:  rec.Supplier.ID,
		Quantity:    cand.requiredQty,
		Rationale:   fmt.Sprintf("trigger=%s score=%.2f", cand.trigger, rec.Score),
	}
	if err := o.proposalRepo.CreateDraft(ctx, draft); err != nil {
		return err
	}

	inquiry := &repository.SupplierStockInquiry{
		SupplierID:  rec.Supplier.ID,
		StockItemID: cand.stockItemID,
		Quantity:    cand.requiredQty,
	}
	if err := o.proposalRepo.CreateInquiry(ctx, inquiry); err != nil {
		return err
	}

	weightsJSON, _ := json.Marshal(rec.Weights)
	proposal := &repository.ProcurementProposal{
		Trigger:        cand.trigger,
		OrderID:        cand.orderID,
		StockItemID:    cand.stockItemID,
		SupplierID:     rec.Supplier.ID,
		DraftID:        draft.ID,
		InquiryID:      inquiry.ID,
		RequiredQty:    cand.requiredQty,
		SupplierScore:  rec.Score,
		WeightsVersion: rec.WeightsVersion,
		Weights:        string(weightsJSON),
	}
	if err := o.proposalRepo.CreateProposal(ctx, proposal); err != nil {
		return err
	}
	summary.ProposalsCreated++

	inquiryStatus := repository.InquiryStatusPending
	if rec.Supplier.StockInquiryURL != nil && *rec.Supplier.StockInquiryURL != "" {
		result := o.inquirer.Inquire(ctx, &rec.Supplier, cand.stockItemID, cand.requiredQty)
		if err := o.proposalRepo.UpdateInquiry(ctx, inquiry.ID, result.Status, result.RawResponse); err != nil {
			return err
		}
		inquiryStatus = result.Status

		if result.Status != repository.InquiryStatusError {
			detail := fmt.Sprintf("inquiry answered: %s", result.Status)
			if err := o.proposalRepo.UpdateProposalState(ctx, proposal.ID, repository.ProposalStateConsulted, &detail); err != nil {
				return err
			}
			proposal.State = repository.ProposalStateConsulted
		}
	}

	autoAccept := o.params.GetBool(ctx, params.ParamAutoAcceptEnabled, params.DefaultAutoAcceptEnabled)
	threshold := o.params.GetFloat(ctx, params.ParamAutoAcceptThreshold, params.DefaultAutoAcceptThreshold)

	if autoAccept && inquiryStatus == repository.InquiryStatusAvailable && rec.Score >= threshold {
		if err := o.autoAccept(ctx, proposal, draft); err != nil {
			return err
		}
		summary.AutoAccepted++
	}

	return nil
}

// autoAccept confirms the draft, books the requested quantity as
// committed incoming stock and marks the proposal accepted, all in one
// transaction
func (o *Orchestrator) autoAccept(ctx context.Context, proposal *repository.ProcurementProposal, draft *repository.PurchaseOrderDraft) error {
	detail := "auto-accepted: supplier available and score above threshold"

	err := o.db.TransactionWithRetry(ctx, txRetryAttempts, func(tx *sqlx.Tx) error {
		if err := o.proposalRepo.ConfirmDraftTx(tx, draft.ID); err != nil {
			return err
		}
		if err := o.ledger.IncrementOnHandTx(tx, proposal.StockItemID, proposal.RequiredQty); err != nil {
			return err
		}
		return o.proposalRepo.MarkProposalStateTx(tx, proposal.ID, repository.ProposalStateAccepted, &detail)
	})
	if err != nil {
		return err
	}

	proposal.State = repository.ProposalStateAccepted
	proposal.Detail = &detail

	o.logger.Info().
		Int64("proposal_id", proposal.ID).
		Int64("supplier_id", proposal.SupplierID).
		Msg("proposal auto-accepted")

	if o.notifier != nil {
		o.notifier.NotifyProposalAccepted(ctx, proposal)
	}
	return nil
}
