package events

import (
	"context"
	"time"

	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/internal/procurement/service"
	"github.com/tucanprint/tucan-backend/pkg/logger"
	"github.com/tucanprint/tucan-backend/pkg/messaging"
)

// ProcurementEventPublisher publishes procurement-related events
type ProcurementEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewProcurementEventPublisher creates a new procurement event publisher
func NewProcurementEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*ProcurementEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.AutomationExchange, "automation-service", log)
	if err != nil {
		return nil, err
	}

	return &ProcurementEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// NotifyShortfall publishes one stock.shortfall event per missing item
func (p *ProcurementEventPublisher) NotifyShortfall(ctx context.Context, orderID *int64, shortfall service.Requirements) {
	if p == nil {
		return
	}

	trigger := repository.TriggerMinimumStock
	if orderID != nil {
		trigger = repository.TriggerOrderShortfall
	}

	for itemID, qty := range shortfall {
		data := messaging.StockShortfallData{
			StockItemID:  itemID,
			RequiredQty:  qty.String(),
			TriggeredBy:  trigger,
			OrderID:      orderID,
			DetectedAtTS: time.Now().UTC().Format(time.RFC3339),
		}

		if err := p.publisher.Publish(ctx, messaging.EventStockShortfall, data); err != nil {
			p.logger.Error().Err(err).Int64("stock_item_id", itemID).Msg("failed to publish shortfall event")
		}
	}
}

// NotifyProposalAccepted publishes a procurement.proposal.accepted event
func (p *ProcurementEventPublisher) NotifyProposalAccepted(ctx context.Context, proposal *repository.ProcurementProposal) {
	if p == nil {
		return
	}
	p.publishDecision(ctx, messaging.EventProposalAccepted, proposal)
}

// NotifyProposalRejected publishes a procurement.proposal.rejected event
func (p *ProcurementEventPublisher) NotifyProposalRejected(ctx context.Context, proposal *repository.ProcurementProposal) {
	if p == nil {
		return
	}
	p.publishDecision(ctx, messaging.EventProposalRejected, proposal)
}

func (p *ProcurementEventPublisher) publishDecision(ctx context.Context, eventType string, proposal *repository.ProcurementProposal) {
	detail := ""
	if proposal.Detail != nil {
		detail = *proposal.Detail
	}

	data := messaging.ProposalDecisionData{
		ProposalID:  proposal.ID,
		SupplierID:  proposal.SupplierID,
		StockItemID: proposal.StockItemID,
		Quantity:    proposal.RequiredQty.String(),
		Score:       proposal.SupplierScore,
		Detail:      detail,
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Int64("proposal_id", proposal.ID).Msg("failed to publish proposal decision event")
	}
}

// NotifyWeightsAdjusted publishes a weights.adjusted event
func (p *ProcurementEventPublisher) NotifyWeightsAdjusted(ctx context.Context, version int64, weights map[string]float64, adjustedBy string) {
	if p == nil {
		return
	}

	data := messaging.WeightsAdjustedData{
		Version:    version,
		Weights:    weights,
		AdjustedBy: adjustedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventWeightsAdjusted, data); err != nil {
		p.logger.Error().Err(err).Int64("version", version).Msg("failed to publish weights adjusted event")
	}
}
