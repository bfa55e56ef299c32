package events

import (
	"context"

	"github.com/tucanprint/tucan-backend/internal/ranking/repository"
	"github.com/tucanprint/tucan-backend/pkg/logger"
	"github.com/tucanprint/tucan-backend/pkg/messaging"
)

// RankingEventPublisher publishes ranking and offer events
type RankingEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewRankingEventPublisher creates a new ranking event publisher
func NewRankingEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*RankingEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.AutomationExchange, "automation-service", log)
	if err != nil {
		return nil, err
	}

	return &RankingEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// NotifyRankingComputed publishes a ranking.computed event
func (p *RankingEventPublisher) NotifyRankingComputed(ctx context.Context, period string, ranked int) {
	if p == nil {
		return
	}

	data := messaging.RankingComputedData{
		Period:      period,
		RankedCount: ranked,
	}

	if err := p.publisher.Publish(ctx, messaging.EventRankingComputed, data); err != nil {
		p.logger.Error().Err(err).Str("period", period).Msg("failed to publish ranking computed event")
	}
}

// NotifyOfferProposed publishes an offer.proposed event
func (p *RankingEventPublisher) NotifyOfferProposed(ctx context.Context, offer *repository.OfferProposal) {
	if p == nil {
		return
	}

	data := messaging.OfferProposedData{
		OfferID:    offer.ID,
		CustomerID: offer.CustomerID,
		RuleName:   offer.RuleName,
		Benefit:    offer.Title,
		Period:     offer.Period,
	}

	if err := p.publisher.Publish(ctx, messaging.EventOfferProposed, data); err != nil {
		p.logger.Error().Err(err).Int64("offer_id", offer.ID).Msg("failed to publish offer proposed event")
	}
}
