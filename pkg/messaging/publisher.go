package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

type correlationKey string

// CorrelationIDKey is the context key for propagating correlation IDs
const CorrelationIDKey correlationKey = "correlation_id"

// Publisher publishes events to an exchange
type Publisher struct {
	rmq      *RabbitMQ
	exchange string
	source   string
	logger   *logger.Logger
}

// NewPublisher creates a publisher bound to a topic exchange. The exchange
// is declared on creation so publishes never race the topology setup.
func NewPublisher(rmq *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		rmq:      rmq,
		exchange: exchange,
		source:   source,
		logger:   log,
	}, nil
}

// Publish sends an event to the exchange using the event type as routing key
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	event, err := NewEvent(eventType, p.source, data)
	if err != nil {
		return fmt.Errorf("failed to build event: %w", err)
	}

	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok {
		event.CorrelationID = correlationID
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.rmq.Channel().PublishWithContext(
		ctx,
		p.exchange, // exchange
		eventType,  // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.ID,
			Timestamp:     event.Timestamp,
			CorrelationId: event.CorrelationID,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", eventType, err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("event_type", eventType).
		Str("exchange", p.exchange).
		Msg("event published")

	return nil
}
