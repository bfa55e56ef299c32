package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// EventHandler processes a single event. Returning an error requeues the
// delivery once; a second failure drops it.
type EventHandler func(ctx context.Context, event *Event) error

// Consumer subscribes a queue to exchanges and dispatches events to handlers
type Consumer struct {
	rmq      *RabbitMQ
	queue    string
	logger   *logger.Logger
	handlers map[string]EventHandler
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewConsumer creates a consumer on the given queue
func NewConsumer(rmq *RabbitMQ, queue string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareQueue(queue); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &Consumer{
		rmq:      rmq,
		queue:    queue,
		logger:   log,
		handlers: make(map[string]EventHandler),
	}, nil
}

// RegisterHandler registers a handler for an event type
func (c *Consumer) RegisterHandler(eventType string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = handler
}

// Subscribe binds the consumer's queue to routing keys on an exchange
func (c *Consumer) Subscribe(exchange string, routingKeys ...string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	for _, key := range routingKeys {
		if err := c.rmq.BindQueue(c.queue, exchange, key); err != nil {
			return fmt.Errorf("failed to bind %s to %s with key %s: %w", c.queue, exchange, key, err)
		}
	}

	return nil
}

// Start begins consuming messages until the context is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.rmq.Channel().Consume(
		c.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming from %s: %w", c.queue, err)
	}

	c.logger.Info().Str("queue", c.queue).Msg("consumer started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queue).Msg("consumer stopping")
				return
			case delivery, ok := <-deliveries:
				if !ok {
					c.logger.Warn().Str("queue", c.queue).Msg("delivery channel closed")
					return
				}
				c.handleDelivery(ctx, delivery)
			}
		}
	}()

	return nil
}

// Wait blocks until the consumer goroutine exits
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event, dropping")
		delivery.Nack(false, false)
		return
	}

	c.mu.RLock()
	handler, ok := c.handlers[event.Type]
	c.mu.RUnlock()

	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered, acking")
		delivery.Ack(false)
		return
	}

	if event.CorrelationID != "" {
		ctx = context.WithValue(ctx, CorrelationIDKey, event.CorrelationID)
	}

	if err := handler(ctx, &event); err != nil {
		c.logger.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("handler failed")

		// Requeue once; redelivered messages that fail again are dropped
		delivery.Nack(false, !delivery.Redelivered)
		return
	}

	delivery.Ack(false)
}
