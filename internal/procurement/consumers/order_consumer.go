package consumers

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/internal/procurement/service"
	"github.com/tucanprint/tucan-backend/pkg/logger"
	"github.com/tucanprint/tucan-backend/pkg/messaging"
)

// OrderEventConsumer drives the consumption calculator from order
// lifecycle events
type OrderEventConsumer struct {
	consumer   *messaging.Consumer
	calculator *service.ConsumptionCalculator
	logger     *logger.Logger
}

// NewOrderEventConsumer creates a new order event consumer
func NewOrderEventConsumer(rmq *messaging.RabbitMQ, calculator *service.ConsumptionCalculator, log *logger.Logger) (*OrderEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "automation-service.order-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.OrderExchange, "order.#"); err != nil {
		return nil, err
	}

	c := &OrderEventConsumer{
		consumer:   consumer,
		calculator: calculator,
		logger:     log,
	}

	consumer.RegisterHandler(messaging.EventOrderCreated, c.handleOrderCreated)
	consumer.RegisterHandler(messaging.EventOrderUpdated, c.handleOrderUpdated)
	consumer.RegisterHandler(messaging.EventOrderCancelled, c.handleOrderCancelled)

	return c, nil
}

// Start starts consuming messages
func (c *OrderEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *OrderEventConsumer) handleOrderCreated(ctx context.Context, event *messaging.Event) error {
	order, err := orderFromEvent(event)
	if err != nil {
		return err
	}

	c.logger.Info().
		Int64("order_id", order.ID).
		Msg("received order created event")

	_, err = c.calculator.OnOrderCreated(ctx, order)
	return err
}

func (c *OrderEventConsumer) handleOrderUpdated(ctx context.Context, event *messaging.Event) error {
	order, err := orderFromEvent(event)
	if err != nil {
		return err
	}

	c.logger.Info().
		Int64("order_id", order.ID).
		Msg("received order updated event")

	if order.Status == repository.OrderStatusCancelled {
		return c.calculator.OnOrderCancelled(ctx, order.ID)
	}

	_, err = c.calculator.OnOrderUpdated(ctx, order)
	return err
}

func (c *OrderEventConsumer) handleOrderCancelled(ctx context.Context, event *messaging.Event) error {
	var data messaging.OrderEventData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Int64("order_id", data.OrderID).
		Msg("received order cancelled event")

	return c.calculator.OnOrderCancelled(ctx, data.OrderID)
}

// orderFromEvent maps the event payload to the calculator's order view.
// Only the first line drives consumption; print orders carry exactly one
// product line.
func orderFromEvent(event *messaging.Event) (*repository.Order, error) {
	var data messaging.OrderEventData
	if err := event.UnmarshalData(&data); err != nil {
		return nil, err
	}

	order := &repository.Order{
		ID:         data.OrderID,
		CustomerID: data.CustomerID,
		Status:     data.Status,
	}

	if len(data.Lines) > 0 {
		order.ProductID = data.Lines[0].ProductID
		qty, err := decimal.NewFromString(data.Lines[0].Quantity)
		if err != nil {
			return nil, err
		}
		order.Quantity = qty
	}

	return order, nil
}
