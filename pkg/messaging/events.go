package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exchange names
const (
	AutomationExchange = "automation.events"
	OrderExchange      = "order.events"
)

// Event types published by the automation service
const (
	EventStockShortfall   = "stock.shortfall"
	EventProposalAccepted = "procurement.proposal.accepted"
	EventProposalRejected = "procurement.proposal.rejected"
	EventOfferProposed    = "offer.proposed"
	EventWeightsAdjusted  = "weights.adjusted"
	EventRankingComputed  = "ranking.computed"
)

// Event types consumed from the order service
const (
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventOrderCancelled = "order.cancelled"
)

// Event is the envelope for all messages on the bus
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// UnmarshalData decodes the event payload into v
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// NewEvent creates an event envelope with the given type and payload
func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}, nil
}

// StockShortfallData is published when on-hand stock cannot cover demand
type StockShortfallData struct {
	StockItemID  int64  `json:"stock_item_id"`
	ItemName     string `json:"item_name"`
	OnHand       string `json:"on_hand"`
	RequiredQty  string `json:"required_qty"`
	TriggeredBy  string `json:"triggered_by"`
	OrderID      *int64 `json:"order_id,omitempty"`
	DetectedAtTS string `json:"detected_at"`
}

// ProposalDecisionData is published when a purchase proposal is accepted or rejected
type ProposalDecisionData struct {
	ProposalID  int64   `json:"proposal_id"`
	SupplierID  int64   `json:"supplier_id"`
	StockItemID int64   `json:"stock_item_id"`
	Quantity    string  `json:"quantity"`
	Score       float64 `json:"score"`
	Detail      string  `json:"detail,omitempty"`
}

// OfferProposedData is published when the rule engine generates a customer offer
type OfferProposedData struct {
	OfferID    int64  `json:"offer_id"`
	CustomerID int64  `json:"customer_id"`
	RuleName   string `json:"rule_name"`
	Benefit    string `json:"benefit"`
	Period     string `json:"period"`
}

// WeightsAdjustedData is published after a supplier feedback cycle updates the scoring weights
type WeightsAdjustedData struct {
	Version    int64              `json:"version"`
	Weights    map[string]float64 `json:"weights"`
	AdjustedBy string             `json:"adjusted_by"`
}

// RankingComputedData is published after a ranking recomputation finishes
type RankingComputedData struct {
	Period        string `json:"period"`
	RankedCount   int    `json:"ranked_count"`
	UnrankedCount int    `json:"unranked_count"`
}

// OrderEventData is the payload of order.* events from the order service
type OrderEventData struct {
	OrderID    int64           `json:"order_id"`
	CustomerID int64           `json:"customer_id"`
	Status     string          `json:"status"`
	Lines      []OrderLineData `json:"lines"`
}

// OrderLineData is a single product line on an order event
type OrderLineData struct {
	ProductID int64  `json:"product_id"`
	Quantity  string `json:"quantity"`
}
