package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// Wire statuses of the supplier stock-inquiry contract
const (
	WireStatusAvailable   = "disponible"
	WireStatusPartial     = "parcial"
	WireStatusUnavailable = "no"
)

// InquiryResult is the recorded outcome of one availability call
type InquiryResult struct {
	Status      string
	RawResponse *string
}

// StockInquirer asks a supplier about availability of a stock item
type StockInquirer interface {
	Inquire(ctx context.Context, supplier *repository.Supplier, stockItemID int64, quantity decimal.Decimal) InquiryResult
}

type inquiryRequest struct {
	StockItemID int64           `json:"stock_item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type inquiryResponse struct {
	Estado  string `json:"estado"`
	Detalle string `json:"detalle"`
}

// InquiryClient calls the supplier stock-inquiry webhook with a bounded
// timeout. There is no retry: a timeout or malformed response is
// recorded as "error" and only reattempted on the next scheduled run.
type InquiryClient struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewInquiryClient creates a new inquiry client
func NewInquiryClient(timeout time.Duration, log *logger.Logger) *InquiryClient {
	return &InquiryClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithComponent("inquiry-client"),
	}
}

// Inquire POSTs {stock_item_id, quantity} to the supplier's endpoint and
// maps the wire status to the local inquiry vocabulary. Never returns an
// error: every failure mode maps to the "error" status.
func (c *InquiryClient) Inquire(ctx context.Context, supplier *repository.Supplier, stockItemID int64, quantity decimal.Decimal) InquiryResult {
	body, err := json.Marshal(inquiryRequest{StockItemID: stockItemID, Quantity: quantity})
	if err != nil {
		return InquiryResult{Status: repository.InquiryStatusError}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *supplier.StockInquiryURL, bytes.NewReader(body))
	if err != nil {
		return InquiryResult{Status: repository.InquiryStatusError}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Int64("supplier_id", supplier.ID).Msg("stock inquiry call failed")
		return InquiryResult{Status: repository.InquiryStatusError}
	}
	defer resp.Body.Close()

	var parsed inquiryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Warn().Err(err).Int64("supplier_id", supplier.ID).Msg("malformed stock inquiry response")
		return InquiryResult{Status: repository.InquiryStatusError}
	}

	raw, _ := json.Marshal(parsed)
	rawStr := string(raw)

	status, ok := MapWireStatus(parsed.Estado)
	if !ok || resp.StatusCode != http.StatusOK {
		c.logger.Warn().
			Int64("supplier_id", supplier.ID).
			Int("http_status", resp.StatusCode).
			Str("estado", parsed.Estado).
			Msg("unrecognized stock inquiry response")
		return InquiryResult{Status: repository.InquiryStatusError, RawResponse: &rawStr}
	}

	return InquiryResult{Status: status, RawResponse: &rawStr}
}

// MapWireStatus translates the webhook status vocabulary to the local
// inquiry statuses
func MapWireStatus(estado string) (string, bool) {
	switch estado {
	case WireStatusAvailable:
		return repository.InquiryStatusAvailable, true
	case WireStatusPartial:
		return repository.InquiryStatusPartial, true
	case WireStatusUnavailable:
		return repository.InquiryStatusUnavailable, true
	default:
		return "", false
	}
}
