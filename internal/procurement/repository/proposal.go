package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/errors"
)

// Draft purchase order statuses
const (
	DraftStatusSuggested = "suggested"
	DraftStatusConfirmed = "confirmed"
	DraftStatusRejected  = "rejected"
)

// Stock inquiry statuses
const (
	InquiryStatusPending     = "pending"
	InquiryStatusAvailable   = "available"
	InquiryStatusPartial     = "partial"
	InquiryStatusUnavailable = "unavailable"
	InquiryStatusError       = "error"
)

// Proposal decision states
const (
	ProposalStatePending   = "pending"
	ProposalStateConsulted = "consulted"
	ProposalStateAccepted  = "accepted"
	ProposalStateRejected  = "rejected"
	ProposalStateModified  = "modified"
)

// Shortfall trigger kinds
const (
	TriggerOrderShortfall = "order_shortfall"
	TriggerMinimumStock   = "minimum_stock"
)

// PurchaseOrderDraft is a suggested purchase order awaiting confirmation
type PurchaseOrderDraft struct {
	ID          int64           `db:"id" json:"id"`
	StockItemID int64           `db:"stock_item_id" json:"stock_item_id"`
	SupplierID  int64           `db:"supplier_id" json:"supplier_id"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Status      string          `db:"status" json:"status"`
	Rationale   string          `db:"rationale" json:"rationale"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// SupplierStockInquiry records one availability question to a supplier
type SupplierStockInquiry struct {
	ID          int64           `db:"id" json:"id"`
	SupplierID  int64           `db:"supplier_id" json:"supplier_id"`
	StockItemID int64           `db:"stock_item_id" json:"stock_item_id"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Status      string          `db:"status" json:"status"`
	RawResponse *string         `db:"raw_response" json:"raw_response,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	AnsweredAt  *time.Time      `db:"answered_at" json:"answered_at,omitempty"`
}

// ProcurementProposal is the audit record of one automated procurement
// decision: trigger, recommended supplier, draft order, inquiry and the
// weight snapshot used
type ProcurementProposal struct {
	ID             int64           `db:"id" json:"id"`
	Trigger        string          `db:"trigger_kind" json:"trigger"`
	OrderID        *int64          `db:"order_id" json:"order_id,omitempty"`
	StockItemID    int64           `db:"stock_item_id" json:"stock_item_id"`
	SupplierID     int64           `db:"supplier_id" json:"supplier_id"`
	DraftID        int64           `db:"draft_id" json:"draft_id"`
	InquiryID      int64           `db:"inquiry_id" json:"inquiry_id"`
	RequiredQty    decimal.Decimal `db:"required_qty" json:"required_qty"`
	SupplierScore  float64         `db:"supplier_score" json:"supplier_score"`
	WeightsVersion int64           `db:"weights_version" json:"weights_version"`
	// Weights is the JSON criterion->value snapshot used for the score,
	// copied at proposal time because the shared weight row is overwritten
	// by later feedback.
	Weights string `db:"weights" json:"weights"`
	State   string `db:"state" json:"state"`
	Detail         *string         `db:"detail" json:"detail,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	DecidedAt      *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
}

// ProposalRepository handles drafts, inquiries and proposals
type ProposalRepository struct {
	db *database.DB
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(db *database.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// CreateDraft inserts a purchase order draft in "suggested" state
func (r *ProposalRepository) CreateDraft(ctx context.Context, draft *PurchaseOrderDraft) error {
	draft.Status = DraftStatusSuggested
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO purchase_order_drafts (stock_item_id, supplier_id, quantity, status, rationale, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`, draft.StockItemID, draft.SupplierID, draft.Quantity, draft.Status, draft.Rationale).
		Scan(&draft.ID, &draft.CreatedAt)
}

// CreateInquiry inserts a stock inquiry in "pending" state
func (r *ProposalRepository) CreateInquiry(ctx context.Context, inquiry *SupplierStockInquiry) error {
	inquiry.Status = InquiryStatusPending
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO supplier_stock_inquiries (supplier_id, stock_item_id, quantity, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`, inquiry.SupplierID, inquiry.StockItemID, inquiry.Quantity, inquiry.Status).
		Scan(&inquiry.ID, &inquiry.CreatedAt)
}

// UpdateInquiry records the outcome of an inquiry call
func (r *ProposalRepository) UpdateInquiry(ctx context.Context, id int64, status string, rawResponse *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE supplier_stock_inquiries
		SET status = $2, raw_response = $3, answered_at = NOW()
		WHERE id = $1
	`, id, status, rawResponse)
	return err
}

// CreateProposal inserts a procurement proposal in "pending" state
func (r *ProposalRepository) CreateProposal(ctx context.Context, p *ProcurementProposal) error {
	p.State = ProposalStatePending
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO procurement_proposals
			(trigger_kind, order_id, stock_item_id, supplier_id, draft_id, inquiry_id,
			 required_qty, supplier_score, weights_version, weights, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING id, created_at
	`, p.Trigger, p.OrderID, p.StockItemID, p.SupplierID, p.DraftID, p.InquiryID,
		p.RequiredQty, p.SupplierScore, p.WeightsVersion, p.Weights, p.State).
		Scan(&p.ID, &p.CreatedAt)
}

const proposalColumns = `
	id, trigger_kind, order_id, stock_item_id, supplier_id, draft_id, inquiry_id,
	required_qty, supplier_score, weights_version, weights, state, detail, created_at, decided_at
`

// GetProposal returns a proposal by ID
func (r *ProposalRepository) GetProposal(ctx context.Context, id int64) (*ProcurementProposal, error) {
	var p ProcurementProposal
	query := `SELECT ` + proposalColumns + ` FROM procurement_proposals WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("procurement proposal")
		}
		return nil, err
	}
	return &p, nil
}

// ListProposals returns proposals, newest first, optionally filtered by state
func (r *ProposalRepository) ListProposals(ctx context.Context, state string, limit int) ([]ProcurementProposal, error) {
	var proposals []ProcurementProposal
	if state != "" {
		query := `SELECT ` + proposalColumns + ` FROM procurement_proposals WHERE state = $1 ORDER BY created_at DESC LIMIT $2`
		if err := r.db.SelectContext(ctx, &proposals, query, state, limit); err != nil {
			return nil, err
		}
		return proposals, nil
	}

	query := `SELECT ` + proposalColumns + ` FROM procurement_proposals ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &proposals, query, limit); err != nil {
		return nil, err
	}
	return proposals, nil
}

// HasRecentProposal reports whether a proposal for the item exists inside
// the cool-down window
func (r *ProposalRepository) HasRecentProposal(ctx context.Context, stockItemID int64, since time.Time) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM procurement_proposals WHERE stock_item_id = $1 AND created_at >= $2)`
	if err := r.db.GetContext(ctx, &exists, query, stockItemID, since); err != nil {
		return false, err
	}
	return exists, nil
}

// UpdateProposalState records an operator or automatic decision
func (r *ProposalRepository) UpdateProposalState(ctx context.Context, id int64, state string, detail *string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE procurement_proposals SET state = $2, detail = $3, decided_at = NOW() WHERE id = $1
	`, id, state, detail)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("procurement proposal")
	}
	return nil
}

// ConfirmDraftTx moves a draft to "confirmed" inside the auto-accept
// transaction
func (r *ProposalRepository) ConfirmDraftTx(tx *sqlx.Tx, draftID int64) error {
	_, err := tx.Exec(`UPDATE purchase_order_drafts SET status = $2 WHERE id = $1`, draftID, DraftStatusConfirmed)
	return err
}

// MarkProposalStateTx records a proposal decision inside a transaction
func (r *ProposalRepository) MarkProposalStateTx(tx *sqlx.Tx, id int64, state string, detail *string) error {
	_, err := tx.Exec(`
		UPDATE procurement_proposals SET state = $2, detail = $3, decided_at = NOW() WHERE id = $1
	`, id, state, detail)
	return err
}
