package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/errors"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// ProposalService handles operator decisions on procurement proposals
// and the asynchronous supplier callback
type ProposalService struct {
	db           *database.DB
	ledger       *StockLedger
	proposalRepo *repository.ProposalRepository
	notifier     ProposalNotifier
	logger       *logger.Logger
}

// NewProposalService creates a new proposal service
func NewProposalService(db *database.DB, ledger *StockLedger, proposalRepo *repository.ProposalRepository, notifier ProposalNotifier, log *logger.Logger) *ProposalService {
	return &ProposalService{
		db:           db,
		ledger:       ledger,
		proposalRepo: proposalRepo,
		notifier:     notifier,
		logger:       log.WithComponent("proposals"),
	}
}

// List returns proposals, optionally filtered by decision state
func (s *ProposalService) List(ctx context.Context, state string, limit int) ([]repository.ProcurementProposal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.proposalRepo.ListProposals(ctx, state, limit)
}

// Get returns one proposal
func (s *ProposalService) Get(ctx context.Context, id int64) (*repository.ProcurementProposal, error) {
	return s.proposalRepo.GetProposal(ctx, id)
}

// Decide applies an operator decision. Accepting confirms the draft and
// books the quantity as incoming stock in the same transaction, exactly
// like the auto-accept path.
func (s *ProposalService) Decide(ctx context.Context, id int64, decision string, detail *string) (*repository.ProcurementProposal, error) {
	proposal, err := s.proposalRepo.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}

	switch proposal.State {
	case repository.ProposalStateAccepted, repository.ProposalStateRejected:
		return nil, errors.Conflict("proposal is already decided")
	}

	switch decision {
	case repository.ProposalStateAccepted:
		err = s.db.TransactionWithRetry(ctx, txRetryAttempts, func(tx *sqlx.Tx) error {
			if err := s.proposalRepo.ConfirmDraftTx(tx, proposal.DraftID); err != nil {
				return err
			}
			if err := s.ledger.IncrementOnHandTx(tx, proposal.StockItemID, proposal.RequiredQty); err != nil {
				return err
			}
			return s.proposalRepo.MarkProposalStateTx(tx, proposal.ID, repository.ProposalStateAccepted, detail)
		})
		if err != nil {
			return nil, err
		}
		proposal.State = repository.ProposalStateAccepted
		if s.notifier != nil {
			s.notifier.NotifyProposalAccepted(ctx, proposal)
		}

	case repository.ProposalStateRejected:
		if err := s.proposalRepo.UpdateProposalState(ctx, proposal.ID, repository.ProposalStateRejected, detail); err != nil {
			return nil, err
		}
		proposal.State = repository.ProposalStateRejected
		if s.notifier != nil {
			s.notifier.NotifyProposalRejected(ctx, proposal)
		}

	case repository.ProposalStateModified:
		if err := s.proposalRepo.UpdateProposalState(ctx, proposal.ID, repository.ProposalStateModified, detail); err != nil {
			return nil, err
		}
		proposal.State = repository.ProposalStateModified

	default:
		return nil, errors.BadRequest("unknown decision: " + decision)
	}

	proposal.Detail = detail
	return proposal, nil
}

// ApplyCallback records an asynchronous supplier availability report
// against a proposal. The wire vocabulary matches the outbound inquiry
// contract; an unknown status is a validation error.
func (s *ProposalService) ApplyCallback(ctx context.Context, proposalID int64, estado, detalle string) (*repository.ProcurementProposal, error) {
	status, ok := MapWireStatus(estado)
	if !ok {
		return nil, errors.BadRequest("unknown estado: " + estado)
	}

	proposal, err := s.proposalRepo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	raw := `{"estado":"` + estado + `"}`
	if err := s.proposalRepo.UpdateInquiry(ctx, proposal.InquiryID, status, &raw); err != nil {
		return nil, err
	}

	if proposal.State == repository.ProposalStatePending {
		detail := "supplier callback: " + status
		if detalle != "" {
			detail += " (" + detalle + ")"
		}
		if err := s.proposalRepo.UpdateProposalState(ctx, proposal.ID, repository.ProposalStateConsulted, &detail); err != nil {
			return nil, err
		}
		proposal.State = repository.ProposalStateConsulted
		proposal.Detail = &detail
	}

	s.logger.Info().
		Int64("proposal_id", proposal.ID).
		Str("status", status).
		Msg("supplier callback applied")

	return proposal, nil
}
