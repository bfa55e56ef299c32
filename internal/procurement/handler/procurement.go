package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/internal/procurement/service"
	"github.com/tucanprint/tucan-backend/pkg/errors"
	"github.com/tucanprint/tucan-backend/pkg/httputil"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// ProcurementHandler handles procurement endpoints
type ProcurementHandler struct {
	recommender  service.Recommender
	adjuster     *service.FeedbackAdjuster
	proposals    *service.ProposalService
	orchestrator *service.Orchestrator
	webhookToken string
	logger       *logger.Logger
}

// NewProcurementHandler creates a new procurement handler
func NewProcurementHandler(
	recommender service.Recommender,
	adjuster *service.FeedbackAdjuster,
	proposals *service.ProposalService,
	orchestrator *service.Orchestrator,
	webhookToken string,
	log *logger.Logger,
) *ProcurementHandler {
	return &ProcurementHandler{
		recommender:  recommender,
		adjuster:     adjuster,
		proposals:    proposals,
		orchestrator: orchestrator,
		webhookToken: webhookToken,
		logger:       log,
	}
}

// Routes returns the procurement route tree
func (h *ProcurementHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/recommendations", h.Recommend)
	r.Post("/feedback", h.Feedback)
	r.Post("/run", h.Run)
	r.Get("/proposals", h.ListProposals)
	r.Get("/proposals/{id}", h.GetProposal)
	r.Post("/proposals/{id}/decision", h.DecideProposal)
	r.Post("/webhooks/supplier-callback", h.SupplierCallback)
	return r
}

type recommendRequest struct {
	StockItemID int64 `json:"stock_item_id" validate:"required,gt=0"`
}

// Recommend scores all active suppliers for a stock item and returns
// the best one
func (h *ProcurementHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	rec, err := h.recommender.Recommend(r.Context(), req.StockItemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if rec == nil {
		httputil.Error(w, errors.NotFound("active supplier"))
		return
	}

	httputil.JSON(w, http.StatusOK, rec)
}

type feedbackRequest struct {
	ProposalID          *int64             `json:"proposal_id,omitempty"`
	RecommendedSupplier *int64             `json:"recommended_supplier_id,omitempty"`
	ChosenSupplier      *int64             `json:"chosen_supplier_id,omitempty"`
	Decision            string             `json:"decision" validate:"required,oneof=accepted rejected modified"`
	Signal              map[string]float64 `json:"signal" validate:"required,min=1"`
}

// Feedback applies an operator feedback signal to the scoring weights
func (h *ProcurementHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	entry := &repository.FeedbackEntry{
		ProposalID:          req.ProposalID,
		RecommendedSupplier: req.RecommendedSupplier,
		ChosenSupplier:      req.ChosenSupplier,
		Decision:            req.Decision,
	}

	weights, err := h.adjuster.Apply(r.Context(), entry, req.Signal)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, weights)
}

// Run triggers one orchestrator cycle on demand
func (h *ProcurementHandler) Run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orchestrator.RunOnce(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// ListProposals lists procurement proposals
func (h *ProcurementHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	proposals, err := h.proposals.List(r.Context(), state, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, proposals)
}

// GetProposal returns one proposal
func (h *ProcurementHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid proposal id"))
		return
	}

	proposal, err := h.proposals.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, proposal)
}

type decisionRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=accepted rejected modified"`
	Detail   *string `json:"detail,omitempty"`
}

// DecideProposal applies an operator decision to a proposal
func (h *ProcurementHandler) DecideProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid proposal id"))
		return
	}

	var req decisionRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	proposal, err := h.proposals.Decide(r.Context(), id, req.Decision, req.Detail)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, proposal)
}

type callbackRequest struct {
	ProposalID int64  `json:"proposal_id" validate:"required,gt=0"`
	Estado     string `json:"estado" validate:"required"`
	Detalle    string `json:"detalle,omitempty"`
}

// SupplierCallback lets a supplier report availability asynchronously.
// Authenticated by the shared webhook token, passed either as the
// X-Webhook-Token header or the token query parameter.
func (h *ProcurementHandler) SupplierCallback(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Webhook-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if h.webhookToken == "" || token != h.webhookToken {
		httputil.Error(w, errors.Unauthorized("invalid webhook token"))
		return
	}

	var req callbackRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	proposal, err := h.proposals.ApplyCallback(r.Context(), req.ProposalID, req.Estado, req.Detalle)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, proposal)
}
