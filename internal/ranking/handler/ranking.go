package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tucanprint/tucan-backend/internal/ranking/service"
	"github.com/tucanprint/tucan-backend/pkg/errors"
	"github.com/tucanprint/tucan-backend/pkg/httputil"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// RankingHandler handles customer ranking and offer endpoints
type RankingHandler struct {
	engine *service.Engine
	offers *service.OfferEngine
	logger *logger.Logger
}

// NewRankingHandler creates a new ranking handler
func NewRankingHandler(engine *service.Engine, offers *service.OfferEngine, log *logger.Logger) *RankingHandler {
	return &RankingHandler{
		engine: engine,
		offers: offers,
		logger: log,
	}
}

// RankingRoutes returns the customer ranking route tree
func (h *RankingHandler) RankingRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/customers", h.ListCustomers)
	r.Get("/customers/{id}", h.GetStanding)
	r.Get("/customers/{id}/history", h.GetHistory)
	r.Post("/run", h.Run)
	return r
}

// OfferRoutes returns the offer route tree
func (h *RankingHandler) OfferRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListOffers)
	r.Post("/run", h.RunOffers)
	return r
}

// ListCustomers returns every ranked customer, best first
func (h *RankingHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	rankings, err := h.engine.ListScores(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rankings)
}

// GetStanding returns one customer's standing. An unranked customer is a
// 200 with ranked=false, not a 404.
func (h *RankingHandler) GetStanding(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid customer id"))
		return
	}

	standing, err := h.engine.Standing(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, standing)
}

// GetHistory returns a customer's per-period score history
func (h *RankingHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid customer id"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := h.engine.History(r.Context(), id, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, history)
}

// Run triggers a ranking recomputation on demand
func (h *RankingHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Run(r.Context(), time.Now())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// ListOffers returns generated offers, optionally filtered by state
func (h *RankingHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	offers, err := h.offers.List(r.Context(), state, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, offers)
}

// RunOffers triggers one rule engine run on demand
func (h *RankingHandler) RunOffers(w http.ResponseWriter, r *http.Request) {
	report, err := h.offers.Run(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
