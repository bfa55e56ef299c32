package service

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/pkg/logger"
)

// Recommendation is the outcome of scoring all active suppliers for a
// stock item. Weights carries the values used, keyed by criterion, so
// the decision stays auditable after the shared weight row moves on.
type Recommendation struct {
	Supplier       repository.Supplier `json:"supplier"`
	Score          float64             `json:"score"`
	WeightsVersion int64               `json:"weights_version"`
	Weights        map[string]float64  `json:"weights"`
}

// Recommender picks the best supplier for a stock item
type Recommender interface {
	Recommend(ctx context.Context, stockItemID int64) (*Recommendation, error)
}

// SupplierScorer computes weighted multi-criteria supplier scores from
// purchase-order history
type SupplierScorer struct {
	supplierRepo *repository.SupplierRepository
	weightsRepo  *repository.WeightsRepository
	logger       *logger.Logger
}

// NewSupplierScorer creates a new supplier scorer
func NewSupplierScorer(supplierRepo *repository.SupplierRepository, weightsRepo *repository.WeightsRepository, log *logger.Logger) *SupplierScorer {
	return &SupplierScorer{
		supplierRepo: supplierRepo,
		weightsRepo:  weightsRepo,
		logger:       log.WithComponent("supplier-scorer"),
	}
}

// Recommend scores every active supplier and returns the best one; ties
// break toward the lowest supplier ID. Every computed score is persisted
// to the cache, not just the winner's. Returns nil when there are no
// active suppliers.
func (s *SupplierScorer) Recommend(ctx context.Context, stockItemID int64) (*Recommendation, error) {
	suppliers, err := s.supplierRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(suppliers) == 0 {
		return nil, nil
	}

	weights, err := s.weightsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := s.supplierRepo.ListStats(ctx, stockItemID)
	if err != nil {
		return nil, err
	}

	statsBySupplier := make(map[int64]repository.SupplierStats, len(stats))
	for _, st := range stats {
		statsBySupplier[st.SupplierID] = st
	}
	minPrice, maxPrice := priceBounds(stats)

	var best *Recommendation
	for _, supplier := range suppliers {
		score := scoreSupplier(statsBySupplier[supplier.ID], weights, minPrice, maxPrice)

		if err := s.supplierRepo.SaveScore(ctx, supplier.ID, score); err != nil {
			return nil, err
		}

		// Suppliers are scanned in ascending ID order, so a strict
		// comparison keeps the lowest ID on a tie.
		if best == nil || score > best.Score {
			best = &Recommendation{
				Supplier:       supplier,
				Score:          score,
				WeightsVersion: weights.Version,
				Weights:        weights.AsMap(),
			}
		}
	}

	s.logger.Debug().
		Int64("stock_item_id", stockItemID).
		Int64("supplier_id", best.Supplier.ID).
		Float64("score", best.Score).
		Msg("supplier recommended")

	return best, nil
}

// Score computes a single supplier's score for one stock item against
// the current weights and the price bounds of the whole active population
func (s *SupplierScorer) Score(ctx context.Context, supplierID, stockItemID int64) (float64, error) {
	weights, err := s.weightsRepo.Get(ctx)
	if err != nil {
		return 0, err
	}

	stats, err := s.supplierRepo.ListStats(ctx, stockItemID)
	if err != nil {
		return 0, err
	}

	minPrice, maxPrice := priceBounds(stats)
	for _, st := range stats {
		if st.SupplierID == supplierID {
			return scoreSupplier(st, weights, minPrice, maxPrice), nil
		}
	}
	return scoreSupplier(repository.SupplierStats{SupplierID: supplierID}, weights, minPrice, maxPrice), nil
}

// scoreSupplier combines four normalized sub-metrics as a weighted sum
// scaled to 0-100 and rounded to 2 decimals. Price and incident metrics
// are inverted so lower is better. A supplier with no history defaults
// every metric to its most favorable value.
func scoreSupplier(stats repository.SupplierStats, weights *repository.ScoringWeights, minPrice, maxPrice *decimal.Decimal) float64 {
	price := 1.0
	if stats.AvgPrice != nil && minPrice != nil && maxPrice != nil && maxPrice.GreaterThan(*minPrice) {
		spread := maxPrice.Sub(*minPrice)
		price = maxPrice.Sub(*stats.AvgPrice).Div(spread).InexactFloat64()
	}

	compliance := 1.0
	incidents := 1.0
	if stats.TotalOrders > 0 {
		compliance = float64(stats.ConfirmedOrders) / float64(stats.TotalOrders)
		incidents = 1.0 - float64(stats.IncidentOrders)/float64(stats.TotalOrders)
	}

	availability := 1.0
	if stats.LastInquiryAvailable != nil && !*stats.LastInquiryAvailable {
		availability = 0.0
	}

	score := weights.Price*price +
		weights.Cumplimiento*compliance +
		weights.Incidencias*incidents +
		weights.Disponibilidad*availability

	return math.Round(score*100*100) / 100
}

// priceBounds returns the min and max average price across suppliers
// with price history, or nil when none have any
func priceBounds(stats []repository.SupplierStats) (*decimal.Decimal, *decimal.Decimal) {
	var min, max *decimal.Decimal
	for _, st := range stats {
		if st.AvgPrice == nil {
			continue
		}
		p := *st.AvgPrice
		if min == nil || p.LessThan(*min) {
			min = &p
		}
		if max == nil || p.GreaterThan(*max) {
			max = &p
		}
	}
	return min, max
}
