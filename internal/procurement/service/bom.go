package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
)

// Resolver expands a product and quantity into stock item requirements
type Resolver interface {
	Resolve(ctx context.Context, productID int64, quantity decimal.Decimal) (Requirements, error)
}

// BomResolver resolves requirements from bill-of-materials reference data
type BomResolver struct {
	bomRepo *repository.BomRepository
}

// NewBomResolver creates a new BOM resolver
func NewBomResolver(bomRepo *repository.BomRepository) *BomResolver {
	return &BomResolver{bomRepo: bomRepo}
}

// Resolve sums qty_per_unit * quantity over the product's BOM entries.
// A product with no entries resolves to an empty mapping: it has no
// stock dependency, which is not an error.
func (r *BomResolver) Resolve(ctx context.Context, productID int64, quantity decimal.Decimal) (Requirements, error) {
	entries, err := r.bomRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	reqs := Requirements{}
	for _, entry := range entries {
		reqs[entry.StockItemID] = reqs[entry.StockItemID].Add(entry.QtyPerUnit.Mul(quantity))
	}
	return reqs, nil
}
