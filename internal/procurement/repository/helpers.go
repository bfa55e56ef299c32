package repository

import (
	"sort"

	"github.com/shopspring/decimal"
)

// sortedItemIDs returns the map keys in ascending order so that SQL
// statement order is deterministic and multi-item locking cannot
// deadlock against a concurrent writer using the same discipline.
func sortedItemIDs(reqs map[int64]decimal.Decimal) []int64 {
	ids := make([]int64, 0, len(reqs))
	for id := range reqs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
