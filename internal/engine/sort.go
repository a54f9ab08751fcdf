package engine

import (
	"sort"

	"github.com/alphasignal/fundsync/internal/store"
)

// Valuation pairs a mirror item with its current growth percentage for
// presentation-order sorting. Growth data comes from the quote layer, not
// from sync state.
type Valuation struct {
	Item      store.Item
	GrowthPct float64
}

// SortOrder selects a presentation ordering for watchlist valuations.
type SortOrder int

const (
	// SortDefault orders by the user-arranged mirror sort index.
	SortDefault SortOrder = iota
	// SortHighDropFirst orders by growth ascending (biggest loss first).
	SortHighDropFirst
	// SortHighGrowthFirst orders by growth descending (biggest gain first).
	SortHighGrowthFirst
)

// SortValuations sorts in place. Growth-based orders are stable with
// respect to the mirror sort index: items with equal growth keep their
// user-arranged relative order.
func SortValuations(vals []Valuation, order SortOrder) {
	sort.SliceStable(vals, func(i, j int) bool {
		return vals[i].Item.SortIndex < vals[j].Item.SortIndex
	})

	switch order {
	case SortHighDropFirst:
		sort.SliceStable(vals, func(i, j int) bool {
			return vals[i].GrowthPct < vals[j].GrowthPct
		})
	case SortHighGrowthFirst:
		sort.SliceStable(vals, func(i, j int) bool {
			return vals[i].GrowthPct > vals[j].GrowthPct
		})
	case SortDefault:
	}
}
