package materialize

import "github.com/poiesic/steamset/core"

// Invariant is a consistency check over one stored row.
type Invariant struct {
	Name string
	// Holds reports whether the row satisfies the invariant.
	Holds func(core.MaterialSource, core.MaterializedRow) bool
}

// Invariant names.
const (
	RuleNegativePrice = "negative_price"
	RuleDiscountLogic = "discount_logic"
	RuleFreeHasPrice  = "free_has_price"
	RuleDiscountRange = "discount_range"
)

// Invariants lists the checks the validator runs after comparing columns.
var Invariants = []Invariant{
	{RuleNegativePrice, func(_ core.MaterialSource, row core.MaterializedRow) bool {
		for _, col := range []string{core.ColInitialPrice, core.ColFinalPrice} {
			if n, ok := row.Get(col).AsInt(); ok && n < 0 {
				return false
			}
		}
		return true
	}},
	{RuleDiscountLogic, func(_ core.MaterialSource, row core.MaterializedRow) bool {
		discount, ok := row.Get(core.ColDiscountPercent).AsInt()
		if !ok || discount <= 0 {
			return true
		}
		initial, okInitial := row.Get(core.ColInitialPrice).AsInt()
		final, okFinal := row.Get(core.ColFinalPrice).AsInt()
		return !okInitial || !okFinal || final <= initial
	}},
	{RuleFreeHasPrice, func(src core.MaterialSource, row core.MaterializedRow) bool {
		if !src.IsFree {
			return true
		}
		for _, col := range core.PriceColumns {
			if !row.Get(col).IsNull() {
				return false
			}
		}
		return true
	}},
	{RuleDiscountRange, func(_ core.MaterialSource, row core.MaterializedRow) bool {
		discount, ok := row.Get(core.ColDiscountPercent).AsInt()
		return !ok || (discount >= 0 && discount <= 100)
	}},
}
