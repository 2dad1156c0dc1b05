// Package promotion implements code-less automatic discounts: tiered
// bulk discount rules and time-boxed flash sales.
package promotion

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Tier pairs a metric threshold with the discount percentage granted
// once the cart metric reaches it.
type Tier struct {
	Threshold       decimal.Decimal
	DiscountPercent decimal.Decimal
}

// ResolveTier selects the tier with the largest threshold not exceeding
// the metric m. When thresholds are duplicated, the first tier after a
// stable descending sort wins. The second return is false when m is
// below every threshold.
func ResolveTier(tiers []Tier, m decimal.Decimal) (Tier, bool) {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold.GreaterThan(sorted[j].Threshold)
	})
	for _, t := range sorted {
		if t.Threshold.LessThanOrEqual(m) {
			return t, true
		}
	}
	return Tier{}, false
}
