package coupon

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/velstore/promo-engine/internal/domain/cart"
	"github.com/velstore/promo-engine/internal/domain/scope"
)

var hundred = decimal.NewFromInt(100)

// FreeUnit is a buy-x-get-y grant: a number of units of one product
// given away at its unit price.
type FreeUnit struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Result is the outcome of a discount computation. Amount is rounded to
// two decimal places and never exceeds the applicable subtotal.
type Result struct {
	Amount             decimal.Decimal
	FreeShipping       bool
	ApplicableSubtotal decimal.Decimal
	FreeUnits          []FreeUnit
}

// Compute calculates the discount a coupon yields for the cart. It
// assumes eligibility has already been checked; a cart with no qualifying
// lines yields a zero amount.
func Compute(c *Coupon, lines []cart.Line, index scope.CatalogIndex) Result {
	applicable := c.Scope.FilterLines(lines, index)
	subtotal := cart.Subtotal(applicable)
	res := Result{Amount: decimal.Zero, ApplicableSubtotal: subtotal}

	switch c.Type {
	case TypePercentage:
		res.Amount = subtotal.Mul(c.Value).Div(hundred).Round(2)
		if c.MaxDiscountAmount != nil && res.Amount.GreaterThan(*c.MaxDiscountAmount) {
			res.Amount = *c.MaxDiscountAmount
		}
	case TypeFixed:
		res.Amount = c.Value.Round(2)
	case TypeBuyXGetY:
		if c.BuyXGetY != nil {
			res.FreeUnits = freeUnits(applicable, *c.BuyXGetY)
			pct := c.BuyXGetY.GetDiscountPercent
			for _, fu := range res.FreeUnits {
				res.Amount = res.Amount.Add(
					fu.UnitPrice.Mul(decimal.NewFromInt(int64(fu.Quantity))).Mul(pct).Div(hundred))
			}
			res.Amount = res.Amount.Round(2)
		}
	case TypeFreeShipping:
		res.FreeShipping = true
	}

	if res.Amount.GreaterThan(subtotal) {
		res.Amount = subtotal
	}
	return res
}

// freeUnits picks the cheapest qualifying units as the free grant. The
// grant size is floor(totalQuantity/buyQuantity) * getQuantity.
func freeUnits(applicable []cart.Line, cfg BuyXGetYConfig) []FreeUnit {
	if cfg.BuyQuantity <= 0 || cfg.GetQuantity <= 0 {
		return nil
	}
	free := cart.TotalQuantity(applicable) / cfg.BuyQuantity * cfg.GetQuantity
	if free == 0 {
		return nil
	}

	sorted := make([]cart.Line, len(applicable))
	copy(sorted, applicable)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UnitPrice.LessThan(sorted[j].UnitPrice)
	})

	var out []FreeUnit
	for _, l := range sorted {
		if free == 0 {
			break
		}
		take := l.Quantity
		if take > free {
			take = free
		}
		out = append(out, FreeUnit{ProductID: l.ProductID, Quantity: take, UnitPrice: l.UnitPrice})
		free -= take
	}
	return out
}
