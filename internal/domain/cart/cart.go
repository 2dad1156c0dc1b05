// Package cart defines the ephemeral cart snapshot the engine evaluates.
// Lines are caller-supplied and never mutated or persisted by the engine.
package cart

import "github.com/shopspring/decimal"

// Line is a single cart position: a product, its unit price at evaluation
// time, and the ordered quantity.
type Line struct {
	ProductID int64
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns UnitPrice * Quantity for this line.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Subtotal returns the sum of line subtotals across all lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// TotalQuantity returns the sum of quantities across all lines.
func TotalQuantity(lines []Line) int {
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}
