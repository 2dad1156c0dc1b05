package promotion

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velstore/promo-engine/internal/domain/scope"
)

// RuleType selects the cart metric a bulk rule measures.
type RuleType string

const (
	// QuantityBased tiers on the total quantity of scoped lines.
	QuantityBased RuleType = "quantity_based"
	// AmountBased tiers on the subtotal of scoped lines.
	AmountBased RuleType = "amount_based"
)

// BulkRule is a tiered automatic discount over a product scope.
type BulkRule struct {
	ID        int64
	Name      string
	RuleType  RuleType
	Tiers     []Tier
	Scope     scope.Scope
	Stackable bool
	Active    bool
}

// FlashDiscount selects how a flash sale discounts its scoped subtotal.
type FlashDiscount string

const (
	// FlashPercentage discounts the scoped subtotal by a percentage.
	FlashPercentage FlashDiscount = "percentage"
	// FlashFixed subtracts a fixed amount, capped at the scoped subtotal.
	FlashFixed FlashDiscount = "fixed_amount"
)

// FlashSale is a time-boxed automatic discount with an optional usage cap.
type FlashSale struct {
	ID           int64
	Name         string
	StartsAt     time.Time
	EndsAt       time.Time
	DiscountType FlashDiscount
	Value        decimal.Decimal
	MaxDiscount  *decimal.Decimal
	UsageLimit   *int
	UsedCount    int
	Scope        scope.Scope
	Active       bool
}

// Running reports whether the sale is live at the instant now and has
// usage capacity left.
func (f *FlashSale) Running(now time.Time) bool {
	if !f.Active || now.Before(f.StartsAt) || !now.Before(f.EndsAt) {
		return false
	}
	if f.UsageLimit != nil && f.UsedCount >= *f.UsageLimit {
		return false
	}
	return true
}

// Repository loads active promotion definitions with their scopes
// resolved, including subcategory cascade.
type Repository interface {
	ListActiveRules(ctx context.Context) ([]*BulkRule, error)
	ListFlashSales(ctx context.Context, now time.Time) ([]*FlashSale, error)
}
