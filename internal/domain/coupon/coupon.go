// Package coupon implements code-based discounts: eligibility evaluation,
// discount calculation, code generation, and the validate/apply workflow.
package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velstore/promo-engine/internal/domain/scope"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage discounts the applicable subtotal by a percentage.
	TypePercentage Type = "percentage"
	// TypeFixed subtracts a fixed amount, capped at the applicable subtotal.
	TypeFixed Type = "fixed_amount"
	// TypeBuyXGetY grants free units of the cheapest qualifying items.
	TypeBuyXGetY Type = "buy_x_get_y"
	// TypeFreeShipping waives the shipping cost; the discount amount is zero.
	TypeFreeShipping Type = "free_shipping"
)

// Eligibility restricts which customers may redeem a coupon.
type Eligibility string

const (
	// EligibilityAll allows any customer.
	EligibilityAll Eligibility = "all"
	// EligibilityNewCustomers allows customers with no paid orders.
	EligibilityNewCustomers Eligibility = "new_customers"
	// EligibilityExistingCustomers allows customers with at least one paid order.
	EligibilityExistingCustomers Eligibility = "existing_customers"
	// EligibilitySpecificCustomers allows only explicitly listed customers.
	EligibilitySpecificCustomers Eligibility = "specific_customers"
	// EligibilityCustomerGroups allows members of linked customer groups.
	EligibilityCustomerGroups Eligibility = "customer_groups"
)

// BuyXGetYConfig configures a buy-x-get-y coupon. Discounted units are
// always taken from the cheapest qualifying units in the cart;
// GetDiscountPercent of 100 makes them fully free.
type BuyXGetYConfig struct {
	BuyQuantity        int
	GetQuantity        int
	GetDiscountPercent decimal.Decimal
}

// Coupon is a code-based discount with its full restriction set loaded.
type Coupon struct {
	ID                      int64
	Code                    string
	Name                    string
	Description             string
	Type                    Type
	Value                   decimal.Decimal
	MaxDiscountAmount       *decimal.Decimal
	MinimumAmount           decimal.Decimal
	MaximumAmount           *decimal.Decimal
	MinimumQuantity         int
	UsageLimit              *int
	UsageLimitPerCustomer   *int
	UsedCount               int
	ValidFrom               *time.Time
	ValidUntil              *time.Time
	CustomerEligibility     Eligibility
	Scope                   scope.Scope
	BuyXGetY                *BuyXGetYConfig
	Stackable               bool
	AutoApply               bool
	RequiresShippingAddress bool
	Priority                int
	Active                  bool
}

// Repository provides coupon lookup. Implementations return the coupon
// with its product, category, and customer restrictions fully resolved,
// including subcategory cascade.
type Repository interface {
	// FindByCode returns the coupon for the code, matched
	// case-insensitively, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CodeExists reports whether a coupon with the code already exists,
	// matched case-insensitively.
	CodeExists(ctx context.Context, code string) (bool, error)
	// ListAutoApply returns active auto-apply coupons ordered by
	// descending priority.
	ListAutoApply(ctx context.Context) ([]*Coupon, error)
	// ListActive returns all active coupons.
	ListActive(ctx context.Context) ([]*Coupon, error)
}

// Usage records a successful redemption.
type Usage struct {
	CouponID       int64
	CustomerID     int64
	OrderID        *int64
	DiscountAmount decimal.Decimal
	SubtotalBefore decimal.Decimal
	SubtotalAfter  decimal.Decimal
	UsedAt         time.Time
}

// Stats aggregates redemption history for a coupon.
type Stats struct {
	TotalUses       int
	UniqueCustomers int
	TotalDiscounted decimal.Decimal
	FirstUsedAt     *time.Time
	LastUsedAt      *time.Time
}
