package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/velstore/promo-engine/internal/domain/cart"
)

// EligibilityStore answers the customer-history questions the evaluator
// needs. Implementations live in the storage layer.
type EligibilityStore interface {
	// PaidOrderCount returns the number of paid orders for the customer.
	PaidOrderCount(ctx context.Context, customerID int64) (int, error)
	// CouponUseCount returns how many times the customer has redeemed
	// the coupon.
	CouponUseCount(ctx context.Context, couponID, customerID int64) (int, error)
	// IsAllowedCustomer reports whether the customer is explicitly
	// listed on the coupon.
	IsAllowedCustomer(ctx context.Context, couponID, customerID int64) (bool, error)
	// InAnyGroup reports whether the customer belongs to any customer
	// group linked to the coupon.
	InAnyGroup(ctx context.Context, couponID, customerID int64) (bool, error)
}

// Evaluator runs the full eligibility rule chain for a coupon against a
// customer and cart. It performs reads only; redemption counting is the
// ledger's job.
type Evaluator struct {
	store EligibilityStore
	now   func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given store.
func NewEvaluator(store EligibilityStore) *Evaluator {
	return &Evaluator{store: store, now: time.Now}
}

// Evaluate checks every eligibility rule in order and returns the first
// rejection, or nil when the customer and cart qualify. The error return
// carries store failures only.
func (e *Evaluator) Evaluate(ctx context.Context, c *Coupon, customerID int64, lines []cart.Line) (*Rejection, error) {
	if r := e.checkWindow(c); r != nil {
		return r, nil
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return reject(ReasonUsageLimitExceeded, "coupon usage limit reached"), nil
	}

	if r, err := e.checkCustomer(ctx, c, customerID); err != nil {
		return nil, err
	} else if r != nil {
		return r, nil
	}

	if c.UsageLimitPerCustomer != nil {
		uses, err := e.store.CouponUseCount(ctx, c.ID, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "count customer uses")
		}
		if uses >= *c.UsageLimitPerCustomer {
			return reject(ReasonCustomerUsageExceeded, "customer usage limit reached"), nil
		}
	}

	if len(lines) == 0 {
		return nil, nil
	}
	return e.checkCart(c, lines), nil
}

func (e *Evaluator) checkWindow(c *Coupon) *Rejection {
	if !c.Active {
		return reject(ReasonInvalidCoupon, "coupon is not active")
	}
	now := e.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return reject(ReasonInvalidCoupon, "coupon is not yet valid")
	}
	// The window is half-open: valid_until itself is already expired.
	if c.ValidUntil != nil && !now.Before(*c.ValidUntil) {
		return reject(ReasonInvalidCoupon, "coupon has expired")
	}
	return nil
}

func (e *Evaluator) checkCustomer(ctx context.Context, c *Coupon, customerID int64) (*Rejection, error) {
	switch c.CustomerEligibility {
	case EligibilityNewCustomers:
		paid, err := e.store.PaidOrderCount(ctx, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "count paid orders")
		}
		if paid > 0 {
			return reject(ReasonCustomerNotEligible, "coupon is for new customers only"), nil
		}
	case EligibilityExistingCustomers:
		paid, err := e.store.PaidOrderCount(ctx, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "count paid orders")
		}
		if paid == 0 {
			return reject(ReasonCustomerNotEligible, "coupon is for existing customers only"), nil
		}
	case EligibilitySpecificCustomers:
		listed, err := e.store.IsAllowedCustomer(ctx, c.ID, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "check allowed customer")
		}
		if !listed {
			return reject(ReasonCustomerNotEligible, "customer is not on the coupon's allow list"), nil
		}
	case EligibilityCustomerGroups:
		grouped, err := e.store.InAnyGroup(ctx, c.ID, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "check customer groups")
		}
		if !grouped {
			return reject(ReasonCustomerNotEligible, "customer is not in an eligible group"), nil
		}
	}
	return nil, nil
}

func (e *Evaluator) checkCart(c *Coupon, lines []cart.Line) *Rejection {
	subtotal := cart.Subtotal(lines)
	if subtotal.LessThan(c.MinimumAmount) {
		return reject(ReasonMinimumAmountNotMet,
			fmt.Sprintf("cart subtotal %s is below the minimum %s", subtotal.StringFixed(2), c.MinimumAmount.StringFixed(2)))
	}
	if c.MaximumAmount != nil && subtotal.GreaterThan(*c.MaximumAmount) {
		return reject(ReasonMaximumAmountExceeded,
			fmt.Sprintf("cart subtotal %s exceeds the maximum %s", subtotal.StringFixed(2), c.MaximumAmount.StringFixed(2)))
	}
	if c.MinimumQuantity > 0 && cart.TotalQuantity(lines) < c.MinimumQuantity {
		return reject(ReasonMinimumQuantityNotMet,
			fmt.Sprintf("cart holds fewer than %d items", c.MinimumQuantity))
	}
	return nil
}
