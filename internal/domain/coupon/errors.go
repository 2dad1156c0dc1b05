package coupon

import "github.com/go-faster/errors"

// ErrNotFound is returned by repositories when no coupon matches a code.
var ErrNotFound = errors.New("coupon not found")

// Reason identifies why a coupon was rejected for a cart or customer.
type Reason string

const (
	// ReasonInvalidCoupon covers unknown, inactive, or out-of-window codes.
	ReasonInvalidCoupon Reason = "INVALID_COUPON"
	// ReasonUsageLimitExceeded means the global usage limit is exhausted.
	ReasonUsageLimitExceeded Reason = "USAGE_LIMIT_EXCEEDED"
	// ReasonCustomerUsageExceeded means the per-customer limit is exhausted.
	ReasonCustomerUsageExceeded Reason = "CUSTOMER_USAGE_EXCEEDED"
	// ReasonCustomerNotEligible means the customer fails the eligibility rule.
	ReasonCustomerNotEligible Reason = "CUSTOMER_NOT_ELIGIBLE"
	// ReasonMinimumAmountNotMet means the cart subtotal is below the minimum.
	ReasonMinimumAmountNotMet Reason = "MINIMUM_AMOUNT_NOT_MET"
	// ReasonMaximumAmountExceeded means the cart subtotal is above the maximum.
	ReasonMaximumAmountExceeded Reason = "MAXIMUM_AMOUNT_EXCEEDED"
	// ReasonMinimumQuantityNotMet means the cart holds too few items.
	ReasonMinimumQuantityNotMet Reason = "MINIMUM_QUANTITY_NOT_MET"
	// ReasonNoApplicableItems means no cart line falls under the coupon's scope.
	ReasonNoApplicableItems Reason = "NO_APPLICABLE_ITEMS"
	// ReasonValidationError covers malformed requests.
	ReasonValidationError Reason = "VALIDATION_ERROR"
)

// Rejection is a business-rule refusal. It is a value, not an error:
// store and infrastructure failures travel on the error return instead.
type Rejection struct {
	Reason  Reason
	Message string
}

func reject(r Reason, msg string) *Rejection {
	return &Rejection{Reason: r, Message: msg}
}
