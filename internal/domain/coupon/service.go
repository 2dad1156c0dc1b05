package coupon

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/velstore/promo-engine/internal/domain/cart"
	"github.com/velstore/promo-engine/internal/domain/scope"
)

// Catalog resolves product category membership for scope checks.
type Catalog interface {
	// CategoriesFor returns the category IDs each product belongs to.
	CategoriesFor(ctx context.Context, productIDs []int64) (scope.CatalogIndex, error)
}

// UsageLedger performs the atomic redemption commit. TryApply must
// increment the coupon's use counter and insert the usage row as one
// atomic unit, refusing when a limit would be exceeded.
type UsageLedger interface {
	TryApply(ctx context.Context, u Usage) (uuid.UUID, *Rejection, error)
}

// ValidationResult is the outcome of a read-only preview.
type ValidationResult struct {
	Valid     bool
	Rejection *Rejection
	Coupon    *Coupon
	Discount  *Result
	// Reason is set on a valid result whose discount is zero because
	// no cart line fell under the coupon's scope.
	Reason Reason
}

// ApplyResult is the outcome of a checkout commit.
type ApplyResult struct {
	Coupon   *Coupon
	Discount Result
	EntryID  uuid.UUID
}

// EligibleCoupon pairs a coupon with the discount it would yield.
type EligibleCoupon struct {
	Coupon   *Coupon
	Discount Result
}

// Service sequences coupon lookup, eligibility, calculation, and the
// usage ledger for validate and apply requests.
type Service struct {
	repo      Repository
	catalog   Catalog
	ledger    UsageLedger
	evaluator *Evaluator
}

// NewService wires the orchestrator from its collaborators.
func NewService(repo Repository, catalog Catalog, ledger UsageLedger, evaluator *Evaluator) *Service {
	return &Service{repo: repo, catalog: catalog, ledger: ledger, evaluator: evaluator}
}

// Canonicalize normalizes a user-supplied code for lookup and storage.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate previews a coupon against an optional customer and cart. It
// never writes to the ledger and never consumes a usage slot.
func (s *Service) Validate(ctx context.Context, code string, customerID *int64, lines []cart.Line) (*ValidationResult, error) {
	c, rej, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if rej != nil {
		return &ValidationResult{Rejection: rej}, nil
	}

	if customerID != nil {
		r, err := s.evaluator.Evaluate(ctx, c, *customerID, lines)
		if err != nil {
			return nil, err
		}
		if r != nil {
			return &ValidationResult{Rejection: r, Coupon: c}, nil
		}
	} else {
		if r := s.evaluator.checkWindow(c); r != nil {
			return &ValidationResult{Rejection: r}, nil
		}
		if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
			return &ValidationResult{Rejection: reject(ReasonUsageLimitExceeded, "coupon usage limit reached")}, nil
		}
		if len(lines) > 0 {
			if r := s.evaluator.checkCart(c, lines); r != nil {
				return &ValidationResult{Rejection: r, Coupon: c}, nil
			}
		}
	}

	res := &ValidationResult{Valid: true, Coupon: c}
	if len(lines) > 0 {
		d, reason, err := s.compute(ctx, c, lines)
		if err != nil {
			return nil, err
		}
		res.Discount = &d
		res.Reason = reason
	}
	return res, nil
}

// Apply commits a redemption: it re-runs the full eligibility chain and
// then asks the ledger for the atomic reservation. The ledger remains
// the authority on usage limits under concurrency.
func (s *Service) Apply(ctx context.Context, code string, customerID int64, orderID *int64, lines []cart.Line) (*ApplyResult, *Rejection, error) {
	c, rej, err := s.load(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if rej != nil {
		return nil, rej, nil
	}

	if r, err := s.evaluator.Evaluate(ctx, c, customerID, lines); err != nil {
		return nil, nil, err
	} else if r != nil {
		return nil, r, nil
	}

	d, reason, err := s.compute(ctx, c, lines)
	if err != nil {
		return nil, nil, err
	}
	if reason == ReasonNoApplicableItems {
		return nil, reject(ReasonNoApplicableItems, "no cart items qualify for this coupon"), nil
	}

	subtotal := cart.Subtotal(lines)
	entryID, r, err := s.ledger.TryApply(ctx, Usage{
		CouponID:       c.ID,
		CustomerID:     customerID,
		OrderID:        orderID,
		DiscountAmount: d.Amount,
		SubtotalBefore: subtotal,
		SubtotalAfter:  subtotal.Sub(d.Amount),
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "apply coupon usage")
	}
	if r != nil {
		return nil, r, nil
	}
	return &ApplyResult{Coupon: c, Discount: d, EntryID: entryID}, nil, nil
}

// ListEligible returns every active coupon the customer could redeem
// for the cart, with the discount each would yield.
func (s *Service) ListEligible(ctx context.Context, customerID int64, lines []cart.Line) ([]EligibleCoupon, error) {
	coupons, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active coupons")
	}
	return s.filterEligible(ctx, coupons, customerID, lines)
}

// BestAutoApply picks the auto-apply coupon to attach to the cart:
// highest priority first, then largest discount.
func (s *Service) BestAutoApply(ctx context.Context, customerID int64, lines []cart.Line) (*EligibleCoupon, error) {
	coupons, err := s.repo.ListAutoApply(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list auto-apply coupons")
	}
	eligible, err := s.filterEligible(ctx, coupons, customerID, lines)
	if err != nil {
		return nil, err
	}

	var best *EligibleCoupon
	for i := range eligible {
		e := &eligible[i]
		if e.Discount.Amount.IsZero() && !e.Discount.FreeShipping {
			continue
		}
		if best == nil ||
			e.Coupon.Priority > best.Coupon.Priority ||
			(e.Coupon.Priority == best.Coupon.Priority && e.Discount.Amount.GreaterThan(best.Discount.Amount)) {
			best = e
		}
	}
	return best, nil
}

// GenerateCode produces a unique code using the repository as the
// uniqueness oracle.
func (s *Service) GenerateCode(ctx context.Context, spec GenerateSpec, gen *Generator) (string, error) {
	return gen.Generate(ctx, spec)
}

func (s *Service) load(ctx context.Context, code string) (*Coupon, *Rejection, error) {
	code = Canonicalize(code)
	if code == "" {
		return nil, reject(ReasonValidationError, "coupon code is required"), nil
	}
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, reject(ReasonInvalidCoupon, "coupon code is not valid"), nil
		}
		return nil, nil, errors.Wrap(err, "lookup coupon")
	}
	return c, nil, nil
}

func (s *Service) compute(ctx context.Context, c *Coupon, lines []cart.Line) (Result, Reason, error) {
	index, err := s.index(ctx, c, lines)
	if err != nil {
		return Result{}, "", err
	}
	d := Compute(c, lines, index)
	if len(c.Scope.FilterLines(lines, index)) == 0 {
		return d, ReasonNoApplicableItems, nil
	}
	return d, "", nil
}

// index loads category membership only when the scope needs it.
func (s *Service) index(ctx context.Context, c *Coupon, lines []cart.Line) (scope.CatalogIndex, error) {
	if c.Scope.Mode == scope.All || len(c.Scope.Categories) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	index, err := s.catalog.CategoriesFor(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load product categories")
	}
	return index, nil
}

func (s *Service) filterEligible(ctx context.Context, coupons []*Coupon, customerID int64, lines []cart.Line) ([]EligibleCoupon, error) {
	out := make([]EligibleCoupon, 0, len(coupons))
	for _, c := range coupons {
		r, err := s.evaluator.Evaluate(ctx, c, customerID, lines)
		if err != nil {
			return nil, err
		}
		if r != nil {
			continue
		}
		d, reason, err := s.compute(ctx, c, lines)
		if err != nil {
			return nil, err
		}
		if reason == ReasonNoApplicableItems {
			continue
		}
		out = append(out, EligibleCoupon{Coupon: c, Discount: d})
	}
	return out, nil
}
