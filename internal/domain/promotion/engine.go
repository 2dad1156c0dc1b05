package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velstore/promo-engine/internal/domain/cart"
	"github.com/velstore/promo-engine/internal/domain/scope"
)

var hundred = decimal.NewFromInt(100)

// Catalog resolves product category membership for scope checks.
type Catalog interface {
	CategoriesFor(ctx context.Context, productIDs []int64) (scope.CatalogIndex, error)
}

// AppliedKind distinguishes the promotion sources in a breakdown.
type AppliedKind string

const (
	// KindBulkRule marks a contribution from a tiered bulk rule.
	KindBulkRule AppliedKind = "bulk_rule"
	// KindFlashSale marks a contribution from a flash sale.
	KindFlashSale AppliedKind = "flash_sale"
)

// Applied is one promotion's contribution to the cart discount.
type Applied struct {
	Kind            AppliedKind
	ID              int64
	Name            string
	DiscountPercent decimal.Decimal
	Amount          decimal.Decimal
}

// AutoDiscount is the combined result of all automatic promotions.
type AutoDiscount struct {
	Amount  decimal.Decimal
	Applied []Applied
}

// Engine computes automatic discounts from bulk rules and flash sales.
// A single malformed rule is skipped and logged, never fatal to the
// cart pricing.
type Engine struct {
	repo    Repository
	catalog Catalog
	now     func() time.Time
}

// NewEngine creates an Engine backed by the given repository and catalog.
func NewEngine(repo Repository, catalog Catalog) *Engine {
	return &Engine{repo: repo, catalog: catalog, now: time.Now}
}

// ComputeAutoDiscount evaluates every active bulk rule and running flash
// sale against the cart. Stackable rule contributions sum; a non-stackable
// rule competes against that sum and the larger side wins. Flash sales
// always stack, so they join whichever rule outcome is kept.
func (e *Engine) ComputeAutoDiscount(ctx context.Context, lines []cart.Line) (AutoDiscount, error) {
	index, err := e.loadIndex(ctx, lines)
	if err != nil {
		return AutoDiscount{}, err
	}

	rules, err := e.repo.ListActiveRules(ctx)
	if err != nil {
		return AutoDiscount{}, errors.Wrap(err, "list bulk rules")
	}
	sales, err := e.repo.ListFlashSales(ctx, e.now())
	if err != nil {
		return AutoDiscount{}, errors.Wrap(err, "list flash sales")
	}

	ruleSum := decimal.Zero
	var ruleApplied []Applied
	var bestSolo *Applied

	for _, r := range rules {
		a, ok := e.applyRule(ctx, r, lines, index)
		if !ok {
			continue
		}
		if r.Stackable {
			ruleSum = ruleSum.Add(a.Amount)
			ruleApplied = append(ruleApplied, a)
		} else if bestSolo == nil || a.Amount.GreaterThan(bestSolo.Amount) {
			bestSolo = &a
		}
	}

	if bestSolo != nil && bestSolo.Amount.GreaterThan(ruleSum) {
		ruleSum = bestSolo.Amount
		ruleApplied = []Applied{*bestSolo}
	}

	now := e.now()
	total := ruleSum
	applied := ruleApplied
	for _, f := range sales {
		if !f.Running(now) {
			continue
		}
		a, ok := applySale(f, lines, index)
		if !ok {
			continue
		}
		total = total.Add(a.Amount)
		applied = append(applied, a)
	}

	return AutoDiscount{Amount: total, Applied: applied}, nil
}

// applyRule resolves the rule's tier for the cart and returns its
// contribution. Malformed tier data disqualifies the rule, not the cart.
func (e *Engine) applyRule(ctx context.Context, r *BulkRule, lines []cart.Line, index scope.CatalogIndex) (Applied, bool) {
	if err := validateRule(r); err != nil {
		zctx.From(ctx).Warn("Skipping malformed bulk rule",
			zap.Int64("rule_id", r.ID),
			zap.String("rule_name", r.Name),
			zap.Error(err))
		return Applied{}, false
	}

	scoped := r.Scope.FilterLines(lines, index)
	if len(scoped) == 0 {
		return Applied{}, false
	}
	subtotal := cart.Subtotal(scoped)

	var metric decimal.Decimal
	if r.RuleType == QuantityBased {
		metric = decimal.NewFromInt(int64(cart.TotalQuantity(scoped)))
	} else {
		metric = subtotal
	}

	tier, ok := ResolveTier(r.Tiers, metric)
	if !ok {
		return Applied{}, false
	}
	amount := subtotal.Mul(tier.DiscountPercent).Div(hundred).Round(2)
	if amount.IsZero() {
		return Applied{}, false
	}
	return Applied{
		Kind:            KindBulkRule,
		ID:              r.ID,
		Name:            r.Name,
		DiscountPercent: tier.DiscountPercent,
		Amount:          amount,
	}, true
}

func applySale(f *FlashSale, lines []cart.Line, index scope.CatalogIndex) (Applied, bool) {
	scoped := f.Scope.FilterLines(lines, index)
	if len(scoped) == 0 {
		return Applied{}, false
	}
	subtotal := cart.Subtotal(scoped)

	a := Applied{Kind: KindFlashSale, ID: f.ID, Name: f.Name}
	switch f.DiscountType {
	case FlashPercentage:
		a.DiscountPercent = f.Value
		a.Amount = subtotal.Mul(f.Value).Div(hundred).Round(2)
		if f.MaxDiscount != nil && a.Amount.GreaterThan(*f.MaxDiscount) {
			a.Amount = *f.MaxDiscount
		}
	case FlashFixed:
		a.Amount = f.Value.Round(2)
		if a.Amount.GreaterThan(subtotal) {
			a.Amount = subtotal
		}
	}
	if a.Amount.IsZero() {
		return Applied{}, false
	}
	return a, true
}

func validateRule(r *BulkRule) error {
	if len(r.Tiers) == 0 {
		return errors.New("rule has no tiers")
	}
	for _, t := range r.Tiers {
		if t.Threshold.IsNegative() {
			return errors.Errorf("negative tier threshold %s", t.Threshold)
		}
		if t.DiscountPercent.IsNegative() || t.DiscountPercent.GreaterThan(hundred) {
			return errors.Errorf("tier discount percent %s out of range", t.DiscountPercent)
		}
	}
	return nil
}

func (e *Engine) loadIndex(ctx context.Context, lines []cart.Line) (scope.CatalogIndex, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	index, err := e.catalog.CategoriesFor(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load product categories")
	}
	return index, nil
}
