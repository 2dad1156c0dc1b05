package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velstore/promo-engine/internal/domain/cart"
	"github.com/velstore/promo-engine/internal/domain/scope"
)

type mockPromoRepo struct {
	rules []*BulkRule
	sales []*FlashSale
}

func (m *mockPromoRepo) ListActiveRules(_ context.Context) ([]*BulkRule, error) {
	return m.rules, nil
}

func (m *mockPromoRepo) ListFlashSales(_ context.Context, _ time.Time) ([]*FlashSale, error) {
	return m.sales, nil
}

type mockPromoCatalog struct {
	index scope.CatalogIndex
}

func (m *mockPromoCatalog) CategoriesFor(_ context.Context, _ []int64) (scope.CatalogIndex, error) {
	return m.index, nil
}

func intPtr(v int) *int { return &v }

func newTestEngine(repo *mockPromoRepo, now time.Time) *Engine {
	e := NewEngine(repo, &mockPromoCatalog{})
	e.now = func() time.Time { return now }
	return e
}

func quantityRule(id int64, stackable bool, tiers ...Tier) *BulkRule {
	return &BulkRule{
		ID:        id,
		Name:      "bulk",
		RuleType:  QuantityBased,
		Tiers:     tiers,
		Scope:     scope.Everything(),
		Stackable: stackable,
		Active:    true,
	}
}

func TestEngine_QuantityRule(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockPromoRepo{
		rules: []*BulkRule{
			quantityRule(1, true, Tier{Threshold: dec("5"), DiscountPercent: dec("10")}),
		},
	}
	e := newTestEngine(repo, now)

	lines := []cart.Line{
		{ProductID: 1, UnitPrice: dec("20"), Quantity: 6},
	}

	got, err := e.ComputeAutoDiscount(context.Background(), lines)
	require.NoError(t, err)
	// 120 * 10% = 12.
	assert.True(t, dec("12").Equal(got.Amount), "got %s", got.Amount)
	require.Len(t, got.Applied, 1)
	assert.Equal(t, KindBulkRule, got.Applied[0].Kind)
}

func TestEngine_AmountRuleBelowThreshold(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockPromoRepo{
		rules: []*BulkRule{
			{
				ID:        1,
				Name:      "spend more",
				RuleType:  AmountBased,
				Tiers:     []Tier{{Threshold: dec("1000"), DiscountPercent: dec("10")}},
				Scope:     scope.Everything(),
				Stackable: true,
				Active:    true,
			},
		},
	}
	e := newTestEngine(repo, now)

	lines := []cart.Line{
		{ProductID: 1, UnitPrice: dec("100"), Quantity: 2},
	}

	got, err := e.ComputeAutoDiscount(context.Background(), lines)
	require.NoError(t, err)
	assert.True(t, got.Amount.IsZero())
	assert.Empty(t, got.Applied)
}

func TestEngine_StackableRulesSum(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockPromoRepo{
		rules: []*BulkRule{
			quantityRule(1, true, Tier{Threshold: dec("1"), DiscountPercent: dec("5")}),
			quantityRule(2, true, Tier{Threshold: dec("1"), DiscountPercent: dec("10")}),
		},
	}
	e := newTestEngine(repo, now)

	lines := []cart.Line{
		{ProductID: 1, UnitPrice: dec("100"), Quantity: 1},
	}

	got, err := e.ComputeAutoDiscount(context.Background(), lines)
	require.NoError(t, err)
	assert.True(t, dec("15").Equal(got.Amount), "got %s", got.Amount)
	assert.Len(t, got.Applied, 2)
}

func TestEngine_NonStackableWinsWhenLarger(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockPromoRepo{
		rules: []*BulkRule{
			quantityRule(1, true, Tier{Threshold: dec("1"), DiscountPercent: dec("5")}),
			quantityRule(2, false, Tier{Threshold: dec("1"), DiscountPercent: dec("25")}),
		},
	}
	e := newTestEngine(repo, now)

	lines := []cart.Line{
		{ProductID: 1, UnitPrice: dec("100"), Quantity: 1},
	}

	got, err := e.ComputeAutoDiscount(context.Background(), lines)
	require.NoError(t, err)
	assert.True(t, dec("25").Equal(got.Amount), "got %s", got.Amount)
	require.Len(t, got.Applied, 1)
	assert.Equal(t, int64(2), got.Applied[0].ID)
}

func TestEngine_FlashSaleStacksWithNonStackableRule(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockPromoRepo{
		rules: []*BulkRule{
			quantityRule(1, true, Tier{Threshold: dec("1"), DiscountPercent: dec("5")}),
			quantityRule(2, false, Tier{Threshold: dec("1"), DiscountPercent: dec("25")}),
		},
		sales: []*FlashSale{
			{
				ID:           7,
				Name:         "midsummer",
				StartsAt:     now.Add(-time.Hour),
				EndsAt:       now.Add(time.Hour),
				DiscountType: FlashPercentage,
				Value:        dec("10"),
				Scope:        scope.Everything(),
				Active:       true,
			},
		},
	}
	e := newTestEngine(repo, now)

	lines := []cart.Line{
		{ProductID: 1, UnitPrice: dec("100"), Quantity: 1},
	}

	// The non-stackable rule (25) beats the stackable one (5); the flash
	// sale (10) joins the winner instead of being discarded with the loser.
	got, err := e.ComputeAutoDiscount(context.Background(), lines)
	require.NoError(t, err)
	assert.True(t, dec("35").Equal(got.Amount), "got %s", got.Amount)
	require.Len(t, got.Applied, 2)
	assert.Equal(t, KindBulkRule, got.Applied[0].Kind)
	assert.Equal(t, int64(2), got.Applied[0].ID)
	assert.Equal(t, KindFlashSale, got.Applied[1].Kind)
}

func TestEngine_MalformedRuleIsSkipped(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockPromoRepo{
		rules: []*BulkRule{
			quantityRule(1, true), // no tiers
			quantityRule(2, true, Tier{Threshold: dec("-5"), DiscountPercent: dec("10")}),
			quantityRule(3, true, Tier{Threshold: dec("1"), DiscountPercent: dec("10")}),
		},
	}
	e := newTestEngine(repo, now)

	lines := []cart.Line{
		{ProductID: 1, UnitPrice: dec("100"), Quantity: 1},
	}

	got, err := e.ComputeAutoDiscount(context.Background(), lines)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(got.Amount), "got %s", got.Amount)
	require.Len(t, got.Applied, 1)
	assert.Equal(t, int64(3), got.Applied[0].ID)
}

func TestEngine_FlashSaleWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	sale := func(start, end time.Time) *FlashSale {
		return &FlashSale{
			ID:           1,
			Name:         "midsummer",
			StartsAt:     start,
			EndsAt:       end,
			DiscountType: FlashPercentage,
			Value:        dec("20"),
			Scope:        scope.Everything(),
			Active:       true,
		}
	}

	lines := []cart.Line{
		{ProductID: 1, UnitPrice: dec("100"), Quantity: 1},
	}

	t.Run("running sale applies", func(t *testing.T) {
		repo := &mockPromoRepo{sales: []*FlashSale{sale(now.Add(-time.Hour), now.Add(time.Hour))}}
		got, err := newTestEngine(repo, now).ComputeAutoDiscount(context.Background(), lines)
		require.NoError(t, err)
		assert.True(t, dec("20").Equal(got.Amount), "got %s", got.Amount)
	})

	t.Run("ended sale is ignored", func(t *testing.T) {
		repo := &mockPromoRepo{sales: []*FlashSale{sale(now.Add(-2*time.Hour), now.Add(-time.Hour))}}
		got, err := newTestEngine(repo, now).ComputeAutoDiscount(context.Background(), lines)
		require.NoError(t, err)
		assert.True(t, got.Amount.IsZero())
	})

	t.Run("exhausted sale is ignored", func(t *testing.T) {
		s := sale(now.Add(-time.Hour), now.Add(time.Hour))
		s.UsageLimit = intPtr(10)
		s.UsedCount = 10
		repo := &mockPromoRepo{sales: []*FlashSale{s}}
		got, err := newTestEngine(repo, now).ComputeAutoDiscount(context.Background(), lines)
		require.NoError(t, err)
		assert.True(t, got.Amount.IsZero())
	})
}

func TestEngine_FlashFixedCappedAtSubtotal(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockPromoRepo{
		sales: []*FlashSale{
			{
				ID:           1,
				Name:         "clearance",
				StartsAt:     now.Add(-time.Hour),
				EndsAt:       now.Add(time.Hour),
				DiscountType: FlashFixed,
				Value:        dec("500"),
				Scope:        scope.Everything(),
				Active:       true,
			},
		},
	}
	e := newTestEngine(repo, now)

	lines := []cart.Line{
		{ProductID: 1, UnitPrice: dec("300"), Quantity: 1},
	}

	got, err := e.ComputeAutoDiscount(context.Background(), lines)
	require.NoError(t, err)
	assert.True(t, dec("300").Equal(got.Amount), "got %s", got.Amount)
}
