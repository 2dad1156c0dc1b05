package promotion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestResolveTier(t *testing.T) {
	tiers := []Tier{
		{Threshold: dec("10"), DiscountPercent: dec("5")},
		{Threshold: dec("50"), DiscountPercent: dec("10")},
		{Threshold: dec("100"), DiscountPercent: dec("15")},
	}

	tests := []struct {
		name        string
		metric      decimal.Decimal
		wantPercent decimal.Decimal
		wantMatch   bool
	}{
		{"below all thresholds", dec("9"), decimal.Decimal{}, false},
		{"exactly the lowest threshold", dec("10"), dec("5"), true},
		{"between tiers", dec("75"), dec("10"), true},
		{"exactly the top threshold", dec("100"), dec("15"), true},
		{"far above the top threshold", dec("10000"), dec("15"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, ok := ResolveTier(tiers, tt.metric)
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				assert.True(t, tt.wantPercent.Equal(tier.DiscountPercent), "got %s", tier.DiscountPercent)
			}
		})
	}
}

func TestResolveTier_Empty(t *testing.T) {
	_, ok := ResolveTier(nil, dec("100"))
	assert.False(t, ok)
}

func TestResolveTier_DuplicateThresholds(t *testing.T) {
	// First tier after the stable descending sort wins.
	tiers := []Tier{
		{Threshold: dec("50"), DiscountPercent: dec("10")},
		{Threshold: dec("50"), DiscountPercent: dec("20")},
	}

	tier, ok := ResolveTier(tiers, dec("60"))
	require.True(t, ok)
	assert.True(t, dec("10").Equal(tier.DiscountPercent), "got %s", tier.DiscountPercent)
}

func TestResolveTier_InputOrderIndependent(t *testing.T) {
	shuffled := []Tier{
		{Threshold: dec("100"), DiscountPercent: dec("15")},
		{Threshold: dec("10"), DiscountPercent: dec("5")},
		{Threshold: dec("50"), DiscountPercent: dec("10")},
	}

	tier, ok := ResolveTier(shuffled, dec("55"))
	require.True(t, ok)
	assert.True(t, dec("10").Equal(tier.DiscountPercent))
}
