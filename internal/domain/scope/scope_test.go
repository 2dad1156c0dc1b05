package scope

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/velstore/promo-engine/internal/domain/cart"
)

func line(productID int64) cart.Line {
	return cart.Line{ProductID: productID, UnitPrice: decimal.NewFromInt(10), Quantity: 1}
}

func TestScope_Qualifies(t *testing.T) {
	tests := []struct {
		name       string
		scope      Scope
		line       cart.Line
		categories []int64
		want       bool
	}{
		{
			name:  "all mode accepts anything",
			scope: Everything(),
			line:  line(1),
			want:  true,
		},
		{
			name: "include by product",
			scope: Scope{
				Mode:     IncludeOnly,
				Products: map[int64]struct{}{1: {}},
			},
			line: line(1),
			want: true,
		},
		{
			name: "include misses other products",
			scope: Scope{
				Mode:     IncludeOnly,
				Products: map[int64]struct{}{1: {}},
			},
			line: line(2),
			want: false,
		},
		{
			name: "include by category",
			scope: Scope{
				Mode:       IncludeOnly,
				Categories: map[int64]struct{}{30: {}},
			},
			line:       line(2),
			categories: []int64{30, 31},
			want:       true,
		},
		{
			name: "exclude by product",
			scope: Scope{
				Mode:     ExcludeOnly,
				Products: map[int64]struct{}{1: {}},
			},
			line: line(1),
			want: false,
		},
		{
			name: "exclude passes unmatched lines",
			scope: Scope{
				Mode:     ExcludeOnly,
				Products: map[int64]struct{}{1: {}},
			},
			line: line(2),
			want: true,
		},
		{
			name: "exclude by category",
			scope: Scope{
				Mode:       ExcludeOnly,
				Categories: map[int64]struct{}{30: {}},
			},
			line:       line(2),
			categories: []int64{30},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Qualifies(tt.line, tt.categories))
		})
	}
}

func TestScope_FilterLines(t *testing.T) {
	s := Scope{
		Mode:       IncludeOnly,
		Products:   map[int64]struct{}{1: {}},
		Categories: map[int64]struct{}{30: {}},
	}
	index := CatalogIndex{
		2: {30},
		3: {40},
	}
	lines := []cart.Line{line(1), line(2), line(3)}

	got := s.FilterLines(lines, index)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ProductID)
	assert.Equal(t, int64(2), got[1].ProductID)
}

func TestScope_FilterLinesAllModeReturnsInput(t *testing.T) {
	lines := []cart.Line{line(1), line(2)}
	got := Everything().FilterLines(lines, nil)
	assert.Equal(t, lines, got)
}
