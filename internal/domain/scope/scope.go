// Package scope implements product/category applicability restrictions
// shared by coupons, bulk discount rules, and flash sales.
package scope

import "github.com/velstore/promo-engine/internal/domain/cart"

// Mode selects how the product and category sets are interpreted.
type Mode string

const (
	// All applies to every product; the sets are ignored.
	All Mode = "all"
	// IncludeOnly applies only to products that match the sets.
	IncludeOnly Mode = "include"
	// ExcludeOnly applies to every product except those that match the sets.
	ExcludeOnly Mode = "exclude"
)

// Scope is an applicability restriction. Categories must already be
// expanded to a flat set: subcategory cascade is resolved by the storage
// layer before a Scope is constructed.
type Scope struct {
	Mode       Mode
	Products   map[int64]struct{}
	Categories map[int64]struct{}
}

// Everything returns an unrestricted scope.
func Everything() Scope {
	return Scope{Mode: All}
}

// CatalogIndex maps a product ID to the IDs of the categories it belongs
// to. Missing products are treated as belonging to no category.
type CatalogIndex map[int64][]int64

// matches reports whether the line's product or any of its categories is
// named by the scope's sets.
func (s Scope) matches(line cart.Line, categories []int64) bool {
	if _, ok := s.Products[line.ProductID]; ok {
		return true
	}
	for _, c := range categories {
		if _, ok := s.Categories[c]; ok {
			return true
		}
	}
	return false
}

// Qualifies reports whether the line falls under the scope.
func (s Scope) Qualifies(line cart.Line, categories []int64) bool {
	switch s.Mode {
	case IncludeOnly:
		return s.matches(line, categories)
	case ExcludeOnly:
		return !s.matches(line, categories)
	default:
		return true
	}
}

// FilterLines returns the lines that qualify under the scope, preserving
// their order.
func (s Scope) FilterLines(lines []cart.Line, index CatalogIndex) []cart.Line {
	if s.Mode == All {
		return lines
	}
	out := make([]cart.Line, 0, len(lines))
	for _, l := range lines {
		if s.Qualifies(l, index[l.ProductID]) {
			out = append(out, l)
		}
	}
	return out
}
