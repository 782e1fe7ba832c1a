package catalog

import (
	"slices"
	"strings"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// Apply filters and sorts products according to c. Steps run in a fixed
// order: category, dietary, attributes, then sort. The input slice is never
// modified and every sort is stable with respect to the input order.
func Apply(products []product.Product, c Criteria) []product.Product {
	out := make([]product.Product, 0, len(products))
	for _, p := range products {
		if matchCategory(p, c) && matchDietary(p, c.Dietary) && matchAttributes(p, c.Attributes) {
			out = append(out, p)
		}
	}

	switch ParseSortOrder(string(c.Sort)) {
	case SortPriceAsc:
		slices.SortStableFunc(out, func(a, b product.Product) int {
			return a.Price.Cmp(b.Price)
		})
	case SortPriceDesc:
		slices.SortStableFunc(out, func(a, b product.Product) int {
			return b.Price.Cmp(a.Price)
		})
	default:
		slices.SortStableFunc(out, func(a, b product.Product) int {
			return featuredRank(a) - featuredRank(b)
		})
	}

	return out
}

func matchCategory(p product.Product, c Criteria) bool {
	id := c.categoryID()
	if id == AllCategories {
		return true
	}
	return p.CategoryID.Equal(id)
}

func matchDietary(p product.Product, flags []product.DietaryFlag) bool {
	for _, f := range flags {
		if !p.Dietary.Has(f) {
			return false
		}
	}
	return true
}

func matchAttributes(p product.Product, attrs map[string]string) bool {
	for k, want := range attrs {
		got, ok := p.Attributes[k]
		if !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

func featuredRank(p product.Product) int {
	if p.Featured {
		return 0
	}
	return 1
}
