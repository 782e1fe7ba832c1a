// Package catalog filters and sorts normalized products for display.
package catalog

import (
	"maps"
	"strings"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// AllCategories selects products from every category.
const AllCategories product.ID = "all"

// SortOrder enumerates product orderings.
type SortOrder string

const (
	// SortFeatured places featured products first and otherwise keeps input order.
	SortFeatured SortOrder = "featured"
	// SortPriceAsc orders by effective price, cheapest first.
	SortPriceAsc SortOrder = "price-asc"
	// SortPriceDesc orders by effective price, most expensive first.
	SortPriceDesc SortOrder = "price-desc"
)

// ParseSortOrder maps a query value to a SortOrder. Unrecognized values
// select SortFeatured.
func ParseSortOrder(s string) SortOrder {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "price-asc", "price_asc", "asc":
		return SortPriceAsc
	case "price-desc", "price_desc", "desc":
		return SortPriceDesc
	default:
		return SortFeatured
	}
}

// Criteria is the combined filter state applied to a product collection.
type Criteria struct {
	CategoryID product.ID
	// Dietary flags must all hold.
	Dietary []product.DietaryFlag
	// Attributes are scoped to CategoryID and reset when it changes.
	Attributes map[string]string
	Sort       SortOrder
}

// DefaultCriteria selects every product in featured-first order.
func DefaultCriteria() Criteria {
	return Criteria{
		CategoryID: AllCategories,
		Attributes: map[string]string{},
		Sort:       SortFeatured,
	}
}

// WithCategory returns a copy of c scoped to id. Attribute filters belong to
// the previous category, so they are cleared whenever the category changes.
func (c Criteria) WithCategory(id product.ID) Criteria {
	if id.IsZero() {
		id = AllCategories
	}
	out := c.clone()
	if !out.categoryID().Equal(id) {
		out.Attributes = map[string]string{}
	}
	out.CategoryID = id
	return out
}

// WithAttribute returns a copy of c requiring attribute key to equal value.
// An empty value removes the filter.
func (c Criteria) WithAttribute(key, value string) Criteria {
	out := c.clone()
	if out.Attributes == nil {
		out.Attributes = map[string]string{}
	}
	if value == "" {
		delete(out.Attributes, key)
	} else {
		out.Attributes[key] = value
	}
	return out
}

// WithDietary returns a copy of c with the flag required or dropped.
func (c Criteria) WithDietary(flag product.DietaryFlag, required bool) Criteria {
	out := c.clone()
	kept := out.Dietary[:0:0]
	for _, f := range out.Dietary {
		if f != flag {
			kept = append(kept, f)
		}
	}
	if required {
		kept = append(kept, flag)
	}
	out.Dietary = kept
	return out
}

// WithSort returns a copy of c with the given order.
func (c Criteria) WithSort(s SortOrder) Criteria {
	out := c.clone()
	out.Sort = s
	return out
}

func (c Criteria) categoryID() product.ID {
	if c.CategoryID.IsZero() {
		return AllCategories
	}
	return c.CategoryID
}

func (c Criteria) clone() Criteria {
	out := c
	out.Dietary = append([]product.DietaryFlag(nil), c.Dietary...)
	out.Attributes = maps.Clone(c.Attributes)
	return out
}
