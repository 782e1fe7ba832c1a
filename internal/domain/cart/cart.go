// Package cart implements the shopping cart as a reducer over immutable cart
// values, an observable container around it, and its persistence.
package cart

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// Line is one cart entry. Price and Name are snapshots taken when the line
// was created.
type Line struct {
	ProductID product.ID
	Name      string
	Image     string
	Price     decimal.Decimal
	Quantity  int
}

// Subtotal returns Price * Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered list of lines with at most one line per product. The
// zero value is an empty cart. Totals are always folded from the lines.
type Cart struct {
	lines []Line
}

// Lines returns a copy of the cart lines in insertion order.
func (c Cart) Lines() []Line {
	return slices.Clone(c.lines)
}

// Len returns the number of lines.
func (c Cart) Len() int { return len(c.lines) }

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Line returns the line for id.
func (c Cart) Line(id product.ID) (Line, bool) {
	if i := c.index(id); i >= 0 {
		return c.lines[i], true
	}
	return Line{}, false
}

// Total returns the sum of price * quantity over all lines.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount returns the sum of quantities over all lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

func (c Cart) index(id product.ID) int {
	return slices.IndexFunc(c.lines, func(l Line) bool {
		return l.ProductID.Equal(id)
	})
}

// sanitize drops lines with quantity below one and merges duplicate product
// ids into their first occurrence.
func sanitize(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		if i := slices.IndexFunc(out, func(o Line) bool { return o.ProductID.Equal(l.ProductID) }); i >= 0 {
			out[i].Quantity += l.Quantity
			continue
		}
		out = append(out, l)
	}
	return out
}
