package cart

import (
	"slices"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// Action is a cart transition. The set of actions is closed: every variant
// lives in this package and carries its own transition.
type Action interface {
	// Name identifies the action in logs and metrics.
	Name() string
	apply(c Cart) Cart
}

// Reduce returns the cart that results from applying a to c. The input cart
// is not modified.
func Reduce(c Cart, a Action) Cart {
	if a == nil {
		return c
	}
	return a.apply(c)
}

// AddItem adds one unit of Product. An existing line keeps its price and
// name and only gains quantity.
type AddItem struct {
	Product product.Product
}

func (AddItem) Name() string { return "add_item" }

func (a AddItem) apply(c Cart) Cart {
	lines := slices.Clone(c.lines)
	if i := c.index(a.Product.ID); i >= 0 {
		lines[i].Quantity++
		return Cart{lines: lines}
	}
	return Cart{lines: append(lines, Line{
		ProductID: a.Product.ID,
		Name:      a.Product.Name,
		Image:     a.Product.Image,
		Price:     a.Product.Price,
		Quantity:  1,
	})}
}

// RemoveItem deletes the line for ProductID. Removing an absent product is a
// no-op.
type RemoveItem struct {
	ProductID product.ID
}

func (RemoveItem) Name() string { return "remove_item" }

func (a RemoveItem) apply(c Cart) Cart {
	i := c.index(a.ProductID)
	if i < 0 {
		return c
	}
	return Cart{lines: slices.Delete(slices.Clone(c.lines), i, i+1)}
}

// SetQuantity sets the quantity of an existing line. Negative quantities are
// clamped to zero and zero removes the line.
type SetQuantity struct {
	ProductID product.ID
	Quantity  int
}

func (SetQuantity) Name() string { return "set_quantity" }

func (a SetQuantity) apply(c Cart) Cart {
	qty := max(a.Quantity, 0)
	if qty == 0 {
		return RemoveItem{ProductID: a.ProductID}.apply(c)
	}
	i := c.index(a.ProductID)
	if i < 0 {
		return c
	}
	lines := slices.Clone(c.lines)
	lines[i].Quantity = qty
	return Cart{lines: lines}
}

// ClearCart empties the cart.
type ClearCart struct{}

func (ClearCart) Name() string { return "clear_cart" }

func (ClearCart) apply(Cart) Cart { return Cart{} }

// LoadCart replaces the cart lines wholesale. It is used when restoring
// persisted state and never merges with the current cart.
type LoadCart struct {
	Lines []Line
}

func (LoadCart) Name() string { return "load_cart" }

func (a LoadCart) apply(Cart) Cart {
	return Cart{lines: sanitize(a.Lines)}
}
