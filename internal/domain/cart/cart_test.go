package cart

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

func newTestProduct(id string, price int64) product.Product {
	return product.Product{
		ID:    product.ID(id),
		Name:  "product " + id,
		Price: decimal.NewFromInt(price),
	}
}

// foldTotal recomputes the aggregates independently of Cart's methods.
func foldTotal(lines []Line) (decimal.Decimal, int) {
	total := decimal.Zero
	count := 0
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		count += l.Quantity
	}
	return total, count
}

func TestReduce_Scenario(t *testing.T) {
	p1 := newTestProduct("P1", 1000)
	p2 := newTestProduct("P2", 500)

	var c Cart
	c = Reduce(c, AddItem{Product: p1})
	c = Reduce(c, AddItem{Product: p2})
	c = Reduce(c, AddItem{Product: p1})

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, product.ID("P1"), lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, product.ID("P2"), lines[1].ProductID)
	assert.Equal(t, 1, lines[1].Quantity)
	assert.True(t, decimal.NewFromInt(2500).Equal(c.Total()), "total %s", c.Total())
	assert.Equal(t, 3, c.ItemCount())
}

func TestReduce_AddItemRepeated(t *testing.T) {
	p := newTestProduct("p", 7)

	for n := 1; n <= 25; n++ {
		var c Cart
		for range n {
			c = Reduce(c, AddItem{Product: p})
		}
		l, ok := c.Line("p")
		require.True(t, ok)
		assert.Equal(t, n, l.Quantity)
		assert.Equal(t, n, c.ItemCount())
		assert.Equal(t, 1, c.Len())
	}
}

func TestReduce_AddItemKeepsSnapshotPrice(t *testing.T) {
	c := Reduce(Cart{}, AddItem{Product: newTestProduct("p", 100)})

	repriced := newTestProduct("p", 80)
	repriced.Name = "renamed"
	c = Reduce(c, AddItem{Product: repriced})

	l, ok := c.Line("p")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(100).Equal(l.Price))
	assert.Equal(t, "product p", l.Name)
	assert.Equal(t, 2, l.Quantity)
}

func TestReduce_AddItemMatchesNumericIDs(t *testing.T) {
	c := Reduce(Cart{}, AddItem{Product: newTestProduct("7", 10)})
	c = Reduce(c, AddItem{Product: newTestProduct("7.0", 10)})

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, c.ItemCount())
}

func TestReduce_DistinctLargeNumericIDs(t *testing.T) {
	c := Reduce(Cart{}, AddItem{Product: newTestProduct("9007199254740993", 1000)})
	c = Reduce(c, AddItem{Product: newTestProduct("9007199254740992", 5)})

	assert.Equal(t, 2, c.Len())
	assert.True(t, decimal.NewFromInt(1005).Equal(c.Total()), "total %s", c.Total())

	c = Reduce(c, RemoveItem{ProductID: "9007199254740992"})
	require.Equal(t, 1, c.Len())
	assert.Equal(t, product.ID("9007199254740993"), c.Lines()[0].ProductID)

	c = Reduce(c, AddItem{Product: newTestProduct("1e2", 1)})
	c = Reduce(c, AddItem{Product: newTestProduct("100", 1)})
	assert.Equal(t, 3, c.Len())
}

func TestReduce_RemoveItemIdempotent(t *testing.T) {
	c := Reduce(Cart{}, AddItem{Product: newTestProduct("a", 10)})
	c = Reduce(c, AddItem{Product: newTestProduct("b", 20)})

	once := Reduce(c, RemoveItem{ProductID: "a"})
	twice := Reduce(once, RemoveItem{ProductID: "a"})

	assert.Equal(t, once.Lines(), twice.Lines())
	assert.Equal(t, 1, twice.Len())
	assert.True(t, decimal.NewFromInt(20).Equal(twice.Total()))
}

func TestReduce_RemoveItemDoesNotMutateInput(t *testing.T) {
	c := Reduce(Cart{}, AddItem{Product: newTestProduct("a", 10)})
	c = Reduce(c, AddItem{Product: newTestProduct("b", 20)})

	_ = Reduce(c, RemoveItem{ProductID: "a"})
	_ = Reduce(c, SetQuantity{ProductID: "b", Quantity: 9})

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[1].Quantity)
}

func TestReduce_SetQuantity(t *testing.T) {
	base := Reduce(Cart{}, AddItem{Product: newTestProduct("a", 10)})
	base = Reduce(base, AddItem{Product: newTestProduct("b", 20)})

	tests := []struct {
		name      string
		action    SetQuantity
		wantLines int
		wantCount int
	}{
		{name: "set positive", action: SetQuantity{ProductID: "a", Quantity: 4}, wantLines: 2, wantCount: 5},
		{name: "zero removes", action: SetQuantity{ProductID: "a", Quantity: 0}, wantLines: 1, wantCount: 1},
		{name: "negative clamps to zero", action: SetQuantity{ProductID: "b", Quantity: -3}, wantLines: 1, wantCount: 1},
		{name: "absent product is a no-op", action: SetQuantity{ProductID: "zz", Quantity: 3}, wantLines: 2, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Reduce(base, tt.action)
			assert.Equal(t, tt.wantLines, c.Len())
			assert.Equal(t, tt.wantCount, c.ItemCount())
		})
	}
}

func TestReduce_SetQuantityZeroEqualsRemove(t *testing.T) {
	c := Reduce(Cart{}, AddItem{Product: newTestProduct("a", 10)})
	c = Reduce(c, AddItem{Product: newTestProduct("b", 20)})
	c = Reduce(c, AddItem{Product: newTestProduct("c", 30)})

	for _, id := range []product.ID{"a", "b", "c", "missing"} {
		assert.Equal(t,
			Reduce(c, RemoveItem{ProductID: id}).Lines(),
			Reduce(c, SetQuantity{ProductID: id, Quantity: 0}).Lines(),
			"product %s", id,
		)
	}
}

func TestReduce_ClearCart(t *testing.T) {
	c := Reduce(Cart{}, AddItem{Product: newTestProduct("a", 10)})
	c = Reduce(c, ClearCart{})

	assert.True(t, c.IsEmpty())
	assert.True(t, decimal.Zero.Equal(c.Total()))
	assert.Equal(t, 0, c.ItemCount())
}

func TestReduce_LoadCartReplaces(t *testing.T) {
	c := Reduce(Cart{}, AddItem{Product: newTestProduct("old", 99)})

	c = Reduce(c, LoadCart{Lines: []Line{
		{ProductID: "a", Price: decimal.NewFromInt(10), Quantity: 2},
		{ProductID: "b", Price: decimal.NewFromInt(5), Quantity: 0},
		{ProductID: "a", Price: decimal.NewFromInt(12), Quantity: 1},
		{ProductID: "c", Price: decimal.NewFromInt(1), Quantity: 4},
	}})

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, product.ID("a"), lines[0].ProductID)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(lines[0].Price))
	assert.Equal(t, product.ID("c"), lines[1].ProductID)
	assert.True(t, decimal.NewFromInt(34).Equal(c.Total()))
	assert.Equal(t, 7, c.ItemCount())
}

func TestReduce_NilAction(t *testing.T) {
	c := Reduce(Cart{}, AddItem{Product: newTestProduct("a", 10)})
	assert.Equal(t, c.Lines(), Reduce(c, nil).Lines())
}

func TestReduce_TotalsAlwaysFold(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	catalog := []product.Product{
		newTestProduct("a", 3),
		newTestProduct("b", 1250),
		newTestProduct("c", 99),
		newTestProduct("d", 1),
	}

	var c Cart
	for step := range 2000 {
		p := catalog[rng.IntN(len(catalog))]

		var a Action
		switch rng.IntN(6) {
		case 0, 1:
			a = AddItem{Product: p}
		case 2:
			a = RemoveItem{ProductID: p.ID}
		case 3:
			a = SetQuantity{ProductID: p.ID, Quantity: rng.IntN(8) - 2}
		case 4:
			a = LoadCart{Lines: c.Lines()}
		default:
			if rng.IntN(10) == 0 {
				a = ClearCart{}
			} else {
				a = AddItem{Product: p}
			}
		}
		c = Reduce(c, a)

		wantTotal, wantCount := foldTotal(c.Lines())
		require.True(t, wantTotal.Equal(c.Total()), "step %d (%s)", step, a.Name())
		require.Equal(t, wantCount, c.ItemCount(), "step %d (%s)", step, a.Name())

		seen := make(map[product.ID]bool)
		for _, l := range c.Lines() {
			require.False(t, seen[l.ProductID], "duplicate line %s", l.ProductID)
			require.GreaterOrEqual(t, l.Quantity, 1)
			seen[l.ProductID] = true
		}
	}
}
