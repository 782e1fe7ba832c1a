package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/cart"
)

var hundred = decimal.NewFromInt(100)

// Apply computes the discount rule grants on c. The amount never exceeds the
// cart total and is rounded to two decimal places.
func Apply(rule *Rule, c cart.Cart) (Discount, error) {
	if rule.MinItems > 0 && c.ItemCount() < rule.MinItems {
		return Discount{}, ErrInvalidCoupon
	}

	subtotal := c.Total()

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
	case DiscountFixed:
		amount = rule.Value
	case DiscountFreeLowest:
		amount = lowestUnitPrice(c.Lines())
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	if rule.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, rule.MaxDiscount)
	}
	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Discount{
		Code:        rule.Code,
		Amount:      amount.Round(2),
		Description: rule.Description,
	}, nil
}

func lowestUnitPrice(lines []cart.Line) decimal.Decimal {
	if len(lines) == 0 {
		return decimal.Zero
	}
	lowest := lines[0].Price
	for _, l := range lines[1:] {
		if l.Price.LessThan(lowest) {
			lowest = l.Price
		}
	}
	return lowest
}
