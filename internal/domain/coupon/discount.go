package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ComputeDiscount calculates the discount an already-validated coupon grants
// on the given subtotal. The result is clamped so it can never exceed the
// subtotal and is rounded to 2 decimal places, half away from zero.
// The function is pure; an unknown discount type yields a zero discount.
func ComputeDiscount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal

	switch c.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, c.MaxDiscount)
		}
	case DiscountFixed:
		amount = c.Value
	default:
		return decimal.Zero
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}
