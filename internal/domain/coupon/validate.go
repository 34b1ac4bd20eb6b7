package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Validate checks whether c is applicable to an order with the given
// subtotal at the given time, for a user who has already redeemed it
// userPriorUses times. Checks run in a fixed order and short-circuit on the
// first failure. Validation never mutates the coupon.
func Validate(c *Coupon, subtotal decimal.Decimal, now time.Time, userPriorUses int) error {
	if !c.Active {
		return ErrInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrNotYetValid
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return ErrExpired
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return ErrExhausted
	}
	if c.UserUsageLimit > 0 && userPriorUses >= c.UserUsageLimit {
		return ErrUserLimitReached
	}
	if c.MinOrderAmount.IsPositive() && subtotal.LessThan(c.MinOrderAmount) {
		return ErrBelowMinimum
	}
	return nil
}
