package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when a coupon code does not resolve.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon's active flag is off.
	ErrInactive = errors.New("coupon is inactive")
	// ErrExpired is returned when now is past the coupon's validity window.
	ErrExpired = errors.New("coupon expired")
	// ErrNotYetValid is returned when the coupon's validity window has not opened.
	ErrNotYetValid = errors.New("coupon not yet valid")
	// ErrExhausted is returned when the total usage limit is reached.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrUserLimitReached is returned when the per-user usage limit is reached.
	ErrUserLimitReached = errors.New("coupon usage limit reached for user")
	// ErrBelowMinimum is returned when the order subtotal is below the
	// coupon's minimum order amount.
	ErrBelowMinimum = errors.New("order subtotal below coupon minimum")
)

// Coupon is a named discount rule. Zero values mean "unset" for the optional
// constraints: MinOrderAmount, MaxDiscount, UsageLimit and UserUsageLimit
// only apply when positive, and a nil ValidFrom/ValidUntil leaves that side
// of the window open.
type Coupon struct {
	Code           string
	Name           string
	Type           DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxDiscount    decimal.Decimal
	UsageLimit     int
	UserUsageLimit int
	UsedCount      int
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Active         bool
}

// NormalizeCode maps a user-supplied code to its canonical stored form.
// Codes are case-insensitive and stored upper-case.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and redemption of coupons.
type Repository interface {
	// FindByCode resolves a coupon by its case-insensitive code.
	// Returns ErrNotFound when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)

	// CountUserRedemptions returns how many orders the given user has
	// already redeemed this coupon against.
	CountUserRedemptions(ctx context.Context, code, userID string) (int, error)

	// Redeem records that orderID consumed the coupon and increments the
	// usage counter. It is idempotent per orderID: redeeming twice for the
	// same order does not double-increment. Returns ErrExhausted when the
	// usage limit is already consumed.
	Redeem(ctx context.Context, code, orderID, userID string) error
}
