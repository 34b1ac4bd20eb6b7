package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Engine resolves a coupon code against the repository and evaluates it for
// a concrete order context. It is the read side of the coupon lifecycle;
// the write side (Redeem) runs inside the order-creation transaction.
type Engine struct {
	repo Repository
	now  func() time.Time
}

// NewEngine creates an Engine backed by the given repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

// Validate looks up the code, checks every applicability constraint against
// the order subtotal and the user's prior usage, and returns the coupon
// together with the discount it would grant. Nothing is mutated.
func (e *Engine) Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (*Coupon, decimal.Decimal, error) {
	c, err := e.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, decimal.Zero, err
	}

	priorUses := 0
	if c.UserUsageLimit > 0 && userID != "" {
		priorUses, err = e.repo.CountUserRedemptions(ctx, c.Code, userID)
		if err != nil {
			return nil, decimal.Zero, errors.Wrap(err, "count user redemptions")
		}
	}

	if err := Validate(c, subtotal, e.now(), priorUses); err != nil {
		return nil, decimal.Zero, err
	}

	return c, ComputeDiscount(c, subtotal), nil
}
