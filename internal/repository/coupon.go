package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-fulfillment/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, name, discount_type, value, min_order_amount,
		max_discount, usage_limit, user_usage_limit, used_count,
		valid_from, valid_until, active
		FROM coupons WHERE code = UPPER($1)`

	countUserRedemptionsSQL = `SELECT COUNT(*) FROM coupon_redemptions
		WHERE coupon_code = $1 AND user_id = $2`

	insertRedemptionSQL = `INSERT INTO coupon_redemptions (coupon_code, order_id, user_id)
		VALUES ($1, $2, $3) ON CONFLICT (coupon_code, order_id) DO NOTHING`

	// The increment is guarded by the usage limit in the same statement, so
	// concurrent redeemers can never push used_count past the limit.
	incrementUsedCountSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit = 0 OR used_count < usage_limit)`

	insertCouponSQL = `INSERT INTO coupons (code, name, discount_type, value,
		min_order_amount, max_discount, usage_limit, user_usage_limit,
		valid_from, valid_until, active)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its case-insensitive code.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountUserRedemptions returns how many orders the user has redeemed the
// coupon against.
func (r *CouponRepository) CountUserRedemptions(ctx context.Context, code, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countUserRedemptionsSQL, code, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting redemptions of %q: %w", code, err)
	}
	return count, nil
}

// Redeem records the coupon consumption for orderID in its own transaction.
// The order-creation path uses the same redeemCoupon helper inside the
// order transaction instead.
func (r *CouponRepository) Redeem(ctx context.Context, code, orderID, userID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin redeem: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := redeemCoupon(ctx, tx, code, orderID, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Insert creates a coupon row, ignoring duplicates. Used by the seed and
// import CLIs.
func (r *CouponRepository) Insert(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, insertCouponSQL,
		c.Code, c.Name, string(c.Type), c.Value, c.MinOrderAmount, c.MaxDiscount,
		c.UsageLimit, c.UserUsageLimit, c.ValidFrom, c.ValidUntil, c.Active,
	)
	if err != nil {
		return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// redeemCoupon is the idempotent redemption primitive. The redemption row is
// the idempotency anchor: the usage counter only moves when this order had
// not consumed the coupon before, and only while the usage limit holds.
func redeemCoupon(ctx context.Context, tx pgx.Tx, code, orderID, userID string) error {
	tag, err := tx.Exec(ctx, insertRedemptionSQL, code, orderID, userID)
	if err != nil {
		return fmt.Errorf("recording redemption of %q by order %q: %w", code, orderID, err)
	}
	if tag.RowsAffected() == 0 {
		// Already redeemed by this order; nothing to increment.
		return nil
	}

	tag, err = tx.Exec(ctx, incrementUsedCountSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing used count of %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrExhausted
	}
	return nil
}

// userKey normalizes a customer email into the per-user redemption key.
func userKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		validFrom    *time.Time
		validUntil   *time.Time
	)
	err := row.Scan(
		&c.Code, &c.Name, &discountType, &c.Value, &c.MinOrderAmount,
		&c.MaxDiscount, &c.UsageLimit, &c.UserUsageLimit, &c.UsedCount,
		&validFrom, &validUntil, &c.Active,
	)
	c.Type = coupon.DiscountType(discountType)
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	return c, err
}
