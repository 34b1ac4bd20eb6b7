package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-fulfillment/internal/domain/order"
)

// orderColumns is the canonical column list shared by every SELECT over the
// orders table. scanOrder depends on this exact ordering.
const orderColumns = `id, number, items, subtotal, tax, discount, total, status,
	payment_method, payment_status, address, latitude, longitude,
	customer_name, customer_email, customer_phone, customer_note, admin_note,
	coupon, coupon_code, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (id, number, items, subtotal, tax, discount, total,
		status, payment_method, payment_status, address, latitude, longitude,
		customer_name, customer_email, customer_phone, customer_note, admin_note,
		coupon, coupon_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		$17, $18, $19, $20, $21, $22)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	updateStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	insertAuditSQL = `INSERT INTO order_audit (order_id, from_status, to_status, actor)
		VALUES ($1, $2, $3, $4)`

	countLiveSQL = `SELECT COUNT(*) FROM orders`

	// Ties on created_at resolve to the lexically greatest id so the newest
	// order is deterministic.
	newestLiveSQL = `SELECT ` + orderColumns + ` FROM orders
		ORDER BY created_at DESC, id DESC LIMIT 1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. When the order carries a coupon snapshot the
// redemption row and usage-count increment commit in the same transaction,
// so a coupon can never be consumed by an order that failed to persist.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := insertOrder(ctx, tx, o); err != nil {
		return err
	}

	if o.Coupon != nil {
		userID := userKey(o.Customer.Email)
		if err := redeemCoupon(ctx, tx, o.Coupon.Code, o.ID, userID); err != nil {
			return errors.Wrap(err, "redeem coupon")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID fetches a live order. Returns order.ErrNotFound when absent.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus performs a compare-and-swap on the status column and writes
// the audit entry in the same transaction. A CAS miss is classified by a
// follow-up existence check: order.ErrNotFound when the row is gone,
// order.ErrStatusConflict when a concurrent writer changed the status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, actor string) (*order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	rows, err := tx.Query(ctx, updateStatusSQL, id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating status of order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("updating status of order %q: %w", id, err)
		}

		var exists bool
		if err := tx.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking order %q: %w", id, err)
		}
		if !exists {
			return nil, order.ErrNotFound
		}
		return nil, order.ErrStatusConflict
	}

	if _, err := tx.Exec(ctx, insertAuditSQL, id, string(from), string(to), actor); err != nil {
		return nil, fmt.Errorf("recording audit for order %q: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status update for order %q: %w", id, err)
	}
	return &o, nil
}

// CountLive returns the number of orders in the live store.
func (r *OrderRepository) CountLive(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, countLiveSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting live orders: %w", err)
	}
	return count, nil
}

// NewestLive returns the most recently created live order.
func (r *OrderRepository) NewestLive(ctx context.Context) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, newestLiveSQL)
	if err != nil {
		return nil, fmt.Errorf("fetching newest order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("fetching newest order: %w", err)
	}
	return &o, nil
}

// insertOrder writes one order row on the given querier.
func insertOrder(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	var couponJSON []byte
	couponCode := ""
	if o.Coupon != nil {
		couponJSON, err = json.Marshal(o.Coupon)
		if err != nil {
			return fmt.Errorf("marshaling coupon snapshot: %w", err)
		}
		couponCode = o.Coupon.Code
	}

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.Number, itemsJSON, o.Subtotal, o.Tax, o.Discount, o.Total,
		string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus),
		o.Address.Text, o.Address.Latitude, o.Address.Longitude,
		o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.CustomerNote, o.AdminNote,
		couponJSON, couponCode, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// scanOrder maps one row in orderColumns order to a domain order.
func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		couponJSON    []byte
		couponCode    string
		status        string
		paymentMethod string
		paymentStatus string
		createdAt     time.Time
		updatedAt     time.Time
	)
	err := row.Scan(
		&o.ID, &o.Number, &itemsJSON, &o.Subtotal, &o.Tax, &o.Discount, &o.Total,
		&status, &paymentMethod, &paymentStatus,
		&o.Address.Text, &o.Address.Latitude, &o.Address.Longitude,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&o.CustomerNote, &o.AdminNote,
		&couponJSON, &couponCode, &createdAt, &updatedAt,
	)
	_ = couponCode // denormalized for queries; the snapshot is authoritative
	if err != nil {
		return order.Order{}, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if len(couponJSON) > 0 {
		var snap order.CouponSnapshot
		if err := json.Unmarshal(couponJSON, &snap); err != nil {
			return order.Order{}, fmt.Errorf("unmarshaling coupon snapshot: %w", err)
		}
		o.Coupon = &snap
	}

	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	return o, nil
}
