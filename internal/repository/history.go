package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-fulfillment/internal/domain/archive"
	"github.com/xenking/order-fulfillment/internal/domain/order"
)

const (
	getOrdersByIDsSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = ANY($1)`

	// Copies the live row verbatim and stamps provenance. The SELECT source
	// guarantees history carries exactly what the live store held at move
	// time, including original_created_at.
	copyToHistorySQL = `INSERT INTO order_history (id, number, items, subtotal, tax,
		discount, total, status, payment_method, payment_status, address,
		latitude, longitude, customer_name, customer_email, customer_phone,
		customer_note, admin_note, coupon, coupon_code, created_at, updated_at,
		moved_to_history_at, moved_by, original_created_at)
		SELECT id, number, items, subtotal, tax, discount, total, status,
		payment_method, payment_status, address, latitude, longitude,
		customer_name, customer_email, customer_phone, customer_note, admin_note,
		coupon, coupon_code, created_at, updated_at, $2, $3, created_at
		FROM orders WHERE id = $1`

	deleteLiveSQL = `DELETE FROM orders WHERE id = $1`

	listTerminalBeforeSQL = `SELECT id FROM orders
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at`

	historyColumns = `id, number, items, subtotal, tax, discount, total, status,
		payment_method, payment_status, address, latitude, longitude,
		customer_name, customer_email, customer_phone, customer_note, admin_note,
		coupon, coupon_code, created_at, updated_at,
		moved_to_history_at, moved_by, original_created_at`
)

var _ archive.Repository = (*HistoryRepository)(nil)

// HistoryRepository implements archive.Repository backed by PostgreSQL.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository returns a HistoryRepository that uses the given pool.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// GetLiveByIDs fetches live orders for the given ids; missing ids are
// absent from the result.
func (r *HistoryRepository) GetLiveByIDs(ctx context.Context, ids []string) (map[string]*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrdersByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("fetching orders: %w", err)
	}

	out := make(map[string]*order.Order, len(orders))
	for i := range orders {
		out[orders[i].ID] = &orders[i]
	}
	return out, nil
}

// Archive moves the given orders to history in one transaction. Per order it
// copies the live row into order_history and deletes the original; the
// copy+delete pairs for the whole batch are queued on a pgx batch and commit
// or roll back together, so no order can end up in both stores or in neither.
// A copy affecting zero rows means the live order vanished after the
// candidate fetch; such ids are left out of the returned moved set.
func (r *HistoryRepository) Archive(ctx context.Context, orders []*order.Order, movedBy string, movedAt time.Time) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, o := range orders {
		batch.Queue(copyToHistorySQL, o.ID, movedAt, movedBy)
		batch.Queue(deleteLiveSQL, o.ID)
	}

	results := tx.SendBatch(ctx, batch)
	moved := make([]string, 0, len(orders))
	for _, o := range orders {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return nil, fmt.Errorf("copying order %q to history: %w", o.ID, err)
		}
		if _, err := results.Exec(); err != nil {
			results.Close()
			return nil, fmt.Errorf("deleting live order %q: %w", o.ID, err)
		}
		if tag.RowsAffected() > 0 {
			moved = append(moved, o.ID)
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("closing archive batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return moved, nil
}

// ListTerminalBefore returns ids of terminal live orders last updated before
// cutoff. limit <= 0 means no limit.
func (r *HistoryRepository) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	statuses := make([]string, 0, 2)
	for _, s := range order.TerminalStatuses() {
		statuses = append(statuses, string(s))
	}

	sql := listTerminalBeforeSQL
	args := []any{statuses, cutoff}
	if limit > 0 {
		sql += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing terminal orders: %w", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing terminal orders: %w", err)
	}
	return ids, nil
}

// Query returns history records matching the filter, newest archival first.
func (r *HistoryRepository) Query(ctx context.Context, f archive.Filter) ([]archive.Record, error) {
	sql := `SELECT ` + historyColumns + ` FROM order_history WHERE TRUE`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.From.IsZero() {
		sql += ` AND moved_to_history_at >= ` + arg(f.From)
	}
	if !f.To.IsZero() {
		sql += ` AND moved_to_history_at <= ` + arg(f.To)
	}
	if f.Status != "" {
		sql += ` AND status = ` + arg(string(f.Status))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		sql += ` AND (number ILIKE ` + p + ` OR customer_name ILIKE ` + p +
			` OR customer_email ILIKE ` + p + `)`
	}

	sql += ` ORDER BY moved_to_history_at DESC`
	if f.Limit > 0 {
		sql += ` LIMIT ` + arg(f.Limit)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanHistoryRecord)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return records, nil
}

func scanHistoryRecord(row pgx.CollectableRow) (archive.Record, error) {
	var (
		rec           archive.Record
		itemsJSON     []byte
		couponJSON    []byte
		couponCode    string
		status        string
		paymentMethod string
		paymentStatus string
	)
	err := row.Scan(
		&rec.ID, &rec.Number, &itemsJSON, &rec.Subtotal, &rec.Tax, &rec.Discount, &rec.Total,
		&status, &paymentMethod, &paymentStatus,
		&rec.Address.Text, &rec.Address.Latitude, &rec.Address.Longitude,
		&rec.Customer.Name, &rec.Customer.Email, &rec.Customer.Phone,
		&rec.CustomerNote, &rec.AdminNote,
		&couponJSON, &couponCode, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.MovedToHistoryAt, &rec.MovedBy, &rec.OriginalCreatedAt,
	)
	if err != nil {
		return archive.Record{}, err
	}
	_ = couponCode

	if err := json.Unmarshal(itemsJSON, &rec.Items); err != nil {
		return archive.Record{}, fmt.Errorf("unmarshaling history items: %w", err)
	}
	if len(couponJSON) > 0 {
		var snap order.CouponSnapshot
		if err := json.Unmarshal(couponJSON, &snap); err != nil {
			return archive.Record{}, fmt.Errorf("unmarshaling history coupon: %w", err)
		}
		rec.Coupon = &snap
	}

	rec.Status = order.Status(status)
	rec.PaymentMethod = order.PaymentMethod(paymentMethod)
	rec.PaymentStatus = order.PaymentStatus(paymentStatus)
	return rec, nil
}
