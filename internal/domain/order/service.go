package order

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-fulfillment/internal/domain/coupon"
)

// bulkConcurrency caps the number of parallel sub-operations in a bulk
// transition. Different orders need no coordination, so they run in parallel.
const bulkConcurrency = 8

// RetryPolicy bounds retries of transient store failures. Validation errors
// are never retried.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy retries transient store errors three times with a
// short linear backoff.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}

// Service owns order placement and the status transition workflow.
type Service struct {
	orders  Repository
	coupons *coupon.Engine
	taxRate decimal.Decimal
	retry   RetryPolicy
	now     func() time.Time
	newID   func() string
}

// NewService creates an order Service. taxRate is a fraction (0.08 = 8%).
func NewService(orders Repository, coupons *coupon.Engine, taxRate decimal.Decimal) *Service {
	return &Service{
		orders:  orders,
		coupons: coupons,
		taxRate: taxRate,
		retry:   DefaultRetryPolicy,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// WithRetryPolicy overrides the transient-failure retry policy.
func (s *Service) WithRetryPolicy(p RetryPolicy) *Service {
	if p.Attempts > 0 {
		s.retry = p
	}
	return s
}

// Get fetches a live order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// RequestTransition moves the order to target if the transition is legal
// from the order's current status. The legality check is re-validated
// against the freshly read status on every attempt, and the write is a
// compare-and-swap, so two concurrent requests can never both succeed from
// a stale view. Transient store failures are retried per the retry policy;
// IllegalTransitionError and ErrNotFound surface immediately.
func (s *Service) RequestTransition(ctx context.Context, id string, target Status, actor string) (*Order, error) {
	if !target.Valid() {
		return nil, &IllegalTransitionError{To: target}
	}

	var lastErr error
	for attempt := 0; attempt < s.retry.Attempts; attempt++ {
		o, err := s.orders.GetByID(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			return nil, err
		default:
			lastErr = err
			if !s.backoff(ctx) {
				return nil, ctx.Err()
			}
			continue
		}

		if !o.Status.CanTransitionTo(target) {
			return nil, &IllegalTransitionError{From: o.Status, To: target}
		}

		updated, err := s.orders.UpdateStatus(ctx, id, o.Status, target, actor)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, ErrStatusConflict):
			// Lost the race; re-read and re-validate from the fresh status.
			lastErr = err
			continue
		case errors.Is(err, ErrNotFound):
			return nil, err
		default:
			lastErr = err
			if !s.backoff(ctx) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, errors.Wrap(lastErr, "transition not applied")
}

// BulkFailure names one order that a bulk operation could not transition.
type BulkFailure struct {
	ID     string
	Reason string
}

// BulkResult is the per-id outcome report of a bulk transition. A failure on
// one order never rolls back or blocks the others.
type BulkResult struct {
	Succeeded []*Order
	Failed    []BulkFailure
}

// RequestBulkTransition applies RequestTransition independently to each id.
// Partial success is expected; the caller receives every outcome.
func (s *Service) RequestBulkTransition(ctx context.Context, ids []string, target Status, actor string) *BulkResult {
	var (
		mu     sync.Mutex
		result BulkResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			o, err := s.RequestTransition(gctx, id, target, actor)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, BulkFailure{ID: id, Reason: err.Error()})
				return nil
			}
			result.Succeeded = append(result.Succeeded, o)
			return nil
		})
	}
	_ = g.Wait() // sub-operations report through result, never through the group

	return &result
}

// PlaceRequest holds the input for placing an order from checkout.
type PlaceRequest struct {
	Items         []LineItem
	CouponCode    string
	PaymentMethod PaymentMethod
	Address       Address
	Customer      Customer
	CustomerNote  string
}

// PlaceOrder validates the line items, prices the order (subtotal, tax,
// optional coupon discount), and persists it in pending status. The coupon
// redemption is recorded in the same transaction as the order row, which is
// what makes the usage-count increment exactly-once per order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	subtotal := decimal.Zero
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(s.taxRate).Round(2)

	now := s.now()

	var snapshot *CouponSnapshot
	discount := decimal.Zero
	if req.CouponCode != "" {
		c, amount, err := s.coupons.Validate(ctx, req.CouponCode, subtotal, userIDForCustomer(req.Customer))
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discount = amount
		snapshot = &CouponSnapshot{
			Code:     c.Code,
			Name:     c.Name,
			Type:     string(c.Type),
			Value:    c.Value,
			Discount: amount,
		}
	}

	o := &Order{
		ID:            s.newID(),
		Items:         req.Items,
		Subtotal:      subtotal,
		Tax:           tax,
		Discount:      discount,
		Total:         subtotal.Add(tax).Sub(discount),
		Status:        StatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentPending,
		Address:       req.Address,
		Customer:      req.Customer,
		CustomerNote:  req.CustomerNote,
		Coupon:        snapshot,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.Number = orderNumber(now, o.ID)

	// The order id is fixed up front, so retrying the insert after a
	// transient store failure cannot produce a duplicate. Coupon exhaustion
	// is a business outcome, not a fault, and surfaces immediately.
	var lastErr error
	for attempt := 0; attempt < s.retry.Attempts; attempt++ {
		err := s.orders.Create(ctx, o)
		switch {
		case err == nil:
			return o, nil
		case errors.Is(err, coupon.ErrExhausted):
			return nil, errors.Wrap(err, "create order")
		default:
			lastErr = err
			if !s.backoff(ctx) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, errors.Wrap(lastErr, "create order")
}

// backoff sleeps for the policy's backoff duration, honouring cancellation.
// It reports false when the context was cancelled.
func (s *Service) backoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.retry.Backoff):
		return true
	}
}

// userIDForCustomer derives the per-user coupon usage key. The customer's
// normalized email is the identity checkout actually has.
func userIDForCustomer(c Customer) string {
	return strings.ToLower(strings.TrimSpace(c.Email))
}

// orderNumber builds the human-facing display number, e.g. ORD-20260901-3F2A1B.
func orderNumber(t time.Time, id string) string {
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("ORD-%s-%s", t.Format("20060102"), strings.ToUpper(suffix))
}
