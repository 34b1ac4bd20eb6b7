package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates the supported payment instruments.
type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "card"
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

// PaymentStatus tracks the payment leg of an order, independent of the
// fulfillment status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// LineItem is a single ordered position. UnitPrice is the price at the time
// the order was placed; later catalog changes never affect existing orders.
type LineItem struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Quantity  int               `json:"quantity"`
	Options   map[string]string `json:"options,omitempty"`
}

// Address is a free-text delivery address with an optional geocoordinate.
type Address struct {
	Text      string   `json:"text"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Customer holds the contact details captured at checkout.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CouponSnapshot freezes the terms of the applied coupon at order time.
// The live coupon may change or be deleted afterwards; the snapshot is the
// record of what the customer actually got.
type CouponSnapshot struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Value    decimal.Decimal `json:"value"`
	Discount decimal.Decimal `json:"discount"`
}

// Order is the central fulfillment entity.
//
// Invariant: Total == Subtotal + Tax - Discount, Discount >= 0 and
// Discount <= Subtotal. Status only moves forward through the transition
// graph defined in status.go.
type Order struct {
	ID            string
	Number        string
	Items         []LineItem
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Address       Address
	Customer      Customer
	CustomerNote  string
	AdminNote     string
	Coupon        *CouponSnapshot
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transition records one audit entry for a status change.
type Transition struct {
	OrderID string
	From    Status
	To      Status
	Actor   string
	At      time.Time
}

// Repository defines persistence operations for live orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)

	// UpdateStatus performs a compare-and-swap on the order's status and
	// appends the audit entry in the same transaction. It returns
	// ErrStatusConflict when the stored status no longer equals from, and
	// ErrNotFound when the order does not exist.
	UpdateStatus(ctx context.Context, id string, from, to Status, actor string) (*Order, error)

	// CountLive returns the number of orders currently in the live store.
	CountLive(ctx context.Context) (int, error)

	// NewestLive returns the most recently created live order. Ties on
	// created_at resolve to the lexically greatest id, so the result is
	// deterministic. Returns ErrNotFound when the store is empty.
	NewestLive(ctx context.Context) (*Order, error)
}
