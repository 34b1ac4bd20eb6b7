package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when an order id does not resolve to a live order.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned by the repository when a compare-and-swap
	// on the status column matched no row because a concurrent writer got
	// there first. The service re-reads and re-validates on this error.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrEmptyItems is returned when an order is placed without line items.
	ErrEmptyItems = errors.New("items required")
)

// IllegalTransitionError indicates a requested status change that is not in
// the legal-next-states set for the order's current status. It covers
// transitions out of a terminal status and same-status transitions.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}
