// Package api exposes the fulfillment core over a thin JSON HTTP surface
// for the admin dashboard and the customer-facing order tracker.
package api

import (
	"net/http"

	"github.com/xenking/order-fulfillment/internal/domain/archive"
	"github.com/xenking/order-fulfillment/internal/domain/auth"
	"github.com/xenking/order-fulfillment/internal/domain/coupon"
	"github.com/xenking/order-fulfillment/internal/domain/order"
)

// Handler wires the HTTP routes to the domain services.
type Handler struct {
	orders  *order.Service
	coupons *coupon.Engine
	archive *archive.Service
	apikeys auth.Repository
	pepper  []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
// pepper is the HMAC key used to hash incoming API keys before lookup.
func NewHandler(
	orders *order.Service,
	coupons *coupon.Engine,
	archive *archive.Service,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		orders:  orders,
		coupons: coupons,
		archive: archive,
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Routes registers every API route on the given mux. Fulfillment operations
// (transitions, archival, history) require the admin scope; placing orders
// and validating coupons require any valid key.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.Handle("POST /api/orders", h.authenticated(h.placeOrder, false))
	mux.Handle("GET /api/orders/{id}", h.authenticated(h.getOrder, false))
	mux.Handle("POST /api/coupons/validate", h.authenticated(h.validateCoupon, false))

	mux.Handle("POST /api/orders/{id}/status", h.authenticated(h.requestTransition, true))
	mux.Handle("POST /api/orders/bulk-status", h.authenticated(h.requestBulkTransition, true))
	mux.Handle("POST /api/archive", h.authenticated(h.moveToHistory, true))
	mux.Handle("GET /api/history", h.authenticated(h.queryHistory, true))
}
