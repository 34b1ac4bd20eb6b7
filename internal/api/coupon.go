package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

type validateCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
	UserID   string          `json:"userId"`
}

// validateCoupon previews a coupon against an order subtotal without
// consuming it. The actual redemption happens when the order is placed.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}

	c, discount, err := h.coupons.Validate(r.Context(), req.Code, req.Subtotal, req.UserID)
	if err != nil {
		mapDomainError(w, err)
		return
	}

	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("name")
		e.StrEscape(c.Name)
		e.FieldStart("type")
		e.Str(string(c.Type))
		e.FieldStart("value")
		encodeDecimal(e, c.Value)
		e.FieldStart("discount")
		encodeDecimal(e, discount)
		e.ObjEnd()
	})
}
