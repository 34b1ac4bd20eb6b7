package api

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-fulfillment/internal/domain/archive"
	"github.com/xenking/order-fulfillment/internal/domain/coupon"
	"github.com/xenking/order-fulfillment/internal/domain/order"
)

// respond streams a jx-encoded body with the given status.
func respond(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError emits the uniform error body {"code": N, "message": "..."}.
func writeError(w http.ResponseWriter, status int, message string) {
	respond(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.StrEscape(message)
		e.ObjEnd()
	})
}

// mapDomainError translates domain errors into HTTP error responses.
// Unrecognized errors become 503: after bounded retries inside the service,
// whatever is left is a store availability problem, not caller input.
func mapDomainError(w http.ResponseWriter, err error) {
	var illegal *order.IllegalTransitionError
	switch {
	case errors.As(err, &illegal):
		writeError(w, http.StatusConflict, illegal.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrNotYetValid),
		errors.Is(err, coupon.ErrExhausted),
		errors.Is(err, coupon.ErrUserLimitReached),
		errors.Is(err, coupon.ErrBelowMinimum):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		var iq *order.InvalidQuantityError
		if errors.As(err, &iq) {
			writeError(w, http.StatusUnprocessableEntity, iq.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	}
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("number")
	e.Str(o.Number)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("subtotal")
	encodeDecimal(e, o.Subtotal)
	e.FieldStart("tax")
	encodeDecimal(e, o.Tax)
	e.FieldStart("discount")
	encodeDecimal(e, o.Discount)
	e.FieldStart("total")
	encodeDecimal(e, o.Total)
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		encodeLineItem(e, item)
	}
	e.ArrEnd()
	e.FieldStart("customer")
	e.ObjStart()
	e.FieldStart("name")
	e.StrEscape(o.Customer.Name)
	e.FieldStart("email")
	e.StrEscape(o.Customer.Email)
	e.FieldStart("phone")
	e.StrEscape(o.Customer.Phone)
	e.ObjEnd()
	e.FieldStart("address")
	e.ObjStart()
	e.FieldStart("text")
	e.StrEscape(o.Address.Text)
	if o.Address.Latitude != nil && o.Address.Longitude != nil {
		e.FieldStart("latitude")
		e.Float64(*o.Address.Latitude)
		e.FieldStart("longitude")
		e.Float64(*o.Address.Longitude)
	}
	e.ObjEnd()
	if o.CustomerNote != "" {
		e.FieldStart("customerNote")
		e.StrEscape(o.CustomerNote)
	}
	if o.AdminNote != "" {
		e.FieldStart("adminNote")
		e.StrEscape(o.AdminNote)
	}
	if o.Coupon != nil {
		e.FieldStart("coupon")
		encodeCouponSnapshot(e, o.Coupon)
	}
	e.FieldStart("nextStates")
	e.ArrStart()
	for _, s := range o.Status.NextStates() {
		e.Str(string(s))
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeLineItem(e *jx.Encoder, item order.LineItem) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(item.ProductID)
	e.FieldStart("name")
	e.StrEscape(item.Name)
	e.FieldStart("unitPrice")
	encodeDecimal(e, item.UnitPrice)
	e.FieldStart("quantity")
	e.Int(item.Quantity)
	if len(item.Options) > 0 {
		e.FieldStart("options")
		e.ObjStart()
		for name, value := range item.Options {
			e.FieldStart(name)
			e.StrEscape(value)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeCouponSnapshot(e *jx.Encoder, snap *order.CouponSnapshot) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(snap.Code)
	e.FieldStart("name")
	e.StrEscape(snap.Name)
	e.FieldStart("type")
	e.Str(snap.Type)
	e.FieldStart("value")
	encodeDecimal(e, snap.Value)
	e.FieldStart("discount")
	encodeDecimal(e, snap.Discount)
	e.ObjEnd()
}

func encodeHistoryRecord(e *jx.Encoder, rec *archive.Record) {
	e.ObjStart()
	e.FieldStart("order")
	encodeOrder(e, &rec.Order)
	e.FieldStart("movedToHistoryAt")
	encodeTime(e, rec.MovedToHistoryAt)
	e.FieldStart("movedBy")
	e.StrEscape(rec.MovedBy)
	e.FieldStart("originalCreatedAt")
	encodeTime(e, rec.OriginalCreatedAt)
	e.ObjEnd()
}
