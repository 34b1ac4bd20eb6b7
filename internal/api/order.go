package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-fulfillment/internal/domain/order"
)

type lineItemRequest struct {
	ProductID string            `json:"productId"`
	Name      string            `json:"name"`
	UnitPrice decimal.Decimal   `json:"unitPrice"`
	Quantity  int               `json:"quantity"`
	Options   map[string]string `json:"options"`
}

type placeOrderRequest struct {
	Items         []lineItemRequest `json:"items"`
	CouponCode    string            `json:"couponCode"`
	PaymentMethod string            `json:"paymentMethod"`
	Address       struct {
		Text      string   `json:"text"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"address"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	CustomerNote string `json:"customerNote"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Options:   item.Options,
		}
	}

	method := order.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = order.PaymentCash
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceRequest{
		Items:         items,
		CouponCode:    req.CouponCode,
		PaymentMethod: method,
		Address: order.Address{
			Text:      req.Address.Text,
			Latitude:  req.Address.Latitude,
			Longitude: req.Address.Longitude,
		},
		Customer: order.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		CustomerNote: req.CustomerNote,
	})
	if err != nil {
		mapDomainError(w, err)
		return
	}

	respond(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		mapDomainError(w, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

type transitionRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

func (h *Handler) requestTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.RequestTransition(r.Context(),
		r.PathValue("id"), order.Status(req.Status), actorFor(r.Context(), req.Actor))
	if err != nil {
		mapDomainError(w, err)
		return
	}

	respond(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

type bulkTransitionRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
	Actor  string   `json:"actor"`
}

// requestBulkTransition always answers 200 with the full per-id breakdown;
// partial failure is an expected outcome, never a hard failure of the batch.
func (h *Handler) requestBulkTransition(w http.ResponseWriter, r *http.Request) {
	var req bulkTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}

	result := h.orders.RequestBulkTransition(r.Context(),
		req.IDs, order.Status(req.Status), actorFor(r.Context(), req.Actor))

	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("succeeded")
		e.ArrStart()
		for _, o := range result.Succeeded {
			encodeOrder(e, o)
		}
		e.ArrEnd()
		e.FieldStart("failed")
		e.ArrStart()
		for _, f := range result.Failed {
			e.ObjStart()
			e.FieldStart("id")
			e.Str(f.ID)
			e.FieldStart("reason")
			e.StrEscape(f.Reason)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}
