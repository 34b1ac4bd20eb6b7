package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-fulfillment/internal/domain/archive"
	"github.com/xenking/order-fulfillment/internal/domain/auth"
	"github.com/xenking/order-fulfillment/internal/domain/coupon"
	"github.com/xenking/order-fulfillment/internal/domain/order"
)

const (
	testPepper   = "test-pepper"
	adminKey     = "admin-key"
	customerKey  = "customer-key"
	testTaxRate  = "0.08"
	demoCustomer = "alice@example.com"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newMockOrderRepo(orders ...*order.Order) *mockOrderRepo {
	byID := make(map[string]*order.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return &mockOrderRepo{orders: byID}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from, to order.Status, _ string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != from {
		return nil, order.ErrStatusConflict
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) CountLive(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders), nil
}

func (m *mockOrderRepo) NewestLive(_ context.Context) (*order.Order, error) {
	return nil, order.ErrNotFound
}

type mockCouponRepo struct {
	coupons map[string]*coupon.Coupon
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) CountUserRedemptions(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (m *mockCouponRepo) Redeem(_ context.Context, _, _, _ string) error {
	return nil
}

type mockHistoryRepo struct {
	live    map[string]*order.Order
	records []archive.Record
}

func (m *mockHistoryRepo) GetLiveByIDs(_ context.Context, ids []string) (map[string]*order.Order, error) {
	out := make(map[string]*order.Order, len(ids))
	for _, id := range ids {
		if o, ok := m.live[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (m *mockHistoryRepo) Archive(_ context.Context, orders []*order.Order, _ string, _ time.Time) ([]string, error) {
	moved := make([]string, 0, len(orders))
	for _, o := range orders {
		delete(m.live, o.ID)
		moved = append(moved, o.ID)
	}
	return moved, nil
}

func (m *mockHistoryRepo) ListTerminalBefore(_ context.Context, _ time.Time, _ int) ([]string, error) {
	return nil, nil
}

func (m *mockHistoryRepo) Query(_ context.Context, _ archive.Filter) ([]archive.Record, error) {
	return m.records, nil
}

type mockKeyRepo struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

// --- Helpers ---

func hashKey(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestKeyRepo() *mockKeyRepo {
	return &mockKeyRepo{byHash: map[string]*auth.APIKeyInfo{
		hashKey(adminKey): {
			ID:      "k1",
			KeyHash: hashKey(adminKey),
			Name:    "ops-dashboard",
			Scopes:  []string{auth.ScopeAdmin},
		},
		hashKey(customerKey): {
			ID:      "k2",
			KeyHash: hashKey(customerKey),
			Name:    "storefront",
		},
	}}
}

type testEnv struct {
	server  *httptest.Server
	orders  *mockOrderRepo
	history *mockHistoryRepo
}

func newTestEnv(t *testing.T, orders *mockOrderRepo, coupons *mockCouponRepo, history *mockHistoryRepo) *testEnv {
	t.Helper()

	if coupons == nil {
		coupons = &mockCouponRepo{coupons: map[string]*coupon.Coupon{}}
	}
	if history == nil {
		history = &mockHistoryRepo{live: map[string]*order.Order{}}
	}

	engine := coupon.NewEngine(coupons)
	orderSvc := order.NewService(orders, engine, decimal.RequireFromString(testTaxRate)).
		WithRetryPolicy(order.RetryPolicy{Attempts: 2, Backoff: time.Millisecond})
	archiveSvc := archive.NewService(history, 100)

	h := NewHandler(orderSvc, engine, archiveSvc, newTestKeyRepo(), []byte(testPepper))
	mux := http.NewServeMux()
	h.Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, orders: orders, history: history}
}

func (env *testEnv) do(t *testing.T, method, path, apiKey string, body any) *http.Response {
	t.Helper()

	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, env.server.URL+path, payload)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type orderBody struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	Status     string          `json:"status"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	NextStates []string        `json:"nextStates"`
	Coupon     *struct {
		Code     string          `json:"code"`
		Discount decimal.Decimal `json:"discount"`
	} `json:"coupon"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func placeBody(couponCode string) map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"productId": "p1", "name": "Margherita", "unitPrice": "12.50", "quantity": 2},
			{"productId": "p2", "name": "Cola", "unitPrice": "5.00", "quantity": 1},
		},
		"couponCode": couponCode,
		"customer":   map[string]any{"name": "Alice", "email": demoCustomer},
		"address":    map[string]any{"text": "1 Main St"},
	}
}

// --- Authentication ---

func TestAPI_MissingKey(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders", "", placeBody(""))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_UnknownKey(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders", "wrong-key", placeBody(""))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_AdminScopeRequired(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(&order.Order{ID: "o1", Status: order.StatusPending}), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders/o1/status", customerKey,
		map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// --- Place order ---

func TestAPI_PlaceOrder(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders", customerKey, placeBody(""))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decodeBody[orderBody](t, resp)
	assert.Equal(t, "pending", got.Status)
	assert.True(t, decimal.RequireFromString("30.00").Equal(got.Subtotal), "subtotal %s", got.Subtotal)
	assert.True(t, decimal.RequireFromString("2.40").Equal(got.Tax), "tax %s", got.Tax)
	assert.True(t, decimal.RequireFromString("32.40").Equal(got.Total), "total %s", got.Total)
	assert.ElementsMatch(t, []string{"confirmed", "cancelled"}, got.NextStates)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{6}$`, got.Number)
}

func TestAPI_PlaceOrder_WithCoupon(t *testing.T) {
	coupons := &mockCouponRepo{coupons: map[string]*coupon.Coupon{
		"SAVE10": {Code: "SAVE10", Name: "10% off", Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(10), Active: true},
	}}
	env := newTestEnv(t, newMockOrderRepo(), coupons, nil)

	resp := env.do(t, http.MethodPost, "/api/orders", customerKey, placeBody("save10"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decodeBody[orderBody](t, resp)
	assert.True(t, decimal.RequireFromString("3.00").Equal(got.Discount), "discount %s", got.Discount)
	require.NotNil(t, got.Coupon)
	assert.Equal(t, "SAVE10", got.Coupon.Code)
	assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Tax).Sub(got.Discount)))
}

func TestAPI_PlaceOrder_EmptyItems(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders", customerKey,
		map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAPI_PlaceOrder_UnknownCoupon(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders", customerKey, placeBody("BOGUS"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// --- Get order ---

func TestAPI_GetOrder(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(&order.Order{
		ID:     "o1",
		Number: "ORD-20260901-AB12CD",
		Status: order.StatusReady,
	}), nil, nil)

	resp := env.do(t, http.MethodGet, "/api/orders/o1", customerKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[orderBody](t, resp)
	assert.Equal(t, "ORD-20260901-AB12CD", got.Number)
	assert.ElementsMatch(t, []string{"out_for_delivery", "delivered"}, got.NextStates)
}

func TestAPI_GetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(), nil, nil)

	resp := env.do(t, http.MethodGet, "/api/orders/missing", customerKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// --- Status transitions ---

func TestAPI_Transition(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(&order.Order{ID: "o1", Status: order.StatusPending}), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders/o1/status", adminKey,
		map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[orderBody](t, resp)
	assert.Equal(t, "confirmed", got.Status)
	assert.ElementsMatch(t, []string{"preparing", "cancelled"}, got.NextStates)
}

func TestAPI_Transition_Illegal(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(&order.Order{ID: "o1", Status: order.StatusPending}), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders/o1/status", adminKey,
		map[string]string{"status": "delivered"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	got := decodeBody[errorBody](t, resp)
	assert.Contains(t, got.Message, "illegal transition")
}

func TestAPI_Transition_NotFound(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders/missing/status", adminKey,
		map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_BulkTransition(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(
		&order.Order{ID: "o1", Status: order.StatusPending},
		&order.Order{ID: "o2", Status: order.StatusDelivered},
	), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders/bulk-status", adminKey,
		map[string]any{"ids": []string{"o1", "o2"}, "status": "confirmed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[struct {
		Succeeded []orderBody `json:"succeeded"`
		Failed    []struct {
			ID     string `json:"id"`
			Reason string `json:"reason"`
		} `json:"failed"`
	}](t, resp)

	require.Len(t, got.Succeeded, 1)
	assert.Equal(t, "o1", got.Succeeded[0].ID)
	require.Len(t, got.Failed, 1)
	assert.Equal(t, "o2", got.Failed[0].ID)
	assert.NotEmpty(t, got.Failed[0].Reason)
}

func TestAPI_BulkTransition_NoIDs(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(), nil, nil)

	resp := env.do(t, http.MethodPost, "/api/orders/bulk-status", adminKey,
		map[string]any{"ids": []string{}, "status": "confirmed"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// --- Coupon preview ---

func TestAPI_ValidateCoupon(t *testing.T) {
	coupons := &mockCouponRepo{coupons: map[string]*coupon.Coupon{
		"SAVE10": {Code: "SAVE10", Name: "10% off", Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(10), Active: true},
	}}
	env := newTestEnv(t, newMockOrderRepo(), coupons, nil)

	resp := env.do(t, http.MethodPost, "/api/coupons/validate", customerKey,
		map[string]any{"code": "save10", "subtotal": "200.00"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[struct {
		Code     string          `json:"code"`
		Discount decimal.Decimal `json:"discount"`
	}](t, resp)
	assert.Equal(t, "SAVE10", got.Code)
	assert.True(t, decimal.NewFromInt(20).Equal(got.Discount), "discount %s", got.Discount)
}

func TestAPI_ValidateCoupon_Expired(t *testing.T) {
	past := time.Now().Add(-24 * time.Hour)
	coupons := &mockCouponRepo{coupons: map[string]*coupon.Coupon{
		"OLD": {Code: "OLD", Type: coupon.DiscountFixed, Value: decimal.NewFromInt(5), ValidUntil: &past, Active: true},
	}}
	env := newTestEnv(t, newMockOrderRepo(), coupons, nil)

	resp := env.do(t, http.MethodPost, "/api/coupons/validate", customerKey,
		map[string]any{"code": "OLD", "subtotal": "50.00"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

// --- Archival ---

func TestAPI_MoveToHistory(t *testing.T) {
	history := &mockHistoryRepo{live: map[string]*order.Order{
		"o1": {ID: "o1", Status: order.StatusDelivered},
		"o2": {ID: "o2", Status: order.StatusPending},
	}}
	env := newTestEnv(t, newMockOrderRepo(), nil, history)

	resp := env.do(t, http.MethodPost, "/api/archive", adminKey,
		map[string]any{"ids": []string{"o1", "o2", "ghost"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[struct {
		MovedCount int      `json:"movedCount"`
		MovedIDs   []string `json:"movedIds"`
		Skipped    []struct {
			ID     string `json:"id"`
			Reason string `json:"reason"`
		} `json:"skipped"`
	}](t, resp)

	assert.Equal(t, 1, got.MovedCount)
	assert.Equal(t, []string{"o1"}, got.MovedIDs)
	require.Len(t, got.Skipped, 2)
}

func TestAPI_QueryHistory(t *testing.T) {
	history := &mockHistoryRepo{
		live: map[string]*order.Order{},
		records: []archive.Record{{
			Order:   order.Order{ID: "h1", Status: order.StatusDelivered},
			MovedBy: "scheduled-sweep",
		}},
	}
	env := newTestEnv(t, newMockOrderRepo(), nil, history)

	resp := env.do(t, http.MethodGet, "/api/history?status=delivered&limit=10", adminKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[struct {
		Records []struct {
			Order   orderBody `json:"order"`
			MovedBy string    `json:"movedBy"`
		} `json:"records"`
	}](t, resp)

	require.Len(t, got.Records, 1)
	assert.Equal(t, "h1", got.Records[0].Order.ID)
	assert.Equal(t, "scheduled-sweep", got.Records[0].MovedBy)
}

func TestAPI_QueryHistory_BadStatus(t *testing.T) {
	env := newTestEnv(t, newMockOrderRepo(), nil, nil)

	resp := env.do(t, http.MethodGet, "/api/history?status=bogus", adminKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
