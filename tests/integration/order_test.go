//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"regexp"
	"testing"
)

const testAPIKey = "integration-test-key"

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{6}$`)

func placeTestOrder(t *testing.T, couponCode, email string) orderResponse {
	t.Helper()

	req := placeOrderRequest{
		Items: []lineItemRequest{
			{ProductID: "pizza-margherita", Name: "Margherita", UnitPrice: "12.50", Quantity: 2},
			{ProductID: "drink-cola", Name: "Cola", UnitPrice: "5.00", Quantity: 1},
		},
		CouponCode: couponCode,
		Customer:   customerRequest{Name: "Integration Tester", Email: email, Phone: "+1 555 0111"},
	}
	req.Address.Text = "42 Test Avenue"

	resp := doPostWithAuth(t, "/api/orders", req, testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body := decodeJSON[errorResponse](t, resp)
		t.Fatalf("place order: expected 201, got %d (%s)", resp.StatusCode, body.Message)
	}

	return decodeJSON[orderResponse](t, resp)
}

func transition(t *testing.T, orderID, status string) *http.Response {
	t.Helper()
	return doPostWithAuth(t,
		fmt.Sprintf("/api/orders/%s/status", orderID),
		map[string]string{"status": status},
		testAPIKey)
}

func mustTransition(t *testing.T, orderID, status string) orderResponse {
	t.Helper()

	resp := transition(t, orderID, status)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := decodeJSON[errorResponse](t, resp)
		t.Fatalf("transition to %s: expected 200, got %d (%s)", status, resp.StatusCode, body.Message)
	}
	return decodeJSON[orderResponse](t, resp)
}

func TestPlaceOrder_NoAuth(t *testing.T) {
	resp := doPost(t, "/api/orders", placeOrderRequest{})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_InvalidKey(t *testing.T) {
	resp := doPostWithAuth(t, "/api/orders", placeOrderRequest{}, "wrong-key")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	resp := doPostWithAuth(t, "/api/orders", placeOrderRequest{}, testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_Totals(t *testing.T) {
	order := placeTestOrder(t, "", "totals@example.com")

	// 2 x 12.50 + 1 x 5.00, the integration environment runs with tax rate 0.
	if order.Subtotal != 30 {
		t.Errorf("subtotal: got %v, want 30", order.Subtotal)
	}
	if order.Total != 30 {
		t.Errorf("total: got %v, want 30", order.Total)
	}
	if order.Status != "pending" {
		t.Errorf("status: got %q, want pending", order.Status)
	}
	if !orderNumberPattern.MatchString(order.Number) {
		t.Errorf("order number %q does not match pattern", order.Number)
	}
}

func TestGetOrder(t *testing.T) {
	placed := placeTestOrder(t, "", "get@example.com")

	resp := doGetWithAuth(t, "/api/orders/"+placed.ID, testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := decodeJSON[orderResponse](t, resp)
	if got.ID != placed.ID {
		t.Errorf("id: got %q, want %q", got.ID, placed.ID)
	}
	if got.Number != placed.Number {
		t.Errorf("number: got %q, want %q", got.Number, placed.Number)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	resp := doGetWithAuth(t, "/api/orders/00000000-0000-0000-0000-000000000000", testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestTransition_FullLifecycle(t *testing.T) {
	order := placeTestOrder(t, "", "lifecycle@example.com")

	for _, status := range []string{"confirmed", "preparing", "ready", "out_for_delivery", "delivered"} {
		got := mustTransition(t, order.ID, status)
		if got.Status != status {
			t.Fatalf("status: got %q, want %q", got.Status, status)
		}
	}

	// Delivered is terminal.
	resp := transition(t, order.ID, "pending")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("transition out of delivered: expected 409, got %d", resp.StatusCode)
	}
}

func TestTransition_CancelFromPreparing(t *testing.T) {
	order := placeTestOrder(t, "", "cancel@example.com")

	mustTransition(t, order.ID, "confirmed")
	mustTransition(t, order.ID, "preparing")
	got := mustTransition(t, order.ID, "cancelled")

	if got.Status != "cancelled" {
		t.Fatalf("status: got %q, want cancelled", got.Status)
	}
	if len(got.NextStates) != 0 {
		t.Errorf("cancelled order has next states: %v", got.NextStates)
	}
}

func TestTransition_SkippingStepsRejected(t *testing.T) {
	order := placeTestOrder(t, "", "skip@example.com")

	resp := transition(t, order.ID, "ready")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Message == "" {
		t.Error("expected a transition error message")
	}
}

func TestBulkTransition_PartialSuccess(t *testing.T) {
	a := placeTestOrder(t, "", "bulk-a@example.com")
	b := placeTestOrder(t, "", "bulk-b@example.com")
	mustTransition(t, b.ID, "confirmed") // b can no longer go pending -> confirmed

	resp := doPostWithAuth(t, "/api/orders/bulk-status", map[string]any{
		"ids":    []string{a.ID, b.ID},
		"status": "confirmed",
	}, testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	result := decodeJSON[bulkResponse](t, resp)
	if len(result.Succeeded) != 1 || result.Succeeded[0].ID != a.ID {
		t.Errorf("succeeded: got %+v, want just %s", result.Succeeded, a.ID)
	}
	if len(result.Failed) != 1 || result.Failed[0].ID != b.ID {
		t.Errorf("failed: got %+v, want just %s", result.Failed, b.ID)
	}
}
