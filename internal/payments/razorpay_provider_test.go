package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestRazorpayProvider(t *testing.T, serverURL string) *RazorpayProvider {
	t.Helper()
	provider, err := NewRazorpayProvider(RazorpayProviderConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "test_secret",
		BaseURL:   serverURL,
		Clock: func() time.Time {
			return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func signRazorpay(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpayVerifyPayment(t *testing.T) {
	provider := newTestRazorpayProvider(t, "http://unused.invalid")
	ctx := context.Background()

	req := VerifyRequest{
		IntentID:  "order_Nxy123",
		PaymentID: "pay_Nxy456",
		Signature: signRazorpay("test_secret", "order_Nxy123", "pay_Nxy456"),
	}
	if err := provider.VerifyPayment(ctx, req); err != nil {
		t.Fatalf("expected signature to verify, got %v", err)
	}

	req.Signature = signRazorpay("wrong_secret", "order_Nxy123", "pay_Nxy456")
	if err := provider.VerifyPayment(ctx, req); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}

	req.Signature = ""
	if err := provider.VerifyPayment(ctx, req); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch for empty signature, got %v", err)
	}
}

func TestRazorpayCreateIntent(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if user, pass, ok := r.BasicAuth(); !ok || user != "rzp_test_key" || pass != "test_secret" {
			t.Errorf("missing or wrong basic auth: %q %q", user, pass)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(razorpayOrder{
			ID:       "order_Nxy123",
			Amount:   50000,
			Currency: "INR",
			Receipt:  "DN-2024-000042",
			Status:   "created",
		})
	}))
	defer server.Close()

	provider := newTestRazorpayProvider(t, server.URL)
	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		Amount:   50000,
		Currency: "inr",
		Receipt:  "DN-2024-000042",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if gotPath != "/orders" {
		t.Fatalf("expected POST /orders, got %q", gotPath)
	}
	if capture, ok := gotBody["payment_capture"].(float64); !ok || capture != 1 {
		t.Fatalf("expected auto capture request, got %v", gotBody["payment_capture"])
	}
	if intent.ID != "order_Nxy123" {
		t.Fatalf("unexpected intent id %q", intent.ID)
	}
	if intent.Amount != 50000 || intent.Currency != "INR" {
		t.Fatalf("unexpected amount/currency: %d %q", intent.Amount, intent.Currency)
	}
}

func TestRazorpayRefundSurfacesGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The payment has been fully refunded already"}}`))
	}))
	defer server.Close()

	provider := newTestRazorpayProvider(t, server.URL)
	_, err := provider.Refund(context.Background(), RefundRequest{
		PaymentID:      "pay_Nxy456",
		IdempotencyKey: "refund:ord_1:1",
	})
	if err == nil {
		t.Fatalf("expected gateway error")
	}

	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected *GatewayError, got %T", err)
	}
	if gatewayErr.Code != "BAD_REQUEST_ERROR" {
		t.Fatalf("unexpected code %q", gatewayErr.Code)
	}
}

func TestRazorpayRefundSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/pay_Nxy456/refund" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(razorpayRefund{
			ID:        "rfnd_Nxy789",
			PaymentID: "pay_Nxy456",
			Amount:    50000,
			Currency:  "INR",
			Status:    "processed",
			CreatedAt: 1710072000,
		})
	}))
	defer server.Close()

	provider := newTestRazorpayProvider(t, server.URL)
	result, err := provider.Refund(context.Background(), RefundRequest{
		PaymentID:      "pay_Nxy456",
		IdempotencyKey: "refund:ord_1:1",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.RefundID != "rfnd_Nxy789" {
		t.Fatalf("unexpected refund id %q", result.RefundID)
	}
	if result.Status != StatusRefunded {
		t.Fatalf("unexpected status %q", result.Status)
	}
}
