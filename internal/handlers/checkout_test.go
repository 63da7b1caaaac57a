package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/services"
)

type stubCheckoutService struct {
	intentFn func(context.Context, services.CreatePaymentIntentCommand) (services.PaymentIntent, error)
	verifyFn func(context.Context, services.VerifyPaymentCommand) (services.Order, error)
}

func (s *stubCheckoutService) CreatePaymentIntent(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
	if s.intentFn != nil {
		return s.intentFn(ctx, cmd)
	}
	return services.PaymentIntent{}, errors.New("not implemented")
}

func (s *stubCheckoutService) VerifyAndCreateOrder(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)

func newCheckoutRouter(svc services.CheckoutService, opts ...CheckoutOption) chi.Router {
	r := chi.NewRouter()
	NewCheckoutHandlers(nil, svc, opts...).Routes(r)
	return r
}

func TestCreatePaymentIntentReturnsGatewayOrder(t *testing.T) {
	var captured services.CreatePaymentIntentCommand
	svc := &stubCheckoutService{
		intentFn: func(_ context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
			captured = cmd
			return services.PaymentIntent{
				GatewayOrderID: "order_rzp_123",
				PublicKey:      "rzp_test_key",
				Amount:         cmd.Amount,
				Currency:       cmd.Currency,
				Provider:       "razorpay",
			}, nil
		},
	}

	router := newCheckoutRouter(svc)
	req := authedRequest(http.MethodPost, "/checkout/payment-intent", []byte(`{"amount": 500, "currency": "INR", "payment_method": "razorpay"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.Amount != 500 || captured.Method != domain.PaymentMethodRazorpay {
		t.Fatalf("unexpected command: %+v", captured)
	}

	var body paymentIntentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.GatewayOrderID != "order_rzp_123" || body.Provider != "razorpay" {
		t.Fatalf("unexpected response: %+v", body)
	}
}

func TestCreatePaymentIntentRateLimited(t *testing.T) {
	svc := &stubCheckoutService{
		intentFn: func(_ context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
			return services.PaymentIntent{GatewayOrderID: "x", Amount: cmd.Amount}, nil
		},
	}

	limiter := newSimpleRateLimiter(1, time.Minute, nil)
	router := newCheckoutRouter(svc, WithCheckoutRateLimiter(limiter))

	first := authedRequest(http.MethodPost, "/checkout/payment-intent", []byte(`{"amount": 500, "currency": "INR", "payment_method": "razorpay"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, first)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}

	second := authedRequest(http.MethodPost, "/checkout/payment-intent", []byte(`{"amount": 500, "currency": "INR", "payment_method": "razorpay"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, second)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
}

func TestVerifyPaymentCreatesOrder(t *testing.T) {
	var captured services.VerifyPaymentCommand
	svc := &stubCheckoutService{
		verifyFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:            "ord_paid",
				Number:        "DN-2025-000010",
				Status:        domain.OrderStatusPending,
				PaymentMethod: cmd.Method,
				PaymentStatus: domain.PaymentStatusPaid,
				Total:         cmd.Order.Total,
			}, nil
		},
	}

	payload := `{
		"gateway_order_id": "order_rzp_123",
		"gateway_payment_id": "pay_rzp_456",
		"signature": "deadbeef",
		"payment_method": "razorpay",
		"order": {
			"customer": {"name": "Asha", "email": "asha@example.com", "phone": "9999999999", "address": "12 Lane", "city": "Pune", "state": "MH", "pincode": "411001"},
			"items": [{"product_id": "prd_1", "name": "Herbal Soap", "unit_price": 225, "quantity": 2}],
			"currency": "INR",
			"subtotal": 450,
			"shipping_fee": 50,
			"total": 500
		}
	}`

	router := newCheckoutRouter(svc)
	req := authedRequest(http.MethodPost, "/checkout/verify", []byte(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.GatewayOrderID != "order_rzp_123" || captured.Signature != "deadbeef" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.Order.PaymentMethod != domain.PaymentMethodRazorpay || captured.Order.Total != 500 {
		t.Fatalf("unexpected order draft: %+v", captured.Order)
	}

	var body orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.PaymentStatus != string(domain.PaymentStatusPaid) {
		t.Fatalf("expected paid payment status, got %s", body.PaymentStatus)
	}
}

func TestVerifyPaymentSignatureRejected(t *testing.T) {
	svc := &stubCheckoutService{
		verifyFn: func(context.Context, services.VerifyPaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrCheckoutVerificationFailed
		},
	}

	router := newCheckoutRouter(svc)
	req := authedRequest(http.MethodPost, "/checkout/verify", []byte(`{"gateway_order_id": "order_rzp_123", "payment_method": "razorpay"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "payment_verification_failed") {
		t.Fatalf("expected payment_verification_failed code, got %s", rr.Body.String())
	}
}
