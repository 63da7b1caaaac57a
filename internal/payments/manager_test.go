package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp    string
	intent    Intent
	refund    RefundResult
	payment   PaymentDetails
	verifyErr error
	err       error
}

func (f *fakeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	f.lastOp = "create"
	return f.intent, f.err
}

func (f *fakeProvider) VerifyPayment(ctx context.Context, req VerifyRequest) error {
	f.lastOp = "verify"
	return f.verifyErr
}

func (f *fakeProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	f.lastOp = "refund"
	return f.refund, f.err
}

func (f *fakeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func TestManagerCreateIntentUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{intent: Intent{ID: "order_rzp"}}
	stripe := &fakeProvider{intent: Intent{ID: "pi_stripe"}}

	mgr, err := NewManager(map[string]Provider{
		"razorpay": razorpay,
		"stripe":   stripe,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	intent, err := mgr.CreateIntent(ctx, PaymentContext{PreferredProvider: "stripe"}, IntentRequest{Currency: "USD"})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if intent.Provider != "stripe" {
		t.Fatalf("expected provider 'stripe', got %q", intent.Provider)
	}
	if stripe.lastOp != "create" {
		t.Fatalf("expected stripe provider to handle call")
	}
	if razorpay.lastOp != "" {
		t.Fatalf("expected razorpay provider to remain unused")
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{intent: Intent{ID: "order_rzp"}}
	stripe := &fakeProvider{intent: Intent{ID: "pi_stripe"}}

	mgr, err := NewManager(
		map[string]Provider{
			"razorpay": razorpay,
			"stripe":   stripe,
		},
		WithCurrencyRoutes(map[string]string{"USD": "stripe"}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	intent, err := mgr.CreateIntent(ctx, PaymentContext{Currency: "USD"}, IntentRequest{Currency: "USD"})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.Provider != "stripe" {
		t.Fatalf("expected provider 'stripe', got %q", intent.Provider)
	}
	if stripe.lastOp != "create" {
		t.Fatalf("expected stripe provider to handle call")
	}
}

func TestManagerFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{refund: RefundResult{Provider: "razorpay", RefundID: "rfnd_1"}}

	mgr, err := NewManager(map[string]Provider{"razorpay": razorpay})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	result, err := mgr.Refund(ctx, PaymentContext{}, RefundRequest{PaymentID: "pay_123"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if razorpay.lastOp != "refund" {
		t.Fatalf("expected refund to invoke default provider")
	}
	if result.RefundID != "rfnd_1" {
		t.Fatalf("unexpected refund id: %q", result.RefundID)
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(map[string]Provider{"razorpay": &fakeProvider{}, "stripe": &fakeProvider{}}, WithDefaultProvider(""))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.CreateIntent(ctx, PaymentContext{PreferredProvider: "unknown"}, IntentRequest{Currency: "USD"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerVerifyPaymentPropagatesMismatch(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{verifyErr: ErrSignatureMismatch}

	mgr, err := NewManager(map[string]Provider{"razorpay": razorpay})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	err = mgr.VerifyPayment(ctx, PaymentContext{}, VerifyRequest{IntentID: "order_1", PaymentID: "pay_1", Signature: "bad"})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}
