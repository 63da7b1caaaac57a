package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/payments"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutPaymentFailed indicates the gateway rejected the payment operation.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutVerificationFailed indicates the gateway callback could not be verified.
	ErrCheckoutVerificationFailed = errors.New("checkout: payment verification failed")
)

// checkoutGateway abstracts payments.Manager for easier testing.
type checkoutGateway interface {
	CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
	VerifyPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.VerifyRequest) error
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders     OrderService
	Gateway    checkoutGateway
	PublicKeys map[string]string
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders     OrderService
	gateway    checkoutGateway
	publicKeys map[string]string
	now        func() time.Time
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:     deps.Orders,
		gateway:    deps.Gateway,
		publicKeys: deps.PublicKeys,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreatePaymentIntent opens a gateway order for the amount the client is about to pay.
func (s *checkoutService) CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error) {
	if s == nil || s.gateway == nil {
		return PaymentIntent{}, ErrCheckoutUnavailable
	}

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PaymentIntent{}, ErrCheckoutInvalidInput
	}
	if cmd.Amount <= 0 {
		return PaymentIntent{}, fmt.Errorf("%w: amount must be positive", ErrCheckoutInvalidInput)
	}
	if !cmd.Method.IsGateway() {
		return PaymentIntent{}, fmt.Errorf("%w: payment method %q does not use the gateway", ErrCheckoutInvalidInput, cmd.Method)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = "INR"
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.PaymentContext{
		PreferredProvider: string(cmd.Method),
		Currency:          currency,
	}, payments.IntentRequest{
		Amount:   cmd.Amount,
		Currency: currency,
		Notes: map[string]string{
			"userId": userID,
		},
	})
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return PaymentIntent{}, ErrCheckoutInvalidInput
		}
		s.logger(ctx, "checkout.intent.failed", map[string]any{
			"userID": userID,
			"error":  err.Error(),
		})
		return PaymentIntent{}, ErrCheckoutPaymentFailed
	}

	return PaymentIntent{
		GatewayOrderID: intent.ID,
		PublicKey:      s.publicKeys[intent.Provider],
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		Provider:       intent.Provider,
	}, nil
}

// VerifyAndCreateOrder checks the gateway callback signature and, only once it
// verifies, persists the order as paid. A failed verification creates nothing.
func (s *checkoutService) VerifyAndCreateOrder(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	if s == nil || s.gateway == nil || s.orders == nil {
		return Order{}, ErrCheckoutUnavailable
	}

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, ErrCheckoutInvalidInput
	}
	if strings.TrimSpace(cmd.GatewayOrderID) == "" || strings.TrimSpace(cmd.GatewayPaymentID) == "" {
		return Order{}, fmt.Errorf("%w: gateway references are required", ErrCheckoutInvalidInput)
	}
	if !cmd.Method.IsGateway() {
		return Order{}, fmt.Errorf("%w: payment method %q does not use the gateway", ErrCheckoutInvalidInput, cmd.Method)
	}

	err := s.gateway.VerifyPayment(ctx, payments.PaymentContext{
		PreferredProvider: string(cmd.Method),
		Currency:          cmd.Order.Currency,
	}, payments.VerifyRequest{
		IntentID:  cmd.GatewayOrderID,
		PaymentID: cmd.GatewayPaymentID,
		Signature: cmd.Signature,
	})
	if err != nil {
		s.logger(ctx, "checkout.verify.failed", map[string]any{
			"userID":         userID,
			"gatewayOrderID": cmd.GatewayOrderID,
			"error":          err.Error(),
		})
		if errors.Is(err, payments.ErrSignatureMismatch) {
			return Order{}, fmt.Errorf("%w: %v", ErrCheckoutVerificationFailed, err)
		}
		return Order{}, ErrCheckoutPaymentFailed
	}

	draft := cmd.Order
	draft.UserID = userID
	draft.PaymentMethod = cmd.Method
	draft.PaymentStatus = domain.PaymentStatusPaid
	draft.Gateway = GatewayRefs{
		Provider:  string(cmd.Method),
		OrderID:   cmd.GatewayOrderID,
		PaymentID: cmd.GatewayPaymentID,
	}

	order, err := s.orders.Create(ctx, draft)
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "checkout.order.created", map[string]any{
		"order":          order.ID,
		"gatewayOrderID": cmd.GatewayOrderID,
	})
	return order, nil
}
