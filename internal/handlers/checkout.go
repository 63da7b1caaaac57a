package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/platform/auth"
	"github.com/dheerghayush/naturals-api/internal/platform/httpx"
	"github.com/dheerghayush/naturals-api/internal/services"
)

const (
	maxCheckoutRequestBody = 64 * 1024

	defaultCheckoutRateLimit  = 30
	defaultCheckoutRateWindow = time.Minute
)

// CheckoutHandlers exposes gateway payment endpoints for authenticated users.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	limiter  rateLimiter
}

// CheckoutOption customises checkout handler construction.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutRateLimiter overrides the per-user payment intent rate limiter.
func WithCheckoutRateLimiter(limiter rateLimiter) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = limiter
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		limiter:  newSimpleRateLimiter(defaultCheckoutRateLimit, defaultCheckoutRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/checkout/payment-intent", h.createPaymentIntent)
	group.Post("/checkout/verify", h.verifyPayment)
}

type paymentIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"payment_method"`
}

type paymentIntentResponse struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PublicKey      string `json:"public_key,omitempty"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Provider       string `json:"provider"`
}

type verifyPaymentRequest struct {
	GatewayOrderID   string             `json:"gateway_order_id"`
	GatewayPaymentID string             `json:"gateway_payment_id"`
	Signature        string             `json:"signature"`
	Method           string             `json:"payment_method"`
	Order            createOrderRequest `json:"order"`
}

func (h *CheckoutHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many payment attempts, retry later", http.StatusTooManyRequests))
		return
	}

	req, ok := h.readCheckoutBody(w, r)
	if !ok {
		return
	}

	var intentReq paymentIntentRequest
	if err := json.Unmarshal(req, &intentReq); err != nil {
		writeInvalidRequest(w, r, "invalid JSON payload")
		return
	}

	intent, err := h.checkout.CreatePaymentIntent(ctx, services.CreatePaymentIntentCommand{
		UserID:   identity.UID,
		Amount:   intentReq.Amount,
		Currency: strings.TrimSpace(intentReq.Currency),
		Method:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(intentReq.Method))),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentIntentResponse{
		GatewayOrderID: intent.GatewayOrderID,
		PublicKey:      intent.PublicKey,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		Provider:       intent.Provider,
	})
}

func (h *CheckoutHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, ok := h.readCheckoutBody(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeInvalidRequest(w, r, "invalid JSON payload")
		return
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	order, err := h.checkout.VerifyAndCreateOrder(ctx, services.VerifyPaymentCommand{
		UserID:           identity.UID,
		GatewayOrderID:   strings.TrimSpace(req.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		Signature:        strings.TrimSpace(req.Signature),
		Method:           method,
		Order: services.CreateOrderCommand{
			UserID:        identity.UID,
			Customer:      req.Order.Customer.toDomain(),
			Items:         buildOrderItems(req.Order.Items),
			Currency:      strings.TrimSpace(req.Order.Currency),
			Subtotal:      req.Order.Subtotal,
			ShippingFee:   req.Order.ShippingFee,
			Total:         req.Order.Total,
			PaymentMethod: method,
			ActorID:       identity.UID,
		},
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *CheckoutHandlers) readCheckoutBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			writeInvalidRequest(w, r, "request body is required")
		default:
			writeInvalidRequest(w, r, "unable to read request body")
		}
		return nil, false
	}
	return body, true
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid checkout request", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "payment signature could not be verified", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be processed", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "payment gateway unavailable", http.StatusServiceUnavailable))
	default:
		writeOrderError(ctx, w, err)
	}
}
