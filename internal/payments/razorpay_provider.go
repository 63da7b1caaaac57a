package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const razorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     RazorpayLogger
	Clock      func() time.Time
}

// RazorpayProvider implements the Provider interface against the Razorpay REST API.
type RazorpayProvider struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
	clock     func() time.Time
	logger    RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay: key id and key secret are required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = razorpayBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayProvider{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   baseURL,
		client:    httpClient,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayPayment struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	Captured       bool   `json:"captured"`
	CreatedAt      int64  `json:"created_at"`
}

type razorpayErrorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateIntent opens a Razorpay order that the client SDK captures against.
func (p *RazorpayProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("razorpay: provider is nil")
	}

	payload := map[string]any{
		"amount":          req.Amount,
		"currency":        strings.ToUpper(defaultString(req.Currency, "INR")),
		"payment_capture": 1,
	}
	if req.Receipt != "" {
		payload["receipt"] = req.Receipt
	}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}

	var order razorpayOrder
	if err := p.do(ctx, http.MethodPost, "/orders", payload, req.IdempotencyKey, &order); err != nil {
		return Intent{}, err
	}

	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"orderId":  order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})

	return Intent{
		ID:       order.ID,
		Provider: "razorpay",
		Amount:   order.Amount,
		Currency: order.Currency,
		Raw: map[string]any{
			"receipt": order.Receipt,
			"status":  order.Status,
		},
	}, nil
}

// VerifyPayment checks the checkout callback signature against the key secret.
// Razorpay signs "<order_id>|<payment_id>" with HMAC-SHA256.
func (p *RazorpayProvider) VerifyPayment(ctx context.Context, req VerifyRequest) error {
	if p == nil {
		return errors.New("razorpay: provider is nil")
	}
	if req.IntentID == "" || req.PaymentID == "" || req.Signature == "" {
		return fmt.Errorf("%w: missing callback fields", ErrSignatureMismatch)
	}

	mac := hmac.New(sha256.New, []byte(p.keySecret))
	mac.Write([]byte(req.IntentID + "|" + req.PaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(req.Signature)))) {
		p.logger(ctx, "payments.razorpay.verify.failed", map[string]any{
			"orderId":   req.IntentID,
			"paymentId": req.PaymentID,
		})
		return ErrSignatureMismatch
	}
	return nil
}

// Refund issues a refund against a captured payment.
func (p *RazorpayProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if p == nil {
		return RefundResult{}, errors.New("razorpay: provider is nil")
	}
	if strings.TrimSpace(req.PaymentID) == "" {
		return RefundResult{}, errors.New("razorpay: payment id is required")
	}

	payload := map[string]any{}
	if req.Amount != nil {
		payload["amount"] = *req.Amount
	}
	if req.IdempotencyKey != "" {
		payload["receipt"] = req.IdempotencyKey
	}
	notes := map[string]string{}
	for k, v := range req.Metadata {
		notes[k] = v
	}
	if req.Reason != "" {
		notes["reason"] = req.Reason
	}
	if len(notes) > 0 {
		payload["notes"] = notes
	}

	var refund razorpayRefund
	path := fmt.Sprintf("/payments/%s/refund", req.PaymentID)
	if err := p.do(ctx, http.MethodPost, path, payload, req.IdempotencyKey, &refund); err != nil {
		return RefundResult{}, err
	}

	p.logger(ctx, "payments.razorpay.refund.created", map[string]any{
		"refundId":  refund.ID,
		"paymentId": refund.PaymentID,
		"amount":    refund.Amount,
	})

	status := StatusRefunded
	if refund.Status == "failed" {
		status = StatusFailed
	}

	createdAt := p.clock()
	if refund.CreatedAt != 0 {
		createdAt = time.Unix(refund.CreatedAt, 0).UTC()
	}

	return RefundResult{
		Provider:  "razorpay",
		PaymentID: refund.PaymentID,
		RefundID:  refund.ID,
		Status:    status,
		Amount:    refund.Amount,
		Currency:  refund.Currency,
		CreatedAt: createdAt,
		Raw: map[string]any{
			"status": refund.Status,
		},
	}, nil
}

// LookupPayment retrieves a payment for reconciliation.
func (p *RazorpayProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("razorpay: provider is nil")
	}
	if strings.TrimSpace(req.PaymentID) == "" {
		return PaymentDetails{}, errors.New("razorpay: payment id is required")
	}

	var payment razorpayPayment
	if err := p.do(ctx, http.MethodGet, "/payments/"+req.PaymentID, nil, "", &payment); err != nil {
		return PaymentDetails{}, err
	}

	status := StatusPending
	switch payment.Status {
	case "captured", "authorized":
		status = StatusSucceeded
	case "failed":
		status = StatusFailed
	case "refunded":
		status = StatusRefunded
	}
	if payment.AmountRefunded >= payment.Amount && payment.Amount > 0 {
		status = StatusRefunded
	}

	var capturedAt *time.Time
	if payment.Captured && payment.CreatedAt != 0 {
		t := time.Unix(payment.CreatedAt, 0).UTC()
		capturedAt = &t
	}

	return PaymentDetails{
		Provider:   "razorpay",
		PaymentID:  payment.ID,
		IntentID:   payment.OrderID,
		Status:     status,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		Captured:   payment.Captured,
		CapturedAt: capturedAt,
		Raw: map[string]any{
			"status":         payment.Status,
			"amountRefunded": payment.AmountRefunded,
		},
	}, nil
}

func (p *RazorpayProvider) do(ctx context.Context, method, path string, payload any, idempotencyKey string, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("razorpay: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("razorpay: build request: %w", err)
	}
	req.SetBasicAuth(p.keyID, p.keySecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Request-Id", idempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("razorpay: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope razorpayErrorEnvelope
		_ = json.Unmarshal(data, &envelope)
		gatewayErr := &GatewayError{
			Provider: "razorpay",
			Code:     envelope.Error.Code,
			Message:  envelope.Error.Description,
		}
		if gatewayErr.Message == "" {
			gatewayErr.Message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return gatewayErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("razorpay: decode response: %w", err)
		}
	}
	return nil
}
