package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dheerghayush/naturals-api/internal/platform/httpx"
	"github.com/dheerghayush/naturals-api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// PaymentWebhookHandlers ingests asynchronous gateway callbacks. Refund events
// drive the refund sub-lifecycle forward when the synchronous transfer raced
// the gateway's own settlement.
type PaymentWebhookHandlers struct {
	refunds services.RefundService
}

// NewPaymentWebhookHandlers constructs webhook handlers backed by the refund service.
func NewPaymentWebhookHandlers(refunds services.RefundService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{refunds: refunds}
}

// Routes registers the webhook endpoints on the supplied router.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	r.Post("/payments/{provider}", h.handlePaymentEvent)
}

type webhookEventEnvelope struct {
	// Razorpay envelope fields.
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`

	// Stripe envelope fields.
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type webhookAckResponse struct {
	Status string `json:"status"`
}

func (h *PaymentWebhookHandlers) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	if provider == "" {
		writeInvalidRequest(w, r, "payment provider is required")
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeWebhookBodyError(w, r, err)
		return
	}

	var envelope webhookEventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeInvalidRequest(w, r, "request body must be valid JSON")
		return
	}

	eventName := envelope.Event
	if eventName == "" {
		eventName = envelope.Type
	}
	if !isRefundEvent(eventName) {
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Status: "ignored"})
		return
	}

	orderID := extractWebhookOrderID(envelope)
	if orderID == "" {
		writeInvalidRequest(w, r, "webhook payload does not reference an order")
		return
	}

	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "refund processing is not configured", http.StatusServiceUnavailable))
		return
	}

	_, err = h.refunds.ProcessRefund(ctx, services.ProcessRefundCommand{
		OrderID: orderID,
		ActorID: "webhook:" + provider,
	})
	if err != nil {
		// Replays of settled refunds are expected; everything else surfaces
		// so the gateway retries delivery.
		if errors.Is(err, services.ErrRefundInvalidState) {
			writeJSONResponse(w, http.StatusOK, webhookAckResponse{Status: "ignored"})
			return
		}
		writeRefundError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookAckResponse{Status: "processed"})
}

func isRefundEvent(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "refund.processed", "refund.created", "refund.failed", "charge.refunded", "charge.refund.updated":
		return true
	default:
		return false
	}
}

// extractWebhookOrderID digs the order reference out of the provider-specific
// payload shape. Razorpay carries it in entity notes, Stripe in metadata.
func extractWebhookOrderID(envelope webhookEventEnvelope) string {
	if len(envelope.Payload) > 0 {
		var payload struct {
			Refund struct {
				Entity struct {
					Notes map[string]string `json:"notes"`
				} `json:"entity"`
			} `json:"refund"`
			Payment struct {
				Entity struct {
					Notes map[string]string `json:"notes"`
				} `json:"entity"`
			} `json:"payment"`
		}
		if err := json.Unmarshal(envelope.Payload, &payload); err == nil {
			if id := orderIDFromKeys(payload.Refund.Entity.Notes); id != "" {
				return id
			}
			if id := orderIDFromKeys(payload.Payment.Entity.Notes); id != "" {
				return id
			}
		}
	}

	if len(envelope.Data) > 0 {
		var data struct {
			Object struct {
				Metadata map[string]string `json:"metadata"`
			} `json:"object"`
		}
		if err := json.Unmarshal(envelope.Data, &data); err == nil {
			if id := orderIDFromKeys(data.Object.Metadata); id != "" {
				return id
			}
		}
	}

	return ""
}

func orderIDFromKeys(values map[string]string) string {
	for _, key := range []string{"orderId", "order_id"} {
		if id := strings.TrimSpace(values[key]); id != "" {
			return id
		}
	}
	return ""
}

func writeWebhookBodyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "request body exceeds the permitted size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		writeInvalidRequest(w, r, "request body is required")
	default:
		writeInvalidRequest(w, r, "request body could not be read")
	}
}
