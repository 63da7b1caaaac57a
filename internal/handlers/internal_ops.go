package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dheerghayush/naturals-api/internal/platform/httpx"
	"github.com/dheerghayush/naturals-api/internal/services"
)

const maxInternalBodySize = 4 * 1024

// ReconcileFunc forces an immediate sweep of the pending refund queue.
type ReconcileFunc func(ctx context.Context) error

// InternalOpsHandlers exposes server-to-server operations consumed by
// schedulers and back-office tooling, never by storefront clients.
type InternalOpsHandlers struct {
	system    services.SystemService
	reconcile ReconcileFunc
}

// NewInternalOpsHandlers constructs the internal operations handlers.
func NewInternalOpsHandlers(system services.SystemService, reconcile ReconcileFunc) *InternalOpsHandlers {
	return &InternalOpsHandlers{system: system, reconcile: reconcile}
}

// Routes registers the internal endpoints on the supplied router.
func (h *InternalOpsHandlers) Routes(r chi.Router) {
	r.Post("/refunds:reconcile", h.reconcileRefunds)
	r.Post("/counters/{counterID}:next", h.nextCounterValue)
}

func (h *InternalOpsHandlers) reconcileRefunds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconcile == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconcile_unavailable", "refund reconciliation is not configured", http.StatusServiceUnavailable))
		return
	}
	if err := h.reconcile(ctx); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconcile_failed", "refund reconciliation sweep failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"status": "reconciling"})
}

type counterNextRequest struct {
	Step int64 `json:"step"`
}

type counterNextResponse struct {
	CounterID string `json:"counter_id"`
	Value     int64  `json:"value"`
}

func (h *InternalOpsHandlers) nextCounterValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counterID := strings.TrimSpace(chi.URLParam(r, "counterID"))
	if counterID == "" {
		writeInvalidRequest(w, r, "counter id is required")
		return
	}
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("counters_unavailable", "counter service is not configured", http.StatusServiceUnavailable))
		return
	}

	var req counterNextRequest
	body, err := readLimitedBody(r, maxInternalBodySize)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &req); err != nil {
			writeInvalidRequest(w, r, "request body must be valid JSON")
			return
		}
	case errors.Is(err, errEmptyBody):
		// Empty body means a default single-step increment.
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge))
		return
	default:
		writeInvalidRequest(w, r, "unable to read request body")
		return
	}

	value, err := h.system.NextCounterValue(ctx, services.CounterCommand{
		CounterID: counterID,
		Step:      req.Step,
	})
	if err != nil {
		writeCounterError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, counterNextResponse{CounterID: counterID, Value: value})
}

func writeCounterError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCounterInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCounterExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("counter_exhausted", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("counter_error", "counter increment failed", http.StatusInternalServerError))
	}
}
