package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/platform/auth"
	"github.com/dheerghayush/naturals-api/internal/platform/httpx"
	"github.com/dheerghayush/naturals-api/internal/services"
)

const maxAdminOrderBodySize = 16 * 1024

// AdminOrderHandlers exposes back-office order management endpoints.
type AdminOrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	refunds services.RefundService
	system  services.SystemService
	audit   services.AuditLogService
}

// AdminOrderHandlersDeps bundles collaborators for admin order handlers.
type AdminOrderHandlersDeps struct {
	Authenticator *auth.Authenticator
	Orders        services.OrderService
	Refunds       services.RefundService
	System        services.SystemService
	Audit         services.AuditLogService
}

// NewAdminOrderHandlers constructs admin order handlers.
func NewAdminOrderHandlers(deps AdminOrderHandlersDeps) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:   deps.Authenticator,
		orders:  deps.Orders,
		refunds: deps.Refunds,
		system:  deps.System,
		audit:   deps.Audit,
	}
}

// Routes registers admin order endpoints. Callers mount these under a group
// that already enforces the admin role.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/refunds", h.listRefundQueue)
	r.Get("/orders/replacements", h.listReplacementQueue)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}", h.updateOrder)
	r.Post("/orders/{orderID}:process-refund", h.processRefund)
	r.Post("/orders/{orderID}:retry-refund", h.retryRefund)
	r.Get("/stats", h.dashboardStats)
	r.Get("/audit-logs", h.listAuditLogs)
}

type adminUpdateOrderRequest struct {
	Status        *string `json:"status"`
	PaymentStatus *string `json:"payment_status"`
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	h.listFiltered(w, r, func(filter *services.OrderListFilter, query map[string][]string) error {
		if values, ok := query["user_id"]; ok && len(values) > 0 {
			filter.UserID = strings.TrimSpace(values[0])
		}
		statuses, err := parseOrderStatusFilters(query["status"])
		if err != nil {
			return err
		}
		filter.Statuses = statuses
		return nil
	})
}

func (h *AdminOrderHandlers) listRefundQueue(w http.ResponseWriter, r *http.Request) {
	h.listFiltered(w, r, func(filter *services.OrderListFilter, query map[string][]string) error {
		filter.RefundQueueOnly = true
		return nil
	})
}

func (h *AdminOrderHandlers) listReplacementQueue(w http.ResponseWriter, r *http.Request) {
	h.listFiltered(w, r, func(filter *services.OrderListFilter, query map[string][]string) error {
		filter.ReplacementsOnly = true
		return nil
	})
}

func (h *AdminOrderHandlers) listFiltered(w http.ResponseWriter, r *http.Request, apply func(*services.OrderListFilter, map[string][]string) error) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			writeInvalidRequest(w, r, "created_after must be a valid RFC3339 timestamp")
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			writeInvalidRequest(w, r, "created_before must be a valid RFC3339 timestamp")
			return
		}
		dateRange.To = &ts
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		writeInvalidRequest(w, r, err.Error())
		return
	}

	filter := services.OrderListFilter{
		DateRange: dateRange,
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if apply != nil {
		if err := apply(&filter, query); err != nil {
			writeInvalidRequest(w, r, err.Error())
			return
		}
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]adminOrderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildAdminOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, adminOrderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAdminOrderPayload(order))
}

func (h *AdminOrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			writeInvalidRequest(w, r, "request body is required")
		default:
			writeInvalidRequest(w, r, "unable to read request body")
		}
		return
	}

	var req adminUpdateOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeInvalidRequest(w, r, "invalid JSON payload")
		return
	}
	if req.Status == nil && req.PaymentStatus == nil {
		writeInvalidRequest(w, r, "status or payment_status is required")
		return
	}

	cmd := services.AdminUpdateOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: identity.UID,
	}
	if req.Status != nil {
		status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		if _, ok := validOrderStatuses[status]; !ok {
			writeInvalidRequest(w, r, "unknown order status")
			return
		}
		cmd.Status = &status
	}
	if req.PaymentStatus != nil {
		paymentStatus := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(*req.PaymentStatus)))
		switch paymentStatus {
		case domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusFailed:
		default:
			writeInvalidRequest(w, r, "unknown payment status")
			return
		}
		cmd.PaymentStatus = &paymentStatus
	}

	order, err := h.orders.AdminUpdate(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	metadata := map[string]any{}
	if cmd.Status != nil {
		metadata["status"] = string(*cmd.Status)
	}
	if cmd.PaymentStatus != nil {
		metadata["payment_status"] = string(*cmd.PaymentStatus)
	}
	h.recordAudit(r, identity, "order.updated", "order:"+order.ID, metadata)
	writeJSONResponse(w, http.StatusOK, buildAdminOrderPayload(order))
}

func (h *AdminOrderHandlers) processRefund(w http.ResponseWriter, r *http.Request) {
	h.runRefund(w, r, "order.refund.processed", func(ctx context.Context, cmd services.ProcessRefundCommand) (domain.Order, error) {
		return h.refunds.ProcessRefund(ctx, cmd)
	})
}

func (h *AdminOrderHandlers) retryRefund(w http.ResponseWriter, r *http.Request) {
	h.runRefund(w, r, "order.refund.retried", func(ctx context.Context, cmd services.ProcessRefundCommand) (domain.Order, error) {
		return h.refunds.RetryRefund(ctx, cmd)
	})
}

func (h *AdminOrderHandlers) runRefund(w http.ResponseWriter, r *http.Request, action string, run func(context.Context, services.ProcessRefundCommand) (domain.Order, error)) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("refund_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := run(ctx, services.ProcessRefundCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: identity.UID,
	})
	if err != nil {
		writeRefundError(ctx, w, err)
		return
	}

	h.recordAudit(r, identity, action, "order:"+order.ID, map[string]any{
		"refund_status":   string(order.RefundStatus),
		"refund_attempts": order.RefundAttempts,
	})
	writeJSONResponse(w, http.StatusOK, buildAdminOrderPayload(order))
}

func (h *AdminOrderHandlers) dashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	stats, err := h.orders.Stats(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, dashboardStatsPayload{
		TotalOrders:      stats.TotalOrders,
		PaidRevenue:      stats.PaidRevenue,
		PendingRefunds:   stats.PendingRefunds,
		OpenReplacements: stats.OpenReplacements,
		GeneratedAt:      formatTime(stats.GeneratedAt),
	})
}

func (h *AdminOrderHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_service_unavailable", "system service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		writeInvalidRequest(w, r, err.Error())
		return
	}

	filter := services.AuditLogFilter{
		TargetRef: strings.TrimSpace(query.Get("target")),
		Actor:     strings.TrimSpace(query.Get("actor")),
		ActorType: strings.TrimSpace(query.Get("actor_type")),
		Action:    strings.TrimSpace(query.Get("action")),
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			writeInvalidRequest(w, r, "created_after must be a valid RFC3339 timestamp")
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			writeInvalidRequest(w, r, "created_before must be a valid RFC3339 timestamp")
			return
		}
		filter.DateRange.To = &ts
	}

	page, err := h.system.ListAuditLogs(ctx, filter)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_log_error", "unable to list audit logs", http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildAuditLogPayload(entry))
	}
	writeJSONResponse(w, http.StatusOK, auditLogListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminOrderHandlers) recordAudit(r *http.Request, identity *auth.Identity, action, targetRef string, metadata map[string]any) {
	if h.audit == nil {
		return
	}
	h.audit.Record(r.Context(), services.AuditLogRecord{
		Actor:     identity.UID,
		ActorType: "admin",
		Action:    action,
		TargetRef: targetRef,
		RequestID: middleware.GetReqID(r.Context()),
		Metadata:  cloneMap(metadata),
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}

func writeRefundError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrRefundNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("refund_not_eligible", "order is not eligible for a refund", http.StatusConflict))
	case errors.Is(err, services.ErrRefundInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("refund_invalid_state", "refund state does not allow this action", http.StatusConflict))
	default:
		writeOrderError(ctx, w, err)
	}
}

type adminOrderListResponse struct {
	Items         []adminOrderPayload `json:"items"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

// adminOrderPayload extends the customer order payload with fields the
// storefront never sees, in particular the internal refund diagnostics.
type adminOrderPayload struct {
	orderPayload

	UserID              string `json:"user_id"`
	RefundErrorInternal string `json:"refund_error_internal,omitempty"`
	RefundAttempts      int    `json:"refund_attempts,omitempty"`
	GatewayProvider     string `json:"gateway_provider,omitempty"`
	GatewayOrderID      string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID    string `json:"gateway_payment_id,omitempty"`
	GatewayRefundID     string `json:"gateway_refund_id,omitempty"`
}

type dashboardStatsPayload struct {
	TotalOrders      int64  `json:"total_orders"`
	PaidRevenue      int64  `json:"paid_revenue"`
	PendingRefunds   int64  `json:"pending_refunds"`
	OpenReplacements int64  `json:"open_replacements"`
	GeneratedAt      string `json:"generated_at,omitempty"`
}

type auditLogListResponse struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type auditLogPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	ActorType string         `json:"actor_type,omitempty"`
	Action    string         `json:"action"`
	TargetRef string         `json:"target,omitempty"`
	Severity  string         `json:"severity,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func buildAdminOrderPayload(order domain.Order) adminOrderPayload {
	return adminOrderPayload{
		orderPayload:        buildOrderPayload(order),
		UserID:              order.UserID,
		RefundErrorInternal: order.RefundErrorInternal,
		RefundAttempts:      order.RefundAttempts,
		GatewayProvider:     order.Gateway.Provider,
		GatewayOrderID:      order.Gateway.OrderID,
		GatewayPaymentID:    order.Gateway.PaymentID,
		GatewayRefundID:     order.Gateway.RefundID,
	}
}

func buildAuditLogPayload(entry domain.AuditLogEntry) auditLogPayload {
	return auditLogPayload{
		ID:        entry.ID,
		Actor:     entry.Actor,
		ActorType: entry.ActorType,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		Metadata:  cloneMap(entry.Metadata),
		CreatedAt: formatTime(entry.CreatedAt),
	}
}
