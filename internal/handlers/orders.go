package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	defaultOrderPageSize  = 20
	maxOrderPageSize      = 100
	maxOrderBodySize      = 64 * 1024
	maxOrderSmallBodySize = 4 * 1024
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:                      {},
	domain.OrderStatusConfirmed:                    {},
	domain.OrderStatusProcessing:                   {},
	domain.OrderStatusShipped:                      {},
	domain.OrderStatusOutForDelivery:               {},
	domain.OrderStatusDelivered:                    {},
	domain.OrderStatusCancelled:                    {},
	domain.OrderStatusReplacementRequested:         {},
	domain.OrderStatusReplacementAccepted:          {},
	domain.OrderStatusReplacementRejected:          {},
	domain.OrderStatusReplacementProcessing:        {},
	domain.OrderStatusReplacementShipped:           {},
	domain.OrderStatusReplacementOutForDelivery:    {},
	domain.OrderStatusReplacementDelivered:         {},
}

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/tracking", h.trackOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:replace", h.requestReplacement)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	statuses, err := parseOrderStatusFilters(query["status"])
	if err != nil {
		writeInvalidRequest(w, r, err.Error())
		return
	}

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
		UserID:    identity.UID,
		Statuses:  statuses,
		DateRange: dateRange,
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
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

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeInvalidRequest(w, r, "invalid JSON payload")
		return
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	if method == "" {
		method = domain.PaymentMethodCOD
	}
	if method != domain.PaymentMethodCOD {
		writeInvalidRequest(w, r, "gateway payments must go through checkout verification")
		return
	}

	cmd := services.CreateOrderCommand{
		UserID:        identity.UID,
		Customer:      req.Customer.toDomain(),
		Items:         buildOrderItems(req.Items),
		Currency:      strings.TrimSpace(req.Currency),
		Subtotal:      req.Subtotal,
		ShippingFee:   req.ShippingFee,
		Total:         req.Total,
		PaymentMethod: method,
		PaymentStatus: domain.PaymentStatusPending,
		ActorID:       identity.UID,
	}

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{ForUser: identity.UID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) trackOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	projection, err := h.orders.Track(ctx, orderID, services.OrderReadOptions{ForUser: identity.UID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildTrackingPayload(projection))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	req, ok := h.readReasonBody(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		UserID:  identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) requestReplacement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	req, ok := h.readReasonBody(w, r)
	if !ok {
		return
	}

	order, err := h.orders.RequestReplacement(ctx, services.RequestReplacementCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		UserID:  identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type orderReasonRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) readReasonBody(w http.ResponseWriter, r *http.Request) (orderReasonRequest, bool) {
	ctx := r.Context()
	var req orderReasonRequest

	body, err := readLimitedBody(r, maxOrderSmallBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			writeInvalidRequest(w, r, "reason is required")
		default:
			writeInvalidRequest(w, r, "unable to read request body")
		}
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeInvalidRequest(w, r, "invalid JSON payload")
		return req, false
	}
	return req, true
}

func parseOrderStatusFilters(values []string) ([]domain.OrderStatus, error) {
	filters := parseFilterValues(values)
	if len(filters) == 0 {
		return nil, nil
	}
	statuses := make([]domain.OrderStatus, 0, len(filters))
	for _, filter := range filters {
		status := domain.OrderStatus(filter)
		if _, ok := validOrderStatuses[status]; !ok {
			return nil, fmt.Errorf("unknown status filter %q", filter)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid order request", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", "order state does not allow this action", http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "unable to process order request", http.StatusInternalServerError))
	}
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	Number        string `json:"number"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	RefundStatus  string `json:"refund_status,omitempty"`
	Currency      string `json:"currency"`
	Total         int64  `json:"total"`
	ItemCount     int    `json:"item_count"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	WeightGrams int    `json:"weight_grams,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type customerPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

func (p customerPayload) toDomain() domain.CustomerInfo {
	return domain.CustomerInfo{
		Name:    strings.TrimSpace(p.Name),
		Email:   strings.TrimSpace(p.Email),
		Phone:   strings.TrimSpace(p.Phone),
		Address: strings.TrimSpace(p.Address),
		City:    strings.TrimSpace(p.City),
		State:   strings.TrimSpace(p.State),
		Pincode: strings.TrimSpace(p.Pincode),
	}
}

type trackingEventPayload struct {
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Location    string `json:"location,omitempty"`
	Completed   bool   `json:"completed"`
}

type orderPayload struct {
	ID                     string                 `json:"id"`
	Number                 string                 `json:"number"`
	Status                 string                 `json:"status"`
	PaymentMethod          string                 `json:"payment_method"`
	PaymentStatus          string                 `json:"payment_status"`
	RefundStatus           string                 `json:"refund_status,omitempty"`
	RefundError            string                 `json:"refund_error,omitempty"`
	Items                  []orderItemPayload     `json:"items"`
	Customer               customerPayload        `json:"customer"`
	Currency               string                 `json:"currency"`
	Subtotal               int64                  `json:"subtotal"`
	ShippingFee            int64                  `json:"shipping_fee"`
	Total                  int64                  `json:"total"`
	TrackingEvents         []trackingEventPayload `json:"tracking_events,omitempty"`
	CancelReason           string                 `json:"cancel_reason,omitempty"`
	CancelledAt            string                 `json:"cancelled_at,omitempty"`
	ReplacementReason      string                 `json:"replacement_reason,omitempty"`
	ReplacementRequestedAt string                 `json:"replacement_requested_at,omitempty"`
	CreatedAt              string                 `json:"created_at"`
	UpdatedAt              string                 `json:"updated_at,omitempty"`
}

type trackingPayload struct {
	OrderID           string                 `json:"order_id"`
	Status            string                 `json:"status"`
	Events            []trackingEventPayload `json:"events"`
	EstimatedDelivery string                 `json:"estimated_delivery,omitempty"`
}

type createOrderRequest struct {
	Customer      customerPayload    `json:"customer"`
	Items         []orderItemPayload `json:"items"`
	Currency      string             `json:"currency"`
	Subtotal      int64              `json:"subtotal"`
	ShippingFee   int64              `json:"shipping_fee"`
	Total         int64              `json:"total"`
	PaymentMethod string             `json:"payment_method"`
}

func buildOrderItems(items []orderItemPayload) []domain.OrderItem {
	if len(items) == 0 {
		return nil
	}
	built := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		built = append(built, domain.OrderItem{
			ProductID:   strings.TrimSpace(item.ProductID),
			Name:        strings.TrimSpace(item.Name),
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			WeightGrams: item.WeightGrams,
			ImageURL:    strings.TrimSpace(item.ImageURL),
		})
	}
	return built
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		Number:        order.Number,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		RefundStatus:  string(order.RefundStatus),
		Currency:      order.Currency,
		Total:         order.Total,
		ItemCount:     len(order.Items),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:   item.ProductID,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			WeightGrams: item.WeightGrams,
			ImageURL:    item.ImageURL,
		})
	}

	return orderPayload{
		ID:            order.ID,
		Number:        order.Number,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		RefundStatus:  string(order.RefundStatus),
		RefundError:   order.RefundError,
		Items:         items,
		Customer: customerPayload{
			Name:    order.Customer.Name,
			Email:   order.Customer.Email,
			Phone:   order.Customer.Phone,
			Address: order.Customer.Address,
			City:    order.Customer.City,
			State:   order.Customer.State,
			Pincode: order.Customer.Pincode,
		},
		Currency:               order.Currency,
		Subtotal:               order.Subtotal,
		ShippingFee:            order.ShippingFee,
		Total:                  order.Total,
		TrackingEvents:         buildTrackingEvents(order.TrackingEvents),
		CancelReason:           order.CancelReason,
		CancelledAt:            formatTime(pointerTime(order.CancelledAt)),
		ReplacementReason:      order.ReplacementReason,
		ReplacementRequestedAt: formatTime(pointerTime(order.ReplacementRequestedAt)),
		CreatedAt:              formatTime(order.CreatedAt),
		UpdatedAt:              formatTime(order.UpdatedAt),
	}
}

func buildTrackingEvents(events []domain.TrackingEvent) []trackingEventPayload {
	if len(events) == 0 {
		return nil
	}
	built := make([]trackingEventPayload, 0, len(events))
	for _, event := range events {
		built = append(built, trackingEventPayload{
			Status:      string(event.Status),
			Description: event.Description,
			Timestamp:   formatTime(event.Timestamp),
			Location:    event.Location,
			Completed:   event.Completed,
		})
	}
	return built
}

func buildTrackingPayload(projection domain.TrackingProjection) trackingPayload {
	events := buildTrackingEvents(projection.Events)
	if events == nil {
		events = []trackingEventPayload{}
	}
	return trackingPayload{
		OrderID:           projection.OrderID,
		Status:            string(projection.Status),
		Events:            events,
		EstimatedDelivery: formatTime(projection.EstimatedDelivery),
	}
}
