package handlers

import (
	"bytes"
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
	"github.com/dheerghayush/naturals-api/internal/platform/auth"
	"github.com/dheerghayush/naturals-api/internal/services"
)

type stubOrderService struct {
	createFn      func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn         func(context.Context, string, services.OrderReadOptions) (services.Order, error)
	listFn        func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	cancelFn      func(context.Context, services.CancelOrderCommand) (services.Order, error)
	replacementFn func(context.Context, services.RequestReplacementCommand) (services.Order, error)
	adminUpdateFn func(context.Context, services.AdminUpdateOrderCommand) (services.Order, error)
	trackFn       func(context.Context, string, services.OrderReadOptions) (services.TrackingProjection, error)
	statsFn       func(context.Context) (services.DashboardStats, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, opts)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) RequestReplacement(ctx context.Context, cmd services.RequestReplacementCommand) (services.Order, error) {
	if s.replacementFn != nil {
		return s.replacementFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) AdminUpdate(ctx context.Context, cmd services.AdminUpdateOrderCommand) (services.Order, error) {
	if s.adminUpdateFn != nil {
		return s.adminUpdateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Track(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.TrackingProjection, error) {
	if s.trackFn != nil {
		return s.trackFn(ctx, orderID, opts)
	}
	return services.TrackingProjection{}, errors.New("not implemented")
}

func (s *stubOrderService) Stats(ctx context.Context) (services.DashboardStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return services.DashboardStats{}, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

func newOrderRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	handlers := NewOrderHandlers(nil, svc)
	r.Route("/orders", handlers.Routes)
	return r
}

func authedRequest(method, target string, body []byte) *http.Request {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
}

func TestListOrdersAppliesFilters(t *testing.T) {
	var captured services.OrderListFilter
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{
				Items: []services.Order{{
					ID:        "ord_1",
					Number:    "DN-2025-000042",
					Status:    domain.OrderStatusShipped,
					Currency:  "INR",
					Total:     500,
					CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
				}},
				NextPageToken: "next-token",
			}, nil
		},
	}

	router := newOrderRouter(svc)
	req := authedRequest(http.MethodGet, "/orders?status=shipped,delivered&page_size=5&created_after=2025-01-01T00:00:00Z", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected user filter user-1, got %q", captured.UserID)
	}
	if len(captured.Statuses) != 2 || captured.Statuses[0] != domain.OrderStatusShipped || captured.Statuses[1] != domain.OrderStatusDelivered {
		t.Fatalf("unexpected status filters: %v", captured.Statuses)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", captured.Pagination.PageSize)
	}
	if captured.DateRange.From == nil || !captured.DateRange.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date range: %+v", captured.DateRange)
	}

	var body orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Number != "DN-2025-000042" {
		t.Fatalf("unexpected items: %+v", body.Items)
	}
	if body.NextPageToken != "next-token" {
		t.Fatalf("expected next page token, got %q", body.NextPageToken)
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})
	req := authedRequest(http.MethodGet, "/orders?status=sideways", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListOrdersRequiresIdentity(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCreateOrderSubmitsCODCommand(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:            "ord_new",
				Number:        "DN-2025-000001",
				Status:        domain.OrderStatusPending,
				PaymentMethod: domain.PaymentMethodCOD,
				PaymentStatus: domain.PaymentStatusPending,
				Subtotal:      450,
				ShippingFee:   50,
				Total:         500,
				Currency:      "INR",
			}, nil
		},
	}

	payload := `{
		"customer": {"name": "Asha", "email": "asha@example.com", "phone": "9999999999", "address": "12 Lane", "city": "Pune", "state": "MH", "pincode": "411001"},
		"items": [{"product_id": "prd_1", "name": "Herbal Soap", "unit_price": 225, "quantity": 2}],
		"currency": "INR",
		"subtotal": 450,
		"shipping_fee": 50,
		"total": 500,
		"payment_method": "cod"
	}`

	router := newOrderRouter(svc)
	req := authedRequest(http.MethodPost, "/orders", []byte(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.ActorID != "user-1" {
		t.Fatalf("expected identity propagated, got %+v", captured)
	}
	if captured.PaymentMethod != domain.PaymentMethodCOD {
		t.Fatalf("expected cod payment method, got %s", captured.PaymentMethod)
	}
	if captured.Total != 500 || captured.Subtotal != 450 || captured.ShippingFee != 50 {
		t.Fatalf("unexpected amounts: %+v", captured)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}

	var body orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Number != "DN-2025-000001" {
		t.Fatalf("expected order number in response, got %q", body.Number)
	}
}

func TestCreateOrderRejectsGatewayMethod(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})
	req := authedRequest(http.MethodPost, "/orders", []byte(`{"payment_method": "razorpay", "total": 500}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "checkout") {
		t.Fatalf("expected checkout redirect hint, got %s", rr.Body.String())
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string, services.OrderReadOptions) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	router := newOrderRouter(svc)
	req := authedRequest(http.MethodGet, "/orders/ord_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "order_not_found") {
		t.Fatalf("expected order_not_found code, got %s", rr.Body.String())
	}
}

func TestGetOrderScopesToUser(t *testing.T) {
	var capturedOpts services.OrderReadOptions
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
			capturedOpts = opts
			return services.Order{ID: orderID, UserID: "user-1"}, nil
		},
	}
	router := newOrderRouter(svc)
	req := authedRequest(http.MethodGet, "/orders/ord_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedOpts.ForUser != "user-1" {
		t.Fatalf("expected read scoped to user-1, got %q", capturedOpts.ForUser)
	}
}

func TestCancelOrderInvalidState(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	router := newOrderRouter(svc)
	req := authedRequest(http.MethodPost, "/orders/ord_1:cancel", []byte(`{"reason": "changed my mind"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "order_invalid_state") {
		t.Fatalf("expected order_invalid_state code, got %s", rr.Body.String())
	}
}

func TestCancelOrderRequiresBody(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})
	req := authedRequest(http.MethodPost, "/orders/ord_1:cancel", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestRequestReplacementPassesReason(t *testing.T) {
	var captured services.RequestReplacementCommand
	svc := &stubOrderService{
		replacementFn: func(_ context.Context, cmd services.RequestReplacementCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusReplacementRequested}, nil
		},
	}
	router := newOrderRouter(svc)
	req := authedRequest(http.MethodPost, "/orders/ord_1:replace", []byte(`{"reason": "arrived damaged"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Reason != "arrived damaged" || captured.UserID != "user-1" {
		t.Fatalf("unexpected command: %+v", captured)
	}

	var body orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != string(domain.OrderStatusReplacementRequested) {
		t.Fatalf("expected replacement_requested status, got %s", body.Status)
	}
}

func TestTrackOrderReturnsProjection(t *testing.T) {
	svc := &stubOrderService{
		trackFn: func(_ context.Context, orderID string, _ services.OrderReadOptions) (services.TrackingProjection, error) {
			return services.TrackingProjection{
				OrderID: orderID,
				Status:  domain.OrderStatusOutForDelivery,
				Events: []domain.TrackingEvent{
					{Status: domain.OrderStatusShipped, Completed: true, Timestamp: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)},
					{Status: domain.OrderStatusOutForDelivery, Completed: true, Timestamp: time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)},
				},
			}, nil
		},
	}
	router := newOrderRouter(svc)
	req := authedRequest(http.MethodGet, "/orders/ord_1/tracking", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body trackingPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.OrderID != "ord_1" || body.Status != string(domain.OrderStatusOutForDelivery) {
		t.Fatalf("unexpected projection: %+v", body)
	}
	if len(body.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(body.Events))
	}
}
