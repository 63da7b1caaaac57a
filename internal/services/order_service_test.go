package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/repositories"
)

type stubOrderRepository struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	insertErr error
	updateErr error
	findErr   error
	listFn    func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	statsFn   func(context.Context, time.Time) (domain.DashboardStats, error)
}

func newStubOrderRepository(seed ...domain.Order) *stubOrderRepository {
	repo := &stubOrderRepository{orders: make(map[string]domain.Order)}
	for _, order := range seed {
		repo.orders[order.ID] = order
	}
	return repo
}

func (s *stubOrderRepository) Insert(_ context.Context, order domain.Order) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return fakeRepoError{conflict: true}
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepository) Update(_ context.Context, order domain.Order) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; !exists {
		return fakeRepoError{notFound: true}
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	if s.findErr != nil {
		return domain.Order{}, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, fakeRepoError{notFound: true}
	}
	return order, nil
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepository) CollectStats(ctx context.Context, now time.Time) (domain.DashboardStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, now)
	}
	return domain.DashboardStats{}, nil
}

func (s *stubOrderRepository) stored(orderID string) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderID]
}

type stubNumberSource struct {
	next int
	err  error
}

func (s *stubNumberSource) NextOrderNumber(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.next++
	return fmt.Sprintf("DN-2025-%06d", s.next), nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *capturePublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) captured() []OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderEvent, len(p.events))
	copy(out, p.events)
	return out
}

type fakeRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepoError) Error() string       { return "repository error" }
func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return e.unavailable }

func fixedOrderClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 7, 10, 9, 30, 0, 0, time.UTC)
	}
}

func newTestOrderService(t *testing.T, repo *stubOrderRepository, numbers *stubNumberSource, events OrderEventPublisher, clock func() time.Time) OrderService {
	t.Helper()
	if clock == nil {
		clock = fixedOrderClock()
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:  repo,
		Numbers: numbers,
		Clock:   clock,
		Events:  events,
		IDGenerator: func() string {
			return "01TESTORDER"
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func codOrderCommand() CreateOrderCommand {
	return CreateOrderCommand{
		UserID: "user-1",
		Customer: domain.CustomerInfo{
			Name:    "Asha Rao",
			Phone:   "+919800000000",
			Address: "12 MG Road, Bengaluru",
		},
		Items: []domain.OrderItem{
			{ProductID: "prd_1", Name: "Cold Pressed Oil", Quantity: 2, UnitPrice: 200},
			{ProductID: "prd_2", Name: "Raw Honey", Quantity: 1, UnitPrice: 50},
		},
		Subtotal:      450,
		ShippingFee:   50,
		PaymentMethod: domain.PaymentMethodCOD,
	}
}

func TestOrderServiceCreateCOD(t *testing.T) {
	repo := newStubOrderRepository()
	numbers := &stubNumberSource{}
	events := &capturePublisher{}
	svc := newTestOrderService(t, repo, numbers, events, nil)

	order, err := svc.Create(context.Background(), codOrderCommand())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("order id %q missing prefix", order.ID)
	}
	if order.Number != "DN-2025-000001" {
		t.Fatalf("unexpected order number %q", order.Number)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %q", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("COD orders must start payment pending, got %q", order.PaymentStatus)
	}
	if order.Total != 500 {
		t.Fatalf("expected total 500, got %d", order.Total)
	}
	if order.Currency != "INR" {
		t.Fatalf("expected INR default currency, got %q", order.Currency)
	}
	if len(order.TrackingEvents) != 1 || order.TrackingEvents[0].Status != domain.OrderStatusPending {
		t.Fatalf("expected a single pending tracking event, got %+v", order.TrackingEvents)
	}

	captured := events.captured()
	if len(captured) != 1 || captured[0].Type != "order.created" {
		t.Fatalf("expected order.created event, got %+v", captured)
	}
}

func TestOrderServiceCreateRejectsTotalMismatch(t *testing.T) {
	svc := newTestOrderService(t, newStubOrderRepository(), &stubNumberSource{}, nil, nil)

	cmd := codOrderCommand()
	cmd.Total = 999
	_, err := svc.Create(context.Background(), cmd)
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceCreateGatewayRequiresPaymentRef(t *testing.T) {
	svc := newTestOrderService(t, newStubOrderRepository(), &stubNumberSource{}, nil, nil)

	cmd := codOrderCommand()
	cmd.PaymentMethod = domain.PaymentMethodRazorpay
	_, err := svc.Create(context.Background(), cmd)
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}

	cmd.Gateway = domain.GatewayRefs{Provider: "razorpay", OrderID: "rzp_order_1", PaymentID: "rzp_pay_1"}
	order, err := svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("verified gateway orders default to paid, got %q", order.PaymentStatus)
	}
}

func TestOrderServiceGetOrderScopesToUser(t *testing.T) {
	repo := newStubOrderRepository(domain.Order{ID: "ord_1", UserID: "user-1"})
	svc := newTestOrderService(t, repo, &stubNumberSource{}, nil, nil)

	if _, err := svc.GetOrder(context.Background(), "ord_1", OrderReadOptions{ForUser: "user-1"}); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}

	_, err := svc.GetOrder(context.Background(), "ord_1", OrderReadOptions{ForUser: "user-2"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("foreign order must read as not found, got %v", err)
	}
}

func TestOrderServiceCancelPaidGatewayOrderOpensRefund(t *testing.T) {
	repo := newStubOrderRepository(domain.Order{
		ID:            "ord_1",
		Number:        "DN-2025-000007",
		UserID:        "user-1",
		Status:        domain.OrderStatusConfirmed,
		PaymentMethod: domain.PaymentMethodRazorpay,
		PaymentStatus: domain.PaymentStatusPaid,
	})
	events := &capturePublisher{}
	svc := newTestOrderService(t, repo, &stubNumberSource{}, events, nil)

	order, err := svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord_1",
		UserID:  "user-1",
		Reason:  "ordered by mistake",
		ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %q", order.Status)
	}
	if order.RefundStatus != domain.RefundStatusProcessing {
		t.Fatalf("paid gateway cancel must open a processing refund, got %q", order.RefundStatus)
	}
	if order.CancelledAt == nil || order.CancelReason != "ordered by mistake" {
		t.Fatalf("cancellation metadata missing: %+v", order)
	}

	captured := events.captured()
	if len(captured) != 1 || captured[0].Type != "order.cancelled" {
		t.Fatalf("expected order.cancelled event, got %+v", captured)
	}
}

func TestOrderServiceCancelCODLeavesRefundEmpty(t *testing.T) {
	repo := newStubOrderRepository(domain.Order{
		ID:            "ord_1",
		UserID:        "user-1",
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCOD,
		PaymentStatus: domain.PaymentStatusPending,
	})
	svc := newTestOrderService(t, repo, &stubNumberSource{}, nil, nil)

	order, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if order.RefundStatus != "" {
		t.Fatalf("COD cancel must not open a refund, got %q", order.RefundStatus)
	}
}

func TestOrderServiceCancelGuards(t *testing.T) {
	cases := []struct {
		name   string
		status domain.OrderStatus
	}{
		{"delivered", domain.OrderStatusDelivered},
		{"already cancelled", domain.OrderStatusCancelled},
		{"replacement in flight", domain.OrderStatusReplacementProcessing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newStubOrderRepository(domain.Order{ID: "ord_1", UserID: "user-1", Status: tc.status})
			svc := newTestOrderService(t, repo, &stubNumberSource{}, nil, nil)

			_, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", Reason: "test"})
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("expected ErrOrderInvalidState, got %v", err)
			}
		})
	}
}

func deliveredOrder(deliveredAt time.Time) domain.Order {
	return domain.Order{
		ID:     "ord_1",
		UserID: "user-1",
		Status: domain.OrderStatusDelivered,
		TrackingEvents: []domain.TrackingEvent{
			{Status: domain.OrderStatusDelivered, Timestamp: deliveredAt, Completed: true},
		},
		CreatedAt: deliveredAt.Add(-4 * 24 * time.Hour),
	}
}

func TestOrderServiceRequestReplacementWithinWindow(t *testing.T) {
	now := time.Date(2025, 7, 10, 9, 30, 0, 0, time.UTC)
	repo := newStubOrderRepository(deliveredOrder(now.Add(-3 * 24 * time.Hour)))
	events := &capturePublisher{}
	svc := newTestOrderService(t, repo, &stubNumberSource{}, events, func() time.Time { return now })

	order, err := svc.RequestReplacement(context.Background(), RequestReplacementCommand{
		OrderID: "ord_1",
		UserID:  "user-1",
		Reason:  "bottle arrived leaking",
	})
	if err != nil {
		t.Fatalf("RequestReplacement returned error: %v", err)
	}
	if order.Status != domain.OrderStatusReplacementRequested {
		t.Fatalf("expected replacement_requested, got %q", order.Status)
	}
	if order.ReplacementStatus != domain.OrderStatusReplacementRequested {
		t.Fatalf("replacement sub-status not set: %q", order.ReplacementStatus)
	}
	if order.ReplacementRequestedAt == nil {
		t.Fatal("replacement timestamp missing")
	}
}

func TestOrderServiceRequestReplacementOutsideWindow(t *testing.T) {
	now := time.Date(2025, 7, 10, 9, 30, 0, 0, time.UTC)
	repo := newStubOrderRepository(deliveredOrder(now.Add(-8 * 24 * time.Hour)))
	svc := newTestOrderService(t, repo, &stubNumberSource{}, nil, func() time.Time { return now })

	_, err := svc.RequestReplacement(context.Background(), RequestReplacementCommand{
		OrderID: "ord_1",
		UserID:  "user-1",
		Reason:  "bottle arrived leaking",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState for requests after seven days, got %v", err)
	}
}

func TestOrderServiceRequestReplacementOnlyOnce(t *testing.T) {
	now := time.Date(2025, 7, 10, 9, 30, 0, 0, time.UTC)
	order := deliveredOrder(now.Add(-1 * 24 * time.Hour))
	order.ReplacementStatus = domain.OrderStatusReplacementRejected
	repo := newStubOrderRepository(order)
	svc := newTestOrderService(t, repo, &stubNumberSource{}, nil, func() time.Time { return now })

	_, err := svc.RequestReplacement(context.Background(), RequestReplacementCommand{
		OrderID: "ord_1",
		UserID:  "user-1",
		Reason:  "still broken",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState for repeated requests, got %v", err)
	}
}

func TestOrderServiceAdminUpdateTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    domain.OrderStatus
		to      domain.OrderStatus
		allowed bool
	}{
		{"pending to confirmed", domain.OrderStatusPending, domain.OrderStatusConfirmed, true},
		{"confirmed to processing", domain.OrderStatusConfirmed, domain.OrderStatusProcessing, true},
		{"processing to shipped", domain.OrderStatusProcessing, domain.OrderStatusShipped, true},
		{"shipped to out for delivery", domain.OrderStatusShipped, domain.OrderStatusOutForDelivery, true},
		{"out for delivery to delivered", domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered, true},
		{"shipped to cancelled", domain.OrderStatusShipped, domain.OrderStatusCancelled, true},
		{"pending to shipped skips states", domain.OrderStatusPending, domain.OrderStatusShipped, false},
		{"delivered to cancelled", domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{"cancelled is terminal", domain.OrderStatusCancelled, domain.OrderStatusConfirmed, false},
		{"replacement requested to accepted", domain.OrderStatusReplacementRequested, domain.OrderStatusReplacementAccepted, true},
		{"replacement requested to rejected", domain.OrderStatusReplacementRequested, domain.OrderStatusReplacementRejected, true},
		{"replacement accepted to processing", domain.OrderStatusReplacementAccepted, domain.OrderStatusReplacementProcessing, true},
		{"replacement shipped to out for delivery", domain.OrderStatusReplacementShipped, domain.OrderStatusReplacementOutForDelivery, true},
		{"replacement cannot cancel", domain.OrderStatusReplacementProcessing, domain.OrderStatusCancelled, false},
		{"rejected is terminal", domain.OrderStatusReplacementRejected, domain.OrderStatusReplacementAccepted, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newStubOrderRepository(domain.Order{ID: "ord_1", UserID: "user-1", Status: tc.from})
			svc := newTestOrderService(t, repo, &stubNumberSource{}, nil, nil)

			status := tc.to
			_, err := svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{
				OrderID: "ord_1",
				Status:  &status,
				ActorID: "admin-1",
			})
			if tc.allowed && err != nil {
				t.Fatalf("expected transition %s -> %s to succeed, got %v", tc.from, tc.to, err)
			}
			if !tc.allowed && !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("expected ErrOrderInvalidState for %s -> %s, got %v", tc.from, tc.to, err)
			}
		})
	}
}

func TestOrderServiceAdminUpdatePublishesStatusEvent(t *testing.T) {
	repo := newStubOrderRepository(domain.Order{ID: "ord_1", Status: domain.OrderStatusPending})
	events := &capturePublisher{}
	svc := newTestOrderService(t, repo, &stubNumberSource{}, events, nil)

	status := domain.OrderStatusConfirmed
	if _, err := svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{OrderID: "ord_1", Status: &status}); err != nil {
		t.Fatalf("AdminUpdate returned error: %v", err)
	}

	captured := events.captured()
	if len(captured) != 1 || captured[0].Type != "order.status.changed" {
		t.Fatalf("expected order.status.changed event, got %+v", captured)
	}
	if captured[0].PreviousStatus != "pending" || captured[0].CurrentStatus != "confirmed" {
		t.Fatalf("unexpected event statuses: %+v", captured[0])
	}
}

func TestOrderServiceAdminCancelPaidGatewayOpensRefund(t *testing.T) {
	repo := newStubOrderRepository(domain.Order{
		ID:            "ord_1",
		Status:        domain.OrderStatusProcessing,
		PaymentMethod: domain.PaymentMethodStripe,
		PaymentStatus: domain.PaymentStatusPaid,
	})
	svc := newTestOrderService(t, repo, &stubNumberSource{}, nil, nil)

	status := domain.OrderStatusCancelled
	order, err := svc.AdminUpdate(context.Background(), AdminUpdateOrderCommand{OrderID: "ord_1", Status: &status})
	if err != nil {
		t.Fatalf("AdminUpdate returned error: %v", err)
	}
	if order.RefundStatus != domain.RefundStatusProcessing {
		t.Fatalf("admin cancel of a paid gateway order must open a refund, got %q", order.RefundStatus)
	}
}

func TestOrderServiceTrackEstimatesDelivery(t *testing.T) {
	created := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	repo := newStubOrderRepository(domain.Order{
		ID:        "ord_1",
		UserID:    "user-1",
		Status:    domain.OrderStatusShipped,
		CreatedAt: created,
		TrackingEvents: []domain.TrackingEvent{
			{Status: domain.OrderStatusPending, Timestamp: created, Completed: true},
			{Status: domain.OrderStatusShipped, Timestamp: created.Add(24 * time.Hour), Completed: true},
		},
	})
	svc := newTestOrderService(t, repo, &stubNumberSource{}, nil, nil)

	projection, err := svc.Track(context.Background(), "ord_1", OrderReadOptions{ForUser: "user-1"})
	if err != nil {
		t.Fatalf("Track returned error: %v", err)
	}
	if projection.Status != domain.OrderStatusShipped {
		t.Fatalf("unexpected status %q", projection.Status)
	}
	if len(projection.Events) != 2 {
		t.Fatalf("expected 2 tracking events, got %d", len(projection.Events))
	}
	want := created.Add(5 * 24 * time.Hour)
	if !projection.EstimatedDelivery.Equal(want) {
		t.Fatalf("expected estimate %v, got %v", want, projection.EstimatedDelivery)
	}
}

func TestOrderServiceMapsRepositoryErrors(t *testing.T) {
	repo := newStubOrderRepository()
	repo.findErr = fakeRepoError{unavailable: true}
	svc := newTestOrderService(t, repo, &stubNumberSource{}, nil, nil)

	_, err := svc.GetOrder(context.Background(), "ord_missing", OrderReadOptions{})
	if err == nil || !strings.Contains(err.Error(), "unavailable") {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
