package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/repositories"
)

const (
	orderEventCreated              = "order.created"
	orderEventStatusChanged        = "order.status.changed"
	orderEventCancelled            = "order.cancelled"
	orderEventReplacementRequested = "order.replacement.requested"

	orderIDPrefix = "ord_"

	// replacementWindow bounds how long after delivery a replacement may be requested.
	replacementWindow = 7 * 24 * time.Hour
	// estimatedDeliveryLead is the promised delivery window from order placement.
	estimatedDeliveryLead = 5 * 24 * time.Hour
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an action is not allowed in the order's current state.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// orderStateTransitions is the single transition table for the whole lifecycle,
// covering the primary fulfilment path and the replacement sub-flow layered on
// delivered orders. Cancellation is legal from every primary state except
// delivered and never from a replacement state.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:        {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:      {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing:     {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:        {domain.OrderStatusOutForDelivery, domain.OrderStatusCancelled},
	domain.OrderStatusOutForDelivery: {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:      {domain.OrderStatusReplacementRequested},

	domain.OrderStatusReplacementRequested:      {domain.OrderStatusReplacementAccepted, domain.OrderStatusReplacementRejected},
	domain.OrderStatusReplacementAccepted:       {domain.OrderStatusReplacementProcessing},
	domain.OrderStatusReplacementProcessing:     {domain.OrderStatusReplacementShipped},
	domain.OrderStatusReplacementShipped:        {domain.OrderStatusReplacementOutForDelivery},
	domain.OrderStatusReplacementOutForDelivery: {domain.OrderStatusReplacementDelivered},
}

var orderStatusDescriptions = map[domain.OrderStatus]string{
	domain.OrderStatusPending:                   "Order placed",
	domain.OrderStatusConfirmed:                 "Order confirmed",
	domain.OrderStatusProcessing:                "Order is being prepared",
	domain.OrderStatusShipped:                   "Order shipped",
	domain.OrderStatusOutForDelivery:            "Out for delivery",
	domain.OrderStatusDelivered:                 "Order delivered",
	domain.OrderStatusCancelled:                 "Order cancelled",
	domain.OrderStatusReplacementRequested:      "Replacement requested",
	domain.OrderStatusReplacementAccepted:       "Replacement approved",
	domain.OrderStatusReplacementRejected:       "Replacement declined",
	domain.OrderStatusReplacementProcessing:     "Replacement is being prepared",
	domain.OrderStatusReplacementShipped:        "Replacement shipped",
	domain.OrderStatusReplacementOutForDelivery: "Replacement out for delivery",
	domain.OrderStatusReplacementDelivered:      "Replacement delivered",
}

var validPaymentStatuses = []domain.PaymentStatus{
	domain.PaymentStatusPending,
	domain.PaymentStatusPaid,
	domain.PaymentStatusFailed,
}

func canTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

func canCancel(status domain.OrderStatus) bool {
	if status.IsReplacement() {
		return false
	}
	return status != domain.OrderStatusDelivered && status != domain.OrderStatusCancelled
}

// orderNumberSource abstracts the counter service behind order number generation.
type orderNumberSource interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Numbers     orderNumberSource
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	numbers    orderNumberSource
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order service: order number source is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		numbers:    deps.Numbers,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return Order{}, fmt.Errorf("%w: item %d is missing a product id", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}
		if item.UnitPrice < 0 {
			return Order{}, fmt.Errorf("%w: item %d price cannot be negative", ErrOrderInvalidInput, i)
		}
	}
	if strings.TrimSpace(cmd.Customer.Name) == "" || strings.TrimSpace(cmd.Customer.Address) == "" {
		return Order{}, fmt.Errorf("%w: customer name and address are required", ErrOrderInvalidInput)
	}
	if cmd.Subtotal < 0 || cmd.ShippingFee < 0 {
		return Order{}, fmt.Errorf("%w: amounts cannot be negative", ErrOrderInvalidInput)
	}

	total := cmd.Total
	if total == 0 {
		total = cmd.Subtotal + cmd.ShippingFee
	}
	if total != cmd.Subtotal+cmd.ShippingFee {
		return Order{}, fmt.Errorf("%w: total %d does not equal subtotal %d plus shipping %d", ErrOrderInvalidInput, total, cmd.Subtotal, cmd.ShippingFee)
	}

	paymentStatus := cmd.PaymentStatus
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD:
		paymentStatus = domain.PaymentStatusPending
	case domain.PaymentMethodRazorpay, domain.PaymentMethodStripe:
		if strings.TrimSpace(cmd.Gateway.PaymentID) == "" {
			return Order{}, fmt.Errorf("%w: gateway payment reference is required for online payments", ErrOrderInvalidInput)
		}
		if paymentStatus == "" {
			paymentStatus = domain.PaymentStatusPaid
		}
	default:
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	currency := strings.TrimSpace(cmd.Currency)
	if currency == "" {
		currency = "INR"
	}

	now := s.now()
	order := Order{
		ID:            s.nextOrderID(),
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentMethod: cmd.PaymentMethod,
		PaymentStatus: paymentStatus,
		Items:         cloneOrderItems(cmd.Items),
		Customer:      cmd.Customer,
		Currency:      currency,
		Subtotal:      cmd.Subtotal,
		ShippingFee:   cmd.ShippingFee,
		Total:         total,
		Gateway:       cmd.Gateway,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	appendTrackingEvent(&order, domain.OrderStatusPending, now)

	number, err := s.numbers.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, err
	}
	order.Number = number

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"paymentMethod": string(order.PaymentMethod),
			"total":         order.Total,
		},
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if forUser := strings.TrimSpace(opts.ForUser); forUser != "" && order.UserID != forUser {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Cancel applies the customer cancellation guard and transition atomically so
// a stale client view can never force an illegal state change.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: cancellation reason is required", ErrOrderInvalidInput)
	}

	var (
		order      Order
		prevStatus domain.OrderStatus
		now        time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if forUser := strings.TrimSpace(cmd.UserID); forUser != "" && current.UserID != forUser {
			return fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
		}
		if !canCancel(current.Status) {
			return fmt.Errorf("%w: order in status %q cannot be cancelled", ErrOrderInvalidState, current.Status)
		}

		now = s.now()
		prevStatus = current.Status
		current.Status = domain.OrderStatusCancelled
		current.CancelReason = reason
		current.CancelledAt = &now
		current.UpdatedAt = now
		appendTrackingEvent(&current, domain.OrderStatusCancelled, now)

		// A paid gateway order enters the refund sub-lifecycle on cancellation.
		// The refund service performs the actual transfer and owns it from here.
		if current.PaymentMethod.IsGateway() && current.PaymentStatus == domain.PaymentStatusPaid {
			current.RefundStatus = domain.RefundStatusProcessing
		}

		if err := s.orders.Update(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"reason":       reason,
			"refundStatus": string(order.RefundStatus),
		},
	})

	return order, nil
}

// RequestReplacement opens the replacement sub-flow. The guard is evaluated
// inside the transaction against the persisted order, not the caller's view.
func (s *orderService) RequestReplacement(ctx context.Context, cmd RequestReplacementCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: replacement reason is required", ErrOrderInvalidInput)
	}

	var (
		order Order
		now   time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if forUser := strings.TrimSpace(cmd.UserID); forUser != "" && current.UserID != forUser {
			return fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
		}
		if current.Status != domain.OrderStatusDelivered {
			return fmt.Errorf("%w: replacement requires a delivered order, got %q", ErrOrderInvalidState, current.Status)
		}
		if current.ReplacementStatus != "" {
			return fmt.Errorf("%w: a replacement was already requested for this order", ErrOrderInvalidState)
		}

		now = s.now()
		if now.Sub(current.DeliveredAt()) > replacementWindow {
			return fmt.Errorf("%w: replacement window of %d days has passed", ErrOrderInvalidState, int(replacementWindow.Hours()/24))
		}

		current.Status = domain.OrderStatusReplacementRequested
		current.ReplacementStatus = domain.OrderStatusReplacementRequested
		current.ReplacementReason = reason
		current.ReplacementRequestedAt = &now
		current.UpdatedAt = now
		appendTrackingEvent(&current, domain.OrderStatusReplacementRequested, now)

		if err := s.orders.Update(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventReplacementRequested,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: string(domain.OrderStatusDelivered),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"reason": reason,
		},
	})

	return order, nil
}

func (s *orderService) AdminUpdate(ctx context.Context, cmd AdminUpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Status == nil && cmd.PaymentStatus == nil {
		return Order{}, fmt.Errorf("%w: nothing to update", ErrOrderInvalidInput)
	}
	if cmd.PaymentStatus != nil && !slices.Contains(validPaymentStatuses, *cmd.PaymentStatus) {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, *cmd.PaymentStatus)
	}

	var (
		order      Order
		prevStatus domain.OrderStatus
		now        time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		now = s.now()
		prevStatus = current.Status

		if cmd.Status != nil && *cmd.Status != current.Status {
			target := *cmd.Status
			if !canTransition(current.Status, target) {
				return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current.Status, target)
			}
			current.Status = target
			appendTrackingEvent(&current, target, now)

			switch {
			case target.IsReplacement():
				current.ReplacementStatus = target
			case target == domain.OrderStatusCancelled:
				if current.CancelledAt == nil {
					current.CancelledAt = &now
				}
				if current.PaymentMethod.IsGateway() && current.PaymentStatus == domain.PaymentStatusPaid {
					current.RefundStatus = domain.RefundStatusProcessing
				}
			}
		}

		if cmd.PaymentStatus != nil {
			current.PaymentStatus = *cmd.PaymentStatus
		}
		current.UpdatedAt = now

		if err := s.orders.Update(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if prevStatus != order.Status {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			OrderNumber:    order.Number,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(order.Status),
			ActorID:        cmd.ActorID,
			OccurredAt:     now,
		})
	}

	return order, nil
}

func (s *orderService) Track(ctx context.Context, orderID string, opts OrderReadOptions) (TrackingProjection, error) {
	order, err := s.GetOrder(ctx, orderID, opts)
	if err != nil {
		return TrackingProjection{}, err
	}

	estimated := order.CreatedAt.Add(estimatedDeliveryLead)
	if order.Status == domain.OrderStatusDelivered || order.Status.IsReplacement() {
		estimated = order.DeliveredAt()
	}

	return TrackingProjection{
		OrderID:           order.ID,
		Status:            order.Status,
		Events:            slices.Clone(order.TrackingEvents),
		EstimatedDelivery: estimated,
	}, nil
}

func (s *orderService) Stats(ctx context.Context) (DashboardStats, error) {
	stats, err := s.orders.CollectStats(ctx, s.now())
	if err != nil {
		return DashboardStats{}, s.mapRepositoryError(err)
	}
	return stats, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapOrderRepositoryError(err)
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func appendTrackingEvent(order *Order, status domain.OrderStatus, now time.Time) {
	order.TrackingEvents = append(order.TrackingEvents, TrackingEvent{
		Status:      status,
		Description: orderStatusDescriptions[status],
		Timestamp:   now,
		Completed:   true,
	})
}

func cloneOrderItems(items []OrderItem) []OrderItem {
	cloned := make([]OrderItem, len(items))
	copy(cloned, items)
	return cloned
}
