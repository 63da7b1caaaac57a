package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/payments"
	"github.com/dheerghayush/naturals-api/internal/repositories"
)

const (
	orderEventRefundUpdated = "order.refund.updated"

	// refundCustomerMessage is the only wording customers ever see for a
	// failed transfer. Gateway detail stays in the internal field.
	refundCustomerMessage = "Refund could not be processed. Our team has been notified."
)

var (
	// ErrRefundNotEligible indicates the order is not in the refund sub-lifecycle.
	ErrRefundNotEligible = errors.New("refund: order is not eligible for a refund")
	// ErrRefundInvalidState indicates the requested refund action does not apply to the current refund state.
	ErrRefundInvalidState = errors.New("refund: invalid refund state")
)

// refundGateway abstracts payments.Manager for easier testing.
type refundGateway interface {
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.RefundResult, error)
}

// RefundServiceDeps bundles collaborators required to construct the refund service.
type RefundServiceDeps struct {
	Orders     repositories.OrderRepository
	UnitOfWork repositories.UnitOfWork
	Gateway    refundGateway
	Clock      func() time.Time
	Events     OrderEventPublisher
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	gateway    refundGateway
	clock      func() time.Time
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewRefundService wires dependencies into a concrete RefundService implementation.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	if deps.Orders == nil {
		return nil, errors.New("refund service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("refund service: payment gateway is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &refundService{
		orders:     deps.Orders,
		unitOfWork: unit,
		gateway:    deps.Gateway,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

// ProcessRefund performs the gateway transfer for an order whose refund is in
// the processing state. A completed refund replays as a no-op so operators can
// retry the endpoint safely.
func (s *refundService) ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if err := refundEligible(order); err != nil {
		return Order{}, err
	}
	if order.RefundStatus == domain.RefundStatusCompleted {
		return order, nil
	}
	if order.RefundStatus == domain.RefundStatusFailed {
		return Order{}, fmt.Errorf("%w: a failed refund must be retried explicitly", ErrRefundInvalidState)
	}

	attempt := order.RefundAttempts + 1
	idempotencyKey := fmt.Sprintf("refund:%s:%d", order.ID, attempt)
	amount := order.Total

	result, transferErr := s.gateway.Refund(ctx, payments.PaymentContext{
		PreferredProvider: order.Gateway.Provider,
		Currency:          order.Currency,
	}, payments.RefundRequest{
		PaymentID:      order.Gateway.PaymentID,
		Amount:         &amount,
		Reason:         "requested_by_customer",
		IdempotencyKey: idempotencyKey,
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.Number,
		},
	})

	var updated Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapOrderRepositoryError(err)
		}
		if current.RefundStatus == domain.RefundStatusCompleted {
			updated = current
			return nil
		}

		now := s.clock()
		current.RefundAttempts = attempt
		if transferErr != nil {
			current.RefundStatus = domain.RefundStatusFailed
			current.RefundError = refundCustomerMessage
			current.RefundErrorInternal = transferErr.Error()
		} else {
			current.RefundStatus = domain.RefundStatusCompleted
			current.Gateway.RefundID = result.RefundID
			current.RefundError = ""
			current.RefundErrorInternal = ""
		}
		current.UpdatedAt = now

		if err := s.orders.Update(txCtx, current); err != nil {
			return mapOrderRepositoryError(err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishRefundEvent(ctx, updated, cmd.ActorID)

	if transferErr != nil {
		s.logger(ctx, "refund.transfer.failed", map[string]any{
			"order":   updated.ID,
			"attempt": attempt,
			"error":   transferErr.Error(),
		})
		return updated, fmt.Errorf("refund: gateway transfer failed: %w", transferErr)
	}

	s.logger(ctx, "refund.transfer.completed", map[string]any{
		"order":  updated.ID,
		"refund": updated.Gateway.RefundID,
	})
	return updated, nil
}

// RetryRefund moves a failed refund back to processing and runs the transfer
// again under a fresh idempotency key.
func (s *refundService) RetryRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapOrderRepositoryError(err)
		}
		if err := refundEligible(current); err != nil {
			return err
		}
		if current.RefundStatus != domain.RefundStatusFailed {
			return fmt.Errorf("%w: only a failed refund can be retried, got %q", ErrRefundInvalidState, current.RefundStatus)
		}

		current.RefundStatus = domain.RefundStatusProcessing
		current.RefundError = ""
		current.RefundErrorInternal = ""
		current.UpdatedAt = s.clock()
		return mapOrderRepositoryError(s.orders.Update(txCtx, current))
	})
	if err != nil {
		return Order{}, err
	}

	return s.ProcessRefund(ctx, cmd)
}

func refundEligible(order Order) error {
	if order.Status != domain.OrderStatusCancelled {
		return fmt.Errorf("%w: order is not cancelled", ErrRefundNotEligible)
	}
	if !order.PaymentMethod.IsGateway() {
		return fmt.Errorf("%w: cash on delivery orders have nothing to refund", ErrRefundNotEligible)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return fmt.Errorf("%w: payment was never captured", ErrRefundNotEligible)
	}
	if order.RefundStatus == "" {
		return fmt.Errorf("%w: no refund is open for this order", ErrRefundNotEligible)
	}
	return nil
}

func (s *refundService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *refundService) publishRefundEvent(ctx context.Context, order Order, actorID string) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:          orderEventRefundUpdated,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: string(order.Status),
		ActorID:       actorID,
		OccurredAt:    order.UpdatedAt,
		Metadata: map[string]any{
			"refundStatus":   string(order.RefundStatus),
			"refundAttempts": order.RefundAttempts,
		},
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
