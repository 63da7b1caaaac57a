package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/repositories"
)

const reviewIDPrefix = "rev_"

var (
	// ErrReviewInvalidInput indicates the caller supplied invalid review data.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates the order or product could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewNotEligible indicates the order is not in a reviewable state.
	ErrReviewNotEligible = errors.New("review: order is not eligible for review")
	// ErrReviewDuplicate indicates the product was already reviewed for this order.
	ErrReviewDuplicate = errors.New("review: product already reviewed for this order")
)

// ReviewServiceDeps bundles collaborators required to construct the review service.
type ReviewServiceDeps struct {
	Orders      repositories.OrderRepository
	Reviews     repositories.ReviewRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	orders    repositories.OrderRepository
	reviews   repositories.ReviewRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
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

	return &reviewService{
		orders:  deps.Orders,
		reviews: deps.Reviews,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// ReviewableProducts returns the order's products with a flag for each product
// the customer has already reviewed. Eligibility is tracked per product, so one
// submitted review never blocks the rest of the order.
func (s *reviewService) ReviewableProducts(ctx context.Context, userID string, orderID string) ([]ReviewableProduct, error) {
	order, err := s.loadReviewableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	existing, err := s.reviews.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, mapReviewRepositoryError(err)
	}
	reviewed := make(map[string]bool, len(existing))
	for _, review := range existing {
		if review.UserID == order.UserID {
			reviewed[review.ProductID] = true
		}
	}

	products := make([]ReviewableProduct, 0, len(order.Items))
	for _, item := range order.Items {
		products = append(products, ReviewableProduct{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			Reviewed:  reviewed[item.ProductID],
		})
	}
	return products, nil
}

// SubmitReview persists a review for one product of a delivered order.
func (s *reviewService) SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Review, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Review{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
	}

	order, err := s.loadReviewableOrder(ctx, cmd.UserID, cmd.OrderID)
	if err != nil {
		return Review{}, err
	}

	found := false
	for _, item := range order.Items {
		if item.ProductID == productID {
			found = true
			break
		}
	}
	if !found {
		return Review{}, fmt.Errorf("%w: product %s is not part of order %s", ErrReviewNotFound, productID, order.ID)
	}

	existing, err := s.reviews.ListByOrder(ctx, order.ID)
	if err != nil {
		return Review{}, mapReviewRepositoryError(err)
	}
	for _, review := range existing {
		if review.ProductID == productID && review.UserID == order.UserID {
			return Review{}, fmt.Errorf("%w: product %s", ErrReviewDuplicate, productID)
		}
	}

	review := Review{
		ID:        reviewIDPrefix + s.newID(),
		OrderID:   order.ID,
		ProductID: productID,
		UserID:    order.UserID,
		Rating:    cmd.Rating,
		Text:      strings.TrimSpace(s.sanitizer.Sanitize(cmd.Text)),
		CreatedAt: s.clock(),
	}
	stored, err := s.reviews.Insert(ctx, review)
	if err != nil {
		return Review{}, mapReviewRepositoryError(err)
	}
	review = stored

	s.logger(ctx, "review.submitted", map[string]any{
		"review":  review.ID,
		"order":   review.OrderID,
		"product": review.ProductID,
	})
	return review, nil
}

// ListProductReviews serves the public review feed for a catalog product.
func (s *reviewService) ListProductReviews(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[Review], error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}

	page, err := s.reviews.ListByProduct(ctx, productID, pager)
	if err != nil {
		return domain.CursorPage[Review]{}, mapReviewRepositoryError(err)
	}
	return page, nil
}

func (s *reviewService) loadReviewableOrder(ctx context.Context, userID string, orderID string) (Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: user id and order id are required", ErrReviewInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapReviewRepositoryError(err)
	}
	if order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %s", ErrReviewNotFound, orderID)
	}
	// Replacement states only exist after a delivery, so they stay reviewable.
	if order.Status != domain.OrderStatusDelivered && !order.Status.IsReplacement() {
		return Order{}, fmt.Errorf("%w: order is not delivered", ErrReviewNotEligible)
	}
	return order, nil
}

func mapReviewRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewDuplicate, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}

	return err
}
