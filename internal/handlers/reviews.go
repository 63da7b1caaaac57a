package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/platform/auth"
	"github.com/dheerghayush/naturals-api/internal/platform/httpx"
	"github.com/dheerghayush/naturals-api/internal/repositories"
	"github.com/dheerghayush/naturals-api/internal/services"
)

const maxReviewBodySize = 32 * 1024

// ReviewHandlers exposes review eligibility and submission for order owners.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
}

// Routes registers the review endpoints under /orders.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{orderID}/reviewable-products", h.reviewableProducts)
	r.Post("/{orderID}/reviews", h.submitReview)
}

func (h *ReviewHandlers) reviewableProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	products, err := h.reviews.ReviewableProducts(ctx, identity.UID, orderID)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	items := make([]reviewableProductPayload, 0, len(products))
	for _, product := range products {
		items = append(items, reviewableProductPayload{
			ProductID: product.ProductID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			Reviewed:  product.Reviewed,
		})
	}
	writeJSONResponse(w, http.StatusOK, reviewableProductsResponse{Items: items})
}

func (h *ReviewHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxReviewBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			writeInvalidRequest(w, r, "request body is required")
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			writeInvalidRequest(w, r, "unable to read request body")
		}
		return
	}

	var req submitReviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeInvalidRequest(w, r, "invalid JSON payload")
		return
	}

	review, err := h.reviews.SubmitReview(ctx, services.SubmitReviewCommand{
		UserID:    identity.UID,
		OrderID:   strings.TrimSpace(chi.URLParam(r, "orderID")),
		ProductID: strings.TrimSpace(req.ProductID),
		Rating:    req.Rating,
		Text:      req.Text,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildReviewPayload(review))
}

type submitReviewRequest struct {
	ProductID string `json:"product_id"`
	Rating    int    `json:"rating"`
	Text      string `json:"text"`
}

type reviewableProductsResponse struct {
	Items []reviewableProductPayload `json:"items"`
}

type reviewableProductPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	Reviewed  bool   `json:"reviewed"`
}

type reviewPayload struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	Rating    int    `json:"rating"`
	Text      string `json:"text,omitempty"`
	CreatedAt string `json:"created_at"`
}

func buildReviewPayload(review domain.Review) reviewPayload {
	return reviewPayload{
		ID:        review.ID,
		OrderID:   review.OrderID,
		ProductID: review.ProductID,
		UserID:    review.UserID,
		Rating:    review.Rating,
		Text:      review.Text,
		CreatedAt: formatTime(review.CreatedAt),
	}
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid review request", http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "order or product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_eligible", "order is not eligible for review", http.StatusConflict))
	case errors.Is(err, services.ErrReviewDuplicate):
		httpx.WriteError(ctx, w, httpx.NewError("review_conflict", "product already reviewed for this order", http.StatusConflict))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("review_error", "failed to process review request", http.StatusInternalServerError))
	}
}
