package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	pfirestore "github.com/dheerghayush/naturals-api/internal/platform/firestore"
	"github.com/dheerghayush/naturals-api/internal/repositories"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const reviewsCollection = "reviews"

// ReviewRepository persists customer reviews. A transaction guards the one
// review per (order, product) pair invariant against concurrent submissions.
type ReviewRepository struct {
	base     *pfirestore.BaseRepository[reviewDocument]
	provider *pfirestore.Provider
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[reviewDocument](provider, reviewsCollection, nil, nil)
	return &ReviewRepository{base: base, provider: provider}, nil
}

// Insert stores a new review and fails with a conflict when the (order, product)
// pair already has one.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID := strings.TrimSpace(review.ID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}
	orderID := strings.TrimSpace(review.OrderID)
	productID := strings.TrimSpace(review.ProductID)
	if orderID == "" || productID == "" {
		return domain.Review{}, errors.New("review repository: order id and product id are required")
	}

	doc := encodeReviewDocument(review)
	pairKey := doc.PairKey

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		dupQuery := client.Collection(reviewsCollection).
			Where("pairKey", "==", pairKey).
			Limit(1)
		existing, err := tx.Documents(dupQuery).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return status.Errorf(codes.AlreadyExists, "review already exists for %s", pairKey)
		}
		docRef, err := r.base.DocumentRef(ctx, reviewID)
		if err != nil {
			return err
		}
		return tx.Create(docRef, doc)
	})
	if err != nil {
		return domain.Review{}, pfirestore.WrapError("reviews.insert", err)
	}

	saved := review
	saved.ID = reviewID
	return saved, nil
}

// FindByID fetches a single review.
func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return decodeReviewDocument(reviewID, doc.Data, doc.CreateTime), nil
}

// ListByOrder returns every review attached to the given order.
func (r *ReviewRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Review, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("review repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("review repository: order id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return nil, err
	}
	reviews := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		reviews = append(reviews, decodeReviewDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return reviews, nil
}

// ListByProduct returns reviews for a product ordered by most recent first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: product id is required")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("review repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("productId", "==", productID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Review, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeReviewDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return domain.CursorPage[domain.Review]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type reviewDocument struct {
	OrderID   string    `firestore:"orderId"`
	ProductID string    `firestore:"productId"`
	UserID    string    `firestore:"userId"`
	PairKey   string    `firestore:"pairKey"`
	Rating    int       `firestore:"rating"`
	Text      string    `firestore:"text,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func encodeReviewDocument(review domain.Review) reviewDocument {
	orderID := strings.TrimSpace(review.OrderID)
	productID := strings.TrimSpace(review.ProductID)
	return reviewDocument{
		OrderID:   orderID,
		ProductID: productID,
		UserID:    strings.TrimSpace(review.UserID),
		PairKey:   reviewPairKey(orderID, productID),
		Rating:    review.Rating,
		Text:      review.Text,
		CreatedAt: review.CreatedAt.UTC(),
	}
}

func decodeReviewDocument(id string, doc reviewDocument, createdAt time.Time) domain.Review {
	return domain.Review{
		ID:        strings.TrimSpace(id),
		OrderID:   doc.OrderID,
		ProductID: doc.ProductID,
		UserID:    doc.UserID,
		Rating:    doc.Rating,
		Text:      doc.Text,
		CreatedAt: timeOrFallback(doc.CreatedAt, createdAt),
	}
}

func reviewPairKey(orderID, productID string) string {
	return orderID + "#" + productID
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
