package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	pfirestore "github.com/dheerghayush/naturals-api/internal/platform/firestore"
	"github.com/dheerghayush/naturals-api/internal/repositories"
)

const bannersCollection = "banners"

// BannerRepository persists storefront banners in Firestore.
type BannerRepository struct {
	base *pfirestore.BaseRepository[bannerDocument]
}

// NewBannerRepository constructs a Firestore-backed banner repository.
func NewBannerRepository(provider *pfirestore.Provider) (*BannerRepository, error) {
	if provider == nil {
		return nil, errors.New("banner repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[bannerDocument](provider, bannersCollection, nil, nil)
	return &BannerRepository{base: base}, nil
}

// Insert stores a new banner document. The ID must be unique.
func (r *BannerRepository) Insert(ctx context.Context, banner domain.Banner) error {
	if r == nil || r.base == nil {
		return errors.New("banner repository not initialised")
	}
	bannerID := strings.TrimSpace(banner.ID)
	if bannerID == "" {
		return errors.New("banner repository: banner id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, bannerID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeBannerDocument(banner)); err != nil {
		return pfirestore.WrapError("banners.insert", err)
	}
	return nil
}

// Update replaces the persisted banner state.
func (r *BannerRepository) Update(ctx context.Context, banner domain.Banner) error {
	if r == nil || r.base == nil {
		return errors.New("banner repository not initialised")
	}
	bannerID := strings.TrimSpace(banner.ID)
	if bannerID == "" {
		return errors.New("banner repository: banner id is required")
	}
	if _, err := r.base.Set(ctx, bannerID, encodeBannerDocument(banner)); err != nil {
		return err
	}
	return nil
}

// Delete removes the banner document.
func (r *BannerRepository) Delete(ctx context.Context, bannerID string) error {
	if r == nil || r.base == nil {
		return errors.New("banner repository not initialised")
	}
	bannerID = strings.TrimSpace(bannerID)
	if bannerID == "" {
		return errors.New("banner repository: banner id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, bannerID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("banners.delete", err)
	}
	return nil
}

// FindByID fetches a single banner.
func (r *BannerRepository) FindByID(ctx context.Context, bannerID string) (domain.Banner, error) {
	if r == nil || r.base == nil {
		return domain.Banner{}, errors.New("banner repository not initialised")
	}
	bannerID = strings.TrimSpace(bannerID)
	if bannerID == "" {
		return domain.Banner{}, errors.New("banner repository: banner id is required")
	}
	doc, err := r.base.Get(ctx, bannerID)
	if err != nil {
		return domain.Banner{}, err
	}
	return decodeBannerDocument(bannerID, doc.Data, doc.CreateTime), nil
}

// List returns banners by display order. Active filtering happens in the query
// so the storefront never sees drafts.
func (r *BannerRepository) List(ctx context.Context, activeOnly bool) ([]domain.Banner, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("banner repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if activeOnly {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("sortOrder", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	banners := make([]domain.Banner, 0, len(docs))
	for _, doc := range docs {
		banners = append(banners, decodeBannerDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return banners, nil
}

type bannerDocument struct {
	Title     string    `firestore:"title"`
	ImagePath string    `firestore:"imagePath,omitempty"`
	LinkURL   string    `firestore:"linkUrl,omitempty"`
	Active    bool      `firestore:"active"`
	SortOrder int       `firestore:"sortOrder"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func encodeBannerDocument(banner domain.Banner) bannerDocument {
	return bannerDocument{
		Title:     strings.TrimSpace(banner.Title),
		ImagePath: strings.TrimSpace(banner.ImagePath),
		LinkURL:   strings.TrimSpace(banner.LinkURL),
		Active:    banner.Active,
		SortOrder: banner.SortOrder,
		CreatedAt: banner.CreatedAt.UTC(),
	}
}

func decodeBannerDocument(id string, doc bannerDocument, createdAt time.Time) domain.Banner {
	return domain.Banner{
		ID:        strings.TrimSpace(id),
		Title:     doc.Title,
		ImagePath: doc.ImagePath,
		LinkURL:   doc.LinkURL,
		Active:    doc.Active,
		SortOrder: doc.SortOrder,
		CreatedAt: timeOrFallback(doc.CreatedAt, createdAt),
	}
}

var _ repositories.BannerRepository = (*BannerRepository)(nil)
