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

const categoriesCollection = "categories"

// CategoryRepository persists catalog categories in Firestore.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[categoryDocument]
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection, nil, nil)
	return &CategoryRepository{base: base}, nil
}

// Insert stores a new category document. The ID must be unique.
func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, categoryID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeCategoryDocument(category)); err != nil {
		return pfirestore.WrapError("categories.insert", err)
	}
	return nil
}

// Update replaces the persisted category state.
func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	if _, err := r.base.Set(ctx, categoryID, encodeCategoryDocument(category)); err != nil {
		return err
	}
	return nil
}

// Delete removes the category document.
func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, categoryID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("categories.delete", err)
	}
	return nil
}

// FindByID fetches a single category.
func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return domain.Category{}, errors.New("category repository: category id is required")
	}
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return decodeCategoryDocument(categoryID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns every category ordered by name. The catalog stays small enough
// that pagination is not needed here.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("category repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, decodeCategoryDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return categories, nil
}

type categoryDocument struct {
	Name      string    `firestore:"name"`
	Slug      string    `firestore:"slug"`
	ImagePath string    `firestore:"imagePath,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeCategoryDocument(category domain.Category) categoryDocument {
	return categoryDocument{
		Name:      strings.TrimSpace(category.Name),
		Slug:      strings.TrimSpace(category.Slug),
		ImagePath: strings.TrimSpace(category.ImagePath),
		CreatedAt: category.CreatedAt.UTC(),
		UpdatedAt: category.UpdatedAt.UTC(),
	}
}

func decodeCategoryDocument(id string, doc categoryDocument, createdAt, updatedAt time.Time) domain.Category {
	return domain.Category{
		ID:        strings.TrimSpace(id),
		Name:      doc.Name,
		Slug:      doc.Slug,
		ImagePath: doc.ImagePath,
		CreatedAt: timeOrFallback(doc.CreatedAt, createdAt),
		UpdatedAt: timeOrFallback(doc.UpdatedAt, updatedAt),
	}
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)
