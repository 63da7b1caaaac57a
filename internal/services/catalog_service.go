package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/repositories"
)

const (
	productIDPrefix  = "prd_"
	categoryIDPrefix = "cat_"
	bannerIDPrefix   = "bnr_"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the catalog entity could not be located.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a concurrent modification or duplicate entity.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// ImageURLResolver turns a stored object path into a URL the client can fetch.
type ImageURLResolver func(ctx context.Context, objectPath string) (string, error)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Banners     repositories.BannerRepository
	ImageURLs   ImageURLResolver
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	banners    repositories.BannerRepository
	imageURLs  ImageURLResolver
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	if deps.Banners == nil {
		return nil, errors.New("catalog service: banner repository is required")
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

	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		banners:    deps.Banners,
		imageURLs:  deps.ImageURLs,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, mapCatalogRepositoryError(err)
	}
	for i := range page.Items {
		page.Items[i].ImageURL = s.resolveImageURL(ctx, page.Items[i].ImagePath)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}
	product.ImageURL = s.resolveImageURL(ctx, product.ImagePath)
	return product, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price < 0 {
		return Product{}, fmt.Errorf("%w: price cannot be negative", ErrCatalogInvalidInput)
	}

	now := s.clock()
	if id := strings.TrimSpace(cmd.ID); id != "" {
		existing, err := s.products.FindByID(ctx, id)
		if err != nil {
			return Product{}, mapCatalogRepositoryError(err)
		}
		existing.Name = name
		existing.Slug = slugify(name)
		existing.Description = strings.TrimSpace(cmd.Description)
		existing.Price = cmd.Price
		existing.WeightGrams = cmd.WeightGrams
		existing.CategoryID = strings.TrimSpace(cmd.CategoryID)
		existing.ImagePath = strings.TrimSpace(cmd.ImagePath)
		existing.Featured = cmd.Featured
		existing.InStock = cmd.InStock
		existing.UpdatedAt = now
		if err := s.products.Update(ctx, existing); err != nil {
			return Product{}, mapCatalogRepositoryError(err)
		}
		existing.ImageURL = s.resolveImageURL(ctx, existing.ImagePath)
		return existing, nil
	}

	product := Product{
		ID:          productIDPrefix + s.newID(),
		Name:        name,
		Slug:        slugify(name),
		Description: strings.TrimSpace(cmd.Description),
		Price:       cmd.Price,
		WeightGrams: cmd.WeightGrams,
		CategoryID:  strings.TrimSpace(cmd.CategoryID),
		ImagePath:   strings.TrimSpace(cmd.ImagePath),
		Featured:    cmd.Featured,
		InStock:     cmd.InStock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}
	product.ImageURL = s.resolveImageURL(ctx, product.ImagePath)
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	return mapCatalogRepositoryError(s.products.Delete(ctx, productID))
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, mapCatalogRepositoryError(err)
	}
	return categories, nil
}

func (s *catalogService) UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}

	now := s.clock()
	if id := strings.TrimSpace(cmd.ID); id != "" {
		existing, err := s.categories.FindByID(ctx, id)
		if err != nil {
			return Category{}, mapCatalogRepositoryError(err)
		}
		existing.Name = name
		existing.Slug = slugify(name)
		existing.ImagePath = strings.TrimSpace(cmd.ImagePath)
		existing.UpdatedAt = now
		if err := s.categories.Update(ctx, existing); err != nil {
			return Category{}, mapCatalogRepositoryError(err)
		}
		return existing, nil
	}

	category := Category{
		ID:        categoryIDPrefix + s.newID(),
		Name:      name,
		Slug:      slugify(name),
		ImagePath: strings.TrimSpace(cmd.ImagePath),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		return Category{}, mapCatalogRepositoryError(err)
	}
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	return mapCatalogRepositoryError(s.categories.Delete(ctx, categoryID))
}

func (s *catalogService) ListBanners(ctx context.Context, activeOnly bool) ([]Banner, error) {
	banners, err := s.banners.List(ctx, activeOnly)
	if err != nil {
		return nil, mapCatalogRepositoryError(err)
	}
	for i := range banners {
		banners[i].ImageURL = s.resolveImageURL(ctx, banners[i].ImagePath)
	}
	return banners, nil
}

func (s *catalogService) UpsertBanner(ctx context.Context, cmd UpsertBannerCommand) (Banner, error) {
	title := strings.TrimSpace(cmd.Title)
	imagePath := strings.TrimSpace(cmd.ImagePath)
	if title == "" && imagePath == "" {
		return Banner{}, fmt.Errorf("%w: banner needs a title or an image", ErrCatalogInvalidInput)
	}

	if id := strings.TrimSpace(cmd.ID); id != "" {
		existing, err := s.banners.FindByID(ctx, id)
		if err != nil {
			return Banner{}, mapCatalogRepositoryError(err)
		}
		existing.Title = title
		existing.ImagePath = imagePath
		existing.LinkURL = strings.TrimSpace(cmd.LinkURL)
		existing.Active = cmd.Active
		existing.SortOrder = cmd.SortOrder
		if err := s.banners.Update(ctx, existing); err != nil {
			return Banner{}, mapCatalogRepositoryError(err)
		}
		existing.ImageURL = s.resolveImageURL(ctx, existing.ImagePath)
		return existing, nil
	}

	banner := Banner{
		ID:        bannerIDPrefix + s.newID(),
		Title:     title,
		ImagePath: imagePath,
		LinkURL:   strings.TrimSpace(cmd.LinkURL),
		Active:    cmd.Active,
		SortOrder: cmd.SortOrder,
		CreatedAt: s.clock(),
	}
	if err := s.banners.Insert(ctx, banner); err != nil {
		return Banner{}, mapCatalogRepositoryError(err)
	}
	banner.ImageURL = s.resolveImageURL(ctx, banner.ImagePath)
	return banner, nil
}

func (s *catalogService) DeleteBanner(ctx context.Context, bannerID string) error {
	bannerID = strings.TrimSpace(bannerID)
	if bannerID == "" {
		return fmt.Errorf("%w: banner id is required", ErrCatalogInvalidInput)
	}
	return mapCatalogRepositoryError(s.banners.Delete(ctx, bannerID))
}

func (s *catalogService) resolveImageURL(ctx context.Context, objectPath string) string {
	if objectPath == "" {
		return ""
	}
	if s.imageURLs == nil {
		return objectPath
	}
	url, err := s.imageURLs(ctx, objectPath)
	if err != nil {
		s.logger(ctx, "catalog.image_url.failed", map[string]any{
			"path":  objectPath,
			"error": err.Error(),
		})
		return ""
	}
	return url
}

// slugify lowercases, strips diacritics and collapses everything else to hyphens.
func slugify(name string) string {
	decomposed := norm.NFKD.String(strings.ToLower(strings.TrimSpace(name)))

	var b strings.Builder
	lastHyphen := true
	for _, r := range decomposed {
		switch {
		case unicode.IsLetter(r) && r < unicode.MaxASCII, unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case unicode.Is(unicode.Mn, r):
			// Combining marks left over from decomposition are dropped.
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func mapCatalogRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}

	return err
}
