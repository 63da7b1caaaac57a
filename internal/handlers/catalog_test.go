package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/repositories"
	"github.com/dheerghayush/naturals-api/internal/services"
)

type stubCatalogService struct {
	listProductsFn   func(context.Context, repositories.ProductListFilter) (domain.CursorPage[services.Product], error)
	getProductFn     func(context.Context, string) (services.Product, error)
	upsertProductFn  func(context.Context, services.UpsertProductCommand) (services.Product, error)
	deleteProductFn  func(context.Context, string) error
	listCategoriesFn func(context.Context) ([]services.Category, error)
	upsertCategoryFn func(context.Context, services.UpsertCategoryCommand) (services.Category, error)
	deleteCategoryFn func(context.Context, string) error
	listBannersFn    func(context.Context, bool) ([]services.Banner, error)
	upsertBannerFn   func(context.Context, services.UpsertBannerCommand) (services.Banner, error)
	deleteBannerFn   func(context.Context, string) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listProductsFn != nil {
		return s.listProductsFn(ctx, filter)
	}
	return domain.CursorPage[services.Product]{}, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getProductFn != nil {
		return s.getProductFn(ctx, productID)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) UpsertProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.upsertProductFn != nil {
		return s.upsertProductFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteProductFn != nil {
		return s.deleteProductFn(ctx, productID)
	}
	return errors.New("not implemented")
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]services.Category, error) {
	if s.listCategoriesFn != nil {
		return s.listCategoriesFn(ctx)
	}
	return nil, nil
}

func (s *stubCatalogService) UpsertCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
	if s.upsertCategoryFn != nil {
		return s.upsertCategoryFn(ctx, cmd)
	}
	return services.Category{}, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s.deleteCategoryFn != nil {
		return s.deleteCategoryFn(ctx, categoryID)
	}
	return errors.New("not implemented")
}

func (s *stubCatalogService) ListBanners(ctx context.Context, activeOnly bool) ([]services.Banner, error) {
	if s.listBannersFn != nil {
		return s.listBannersFn(ctx, activeOnly)
	}
	return nil, nil
}

func (s *stubCatalogService) UpsertBanner(ctx context.Context, cmd services.UpsertBannerCommand) (services.Banner, error) {
	if s.upsertBannerFn != nil {
		return s.upsertBannerFn(ctx, cmd)
	}
	return services.Banner{}, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteBanner(ctx context.Context, bannerID string) error {
	if s.deleteBannerFn != nil {
		return s.deleteBannerFn(ctx, bannerID)
	}
	return errors.New("not implemented")
}

var _ services.CatalogService = (*stubCatalogService)(nil)

func newCatalogRouter(catalog services.CatalogService) chi.Router {
	r := chi.NewRouter()
	NewCatalogHandlers(catalog, &stubReviewService{}).Routes(r)
	return r
}

func TestListProductsAppliesFilters(t *testing.T) {
	var captured repositories.ProductListFilter
	svc := &stubCatalogService{
		listProductsFn: func(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[services.Product], error) {
			captured = filter
			return domain.CursorPage[services.Product]{
				Items: []services.Product{{
					ID:        "prd_1",
					Name:      "Herbal Soap",
					Price:     225,
					InStock:   true,
					CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
				}},
			}, nil
		},
	}

	router := newCatalogRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/products?category=cat_1&featured=true&in_stock=true&page_size=10", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CategoryID != "cat_1" || !captured.FeaturedOnly || !captured.InStockOnly {
		t.Fatalf("unexpected filter: %+v", captured)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", captured.Pagination.PageSize)
	}

	var body productListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Name != "Herbal Soap" {
		t.Fatalf("unexpected items: %+v", body.Items)
	}
}

func TestGetProductNotFound(t *testing.T) {
	svc := &stubCatalogService{
		getProductFn: func(context.Context, string) (services.Product, error) {
			return services.Product{}, services.ErrCatalogNotFound
		},
	}

	router := newCatalogRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/products/prd_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestListCategories(t *testing.T) {
	svc := &stubCatalogService{
		listCategoriesFn: func(context.Context) ([]services.Category, error) {
			return []services.Category{
				{ID: "cat_1", Name: "Skincare", Slug: "skincare"},
				{ID: "cat_2", Name: "Haircare", Slug: "haircare"},
			}, nil
		},
	}

	router := newCatalogRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body categoryListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 2 || body.Items[0].Slug != "skincare" {
		t.Fatalf("unexpected items: %+v", body.Items)
	}
}

func TestListBannersRequestsActiveOnly(t *testing.T) {
	svc := &stubCatalogService{
		listBannersFn: func(_ context.Context, activeOnly bool) ([]services.Banner, error) {
			if !activeOnly {
				t.Fatal("expected active-only banner listing")
			}
			return []services.Banner{{ID: "bnr_1", Title: "Summer Sale", Active: true, SortOrder: 1}}, nil
		},
	}

	router := newCatalogRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/banners", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body bannerListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Title != "Summer Sale" {
		t.Fatalf("unexpected items: %+v", body.Items)
	}
}
