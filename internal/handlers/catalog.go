package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/platform/httpx"
	"github.com/dheerghayush/naturals-api/internal/repositories"
	"github.com/dheerghayush/naturals-api/internal/services"
)

const (
	defaultProductPageSize = 20
	maxProductPageSize     = 100
	defaultReviewPageSize  = 20
	maxReviewPageSize      = 50
)

// CatalogHandlers exposes the public storefront catalog endpoints.
type CatalogHandlers struct {
	catalog services.CatalogService
	reviews services.ReviewService
}

// NewCatalogHandlers constructs handlers for the unauthenticated catalog surface.
func NewCatalogHandlers(catalog services.CatalogService, reviews services.ReviewService) *CatalogHandlers {
	return &CatalogHandlers{
		catalog: catalog,
		reviews: reviews,
	}
}

// Routes registers the public catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/products/{productID}/reviews", h.listProductReviews)
	r.Get("/categories", h.listCategories)
	r.Get("/banners", h.listBanners)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultProductPageSize, maxProductPageSize)
	if err != nil {
		writeInvalidRequest(w, r, err.Error())
		return
	}

	filter := repositories.ProductListFilter{
		CategoryID:   strings.TrimSpace(query.Get("category")),
		FeaturedOnly: query.Get("featured") == "true",
		InStockOnly:  query.Get("in_stock") == "true",
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *CatalogHandlers) listProductReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultReviewPageSize, maxReviewPageSize)
	if err != nil {
		writeInvalidRequest(w, r, err.Error())
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	page, err := h.reviews.ListProductReviews(ctx, productID, domain.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	items := make([]reviewPayload, 0, len(page.Items))
	for _, review := range page.Items {
		items = append(items, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, reviewListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, categoryListResponse{Items: items})
}

func (h *CatalogHandlers) listBanners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	// Storefront clients only ever see active banners.
	banners, err := h.catalog.ListBanners(ctx, true)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]bannerPayload, 0, len(banners))
	for _, banner := range banners {
		items = append(items, buildBannerPayload(banner))
	}
	writeJSONResponse(w, http.StatusOK, bannerListResponse{Items: items})
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	WeightGrams int    `json:"weight_grams,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Featured    bool   `json:"featured"`
	InStock     bool   `json:"in_stock"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type reviewListResponse struct {
	Items         []reviewPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type categoryListResponse struct {
	Items []categoryPayload `json:"items"`
}

type categoryPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type bannerListResponse struct {
	Items []bannerPayload `json:"items"`
}

type bannerPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ImageURL  string `json:"image_url,omitempty"`
	LinkURL   string `json:"link_url,omitempty"`
	Active    bool   `json:"active"`
	SortOrder int    `json:"sort_order"`
	CreatedAt string `json:"created_at,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Slug:        product.Slug,
		Description: product.Description,
		Price:       product.Price,
		WeightGrams: product.WeightGrams,
		CategoryID:  product.CategoryID,
		ImageURL:    product.ImageURL,
		Featured:    product.Featured,
		InStock:     product.InStock,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

func buildCategoryPayload(category domain.Category) categoryPayload {
	return categoryPayload{
		ID:       category.ID,
		Name:     category.Name,
		Slug:     category.Slug,
		ImageURL: category.ImageURL,
	}
}

func buildBannerPayload(banner domain.Banner) bannerPayload {
	return bannerPayload{
		ID:        banner.ID,
		Title:     banner.Title,
		ImageURL:  banner.ImageURL,
		LinkURL:   banner.LinkURL,
		Active:    banner.Active,
		SortOrder: banner.SortOrder,
		CreatedAt: formatTime(banner.CreatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid catalog request", http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", "catalog entry not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", "catalog entry was modified concurrently", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "unable to process catalog request", http.StatusInternalServerError))
	}
}
