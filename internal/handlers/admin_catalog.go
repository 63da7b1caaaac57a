package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dheerghayush/naturals-api/internal/platform/auth"
	"github.com/dheerghayush/naturals-api/internal/platform/httpx"
	platformstorage "github.com/dheerghayush/naturals-api/internal/platform/storage"
	"github.com/dheerghayush/naturals-api/internal/services"
)

const maxCatalogRequestBody = 256 * 1024

// UploadTarget describes a signed URL the admin client uses to push an image
// object directly to storage.
type UploadTarget struct {
	URL        string
	Method     string
	ObjectPath string
	ExpiresAt  time.Time
	Headers    map[string]string
}

// ImageUploadSigner issues a signed upload URL for a catalog image object path.
type ImageUploadSigner func(ctx context.Context, objectPath, contentType string) (UploadTarget, error)

// AdminCatalogHandlers exposes back-office catalog CRUD endpoints.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	audit   services.AuditLogService
	uploads ImageUploadSigner
}

// NewAdminCatalogHandlers constructs admin catalog handlers. The upload signer
// is optional; without it the image upload endpoint reports unavailable.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, audit services.AuditLogService, uploads ImageUploadSigner) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{authn: authn, catalog: catalog, audit: audit, uploads: uploads}
}

// Routes registers admin catalog endpoints. Callers mount these under a group
// that already enforces the admin role.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Post("/categories", h.createCategory)
	r.Put("/categories/{categoryID}", h.updateCategory)
	r.Delete("/categories/{categoryID}", h.deleteCategory)
	r.Post("/banners", h.createBanner)
	r.Put("/banners/{bannerID}", h.updateBanner)
	r.Delete("/banners/{bannerID}", h.deleteBanner)
	r.Post("/uploads/images", h.signImageUpload)
}

type upsertProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	WeightGrams int    `json:"weight_grams"`
	CategoryID  string `json:"category_id"`
	ImagePath   string `json:"image_path"`
	Featured    bool   `json:"featured"`
	InStock     bool   `json:"in_stock"`
}

type upsertCategoryRequest struct {
	Name      string `json:"name"`
	ImagePath string `json:"image_path"`
}

type upsertBannerRequest struct {
	Title     string `json:"title"`
	ImagePath string `json:"image_path"`
	LinkURL   string `json:"link_url"`
	Active    bool   `json:"active"`
	SortOrder int    `json:"sort_order"`
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, strings.TrimSpace(chi.URLParam(r, "productID")))
}

func (h *AdminCatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertProductRequest
	if !h.readAdminBody(w, r, &req) {
		return
	}

	product, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{
		ID:          productID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		WeightGrams: req.WeightGrams,
		CategoryID:  strings.TrimSpace(req.CategoryID),
		ImagePath:   strings.TrimSpace(req.ImagePath),
		Featured:    req.Featured,
		InStock:     req.InStock,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	h.recordAudit(r, identity, auditActionForSave(r, "catalog.product"), "product:"+product.ID, map[string]any{
		"name":  product.Name,
		"price": product.Price,
	})
	writeJSONResponse(w, saveStatus(r), buildProductPayload(product))
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	h.recordAudit(r, identity, "catalog.product.deleted", "product:"+productID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, "")
}

func (h *AdminCatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, strings.TrimSpace(chi.URLParam(r, "categoryID")))
}

func (h *AdminCatalogHandlers) saveCategory(w http.ResponseWriter, r *http.Request, categoryID string) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertCategoryRequest
	if !h.readAdminBody(w, r, &req) {
		return
	}

	category, err := h.catalog.UpsertCategory(ctx, services.UpsertCategoryCommand{
		ID:        categoryID,
		Name:      strings.TrimSpace(req.Name),
		ImagePath: strings.TrimSpace(req.ImagePath),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	h.recordAudit(r, identity, auditActionForSave(r, "catalog.category"), "category:"+category.ID, map[string]any{
		"name": category.Name,
	})
	writeJSONResponse(w, saveStatus(r), buildCategoryPayload(category))
}

func (h *AdminCatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categoryID := strings.TrimSpace(chi.URLParam(r, "categoryID"))
	if err := h.catalog.DeleteCategory(ctx, categoryID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	h.recordAudit(r, identity, "catalog.category.deleted", "category:"+categoryID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) createBanner(w http.ResponseWriter, r *http.Request) {
	h.saveBanner(w, r, "")
}

func (h *AdminCatalogHandlers) updateBanner(w http.ResponseWriter, r *http.Request) {
	h.saveBanner(w, r, strings.TrimSpace(chi.URLParam(r, "bannerID")))
}

func (h *AdminCatalogHandlers) saveBanner(w http.ResponseWriter, r *http.Request, bannerID string) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertBannerRequest
	if !h.readAdminBody(w, r, &req) {
		return
	}

	banner, err := h.catalog.UpsertBanner(ctx, services.UpsertBannerCommand{
		ID:        bannerID,
		Title:     strings.TrimSpace(req.Title),
		ImagePath: strings.TrimSpace(req.ImagePath),
		LinkURL:   strings.TrimSpace(req.LinkURL),
		Active:    req.Active,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	h.recordAudit(r, identity, auditActionForSave(r, "catalog.banner"), "banner:"+banner.ID, map[string]any{
		"title":  banner.Title,
		"active": banner.Active,
	})
	writeJSONResponse(w, saveStatus(r), buildBannerPayload(banner))
}

func (h *AdminCatalogHandlers) deleteBanner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	bannerID := strings.TrimSpace(chi.URLParam(r, "bannerID"))
	if err := h.catalog.DeleteBanner(ctx, bannerID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	h.recordAudit(r, identity, "catalog.banner.deleted", "banner:"+bannerID, nil)
	w.WriteHeader(http.StatusNoContent)
}

type signImageUploadRequest struct {
	Purpose     string `json:"purpose"`
	EntityID    string `json:"entity_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

type signImageUploadResponse struct {
	UploadURL  string            `json:"upload_url"`
	Method     string            `json:"method"`
	ObjectPath string            `json:"object_path"`
	ExpiresAt  string            `json:"expires_at"`
	Headers    map[string]string `json:"headers,omitempty"`
}

var imageUploadPurposes = map[string]platformstorage.AssetPurpose{
	"product":  platformstorage.PurposeProductImage,
	"category": platformstorage.PurposeCategoryImage,
	"banner":   platformstorage.PurposeBannerImage,
}

// signImageUpload hands the admin client a short-lived signed URL so image
// bytes never pass through the API.
func (h *AdminCatalogHandlers) signImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("uploads_unavailable", "image uploads are not configured", http.StatusServiceUnavailable))
		return
	}

	var req signImageUploadRequest
	if !h.readAdminBody(w, r, &req) {
		return
	}

	purpose, ok := imageUploadPurposes[strings.ToLower(strings.TrimSpace(req.Purpose))]
	if !ok {
		writeInvalidRequest(w, r, "purpose must be one of product, category or banner")
		return
	}
	if strings.TrimSpace(req.ContentType) == "" {
		writeInvalidRequest(w, r, "content_type is required")
		return
	}

	objectPath, err := platformstorage.BuildObjectPath(purpose, platformstorage.PathParams{
		EntityID: req.EntityID,
		FileName: req.FileName,
	})
	if err != nil {
		writeInvalidRequest(w, r, "entity_id and file_name must form a valid object path")
		return
	}

	target, err := h.uploads(ctx, objectPath, strings.TrimSpace(req.ContentType))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_sign_failed", "unable to sign the upload URL", http.StatusInternalServerError))
		return
	}

	h.recordAudit(r, identity, "catalog.image.upload_signed", "object:"+objectPath, map[string]any{
		"content_type": req.ContentType,
	})
	writeJSONResponse(w, http.StatusOK, signImageUploadResponse{
		UploadURL:  target.URL,
		Method:     target.Method,
		ObjectPath: target.ObjectPath,
		ExpiresAt:  target.ExpiresAt.UTC().Format(time.RFC3339),
		Headers:    target.Headers,
	})
}

func (h *AdminCatalogHandlers) readAdminBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxCatalogRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			writeInvalidRequest(w, r, "request body is required")
		default:
			writeInvalidRequest(w, r, "unable to read request body")
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeInvalidRequest(w, r, "invalid JSON payload")
		return false
	}
	return true
}

func (h *AdminCatalogHandlers) recordAudit(r *http.Request, identity *auth.Identity, action, targetRef string, metadata map[string]any) {
	if h.audit == nil {
		return
	}
	h.audit.Record(r.Context(), services.AuditLogRecord{
		Actor:     identity.UID,
		ActorType: "admin",
		Action:    action,
		TargetRef: targetRef,
		RequestID: middleware.GetReqID(r.Context()),
		Metadata:  cloneMap(metadata),
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}

func auditActionForSave(r *http.Request, prefix string) string {
	if r.Method == http.MethodPost {
		return fmt.Sprintf("%s.created", prefix)
	}
	return fmt.Sprintf("%s.updated", prefix)
}

func saveStatus(r *http.Request) int {
	if r.Method == http.MethodPost {
		return http.StatusCreated
	}
	return http.StatusOK
}
