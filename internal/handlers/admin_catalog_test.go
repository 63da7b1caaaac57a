package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/dheerghayush/naturals-api/internal/services"
)

func newAdminCatalogRouter(catalog services.CatalogService, audit services.AuditLogService) chi.Router {
	r := chi.NewRouter()
	NewAdminCatalogHandlers(nil, catalog, audit, nil).Routes(r)
	return r
}

func TestAdminCreateProduct(t *testing.T) {
	var captured services.UpsertProductCommand
	catalog := &stubCatalogService{
		upsertProductFn: func(_ context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
			captured = cmd
			return services.Product{ID: "prd_new", Name: cmd.Name, Price: cmd.Price, InStock: cmd.InStock}, nil
		},
	}
	audit := &stubAuditService{}

	payload := `{"name": "Herbal Soap", "description": "Cold pressed", "price": 225, "weight_grams": 100, "category_id": "cat_1", "in_stock": true}`
	router := newAdminCatalogRouter(catalog, audit)
	req := authedRequest(http.MethodPost, "/products", []byte(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ID != "" {
		t.Fatalf("expected empty id on create, got %q", captured.ID)
	}
	if captured.Name != "Herbal Soap" || captured.Price != 225 || !captured.InStock {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if len(audit.records) != 1 || audit.records[0].Action != "catalog.product.created" {
		t.Fatalf("expected audit record, got %+v", audit.records)
	}
}

func TestAdminUpdateProductUsesPathID(t *testing.T) {
	var captured services.UpsertProductCommand
	catalog := &stubCatalogService{
		upsertProductFn: func(_ context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
			captured = cmd
			return services.Product{ID: cmd.ID, Name: cmd.Name}, nil
		},
	}

	router := newAdminCatalogRouter(catalog, nil)
	req := authedRequest(http.MethodPut, "/products/prd_1", []byte(`{"name": "Herbal Soap", "price": 250}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ID != "prd_1" {
		t.Fatalf("expected id prd_1, got %q", captured.ID)
	}
}

func TestAdminDeleteProductNotFound(t *testing.T) {
	catalog := &stubCatalogService{
		deleteProductFn: func(context.Context, string) error {
			return services.ErrCatalogNotFound
		},
	}

	router := newAdminCatalogRouter(catalog, nil)
	req := authedRequest(http.MethodDelete, "/products/prd_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdminDeleteBannerRecordsAudit(t *testing.T) {
	catalog := &stubCatalogService{
		deleteBannerFn: func(context.Context, string) error { return nil },
	}
	audit := &stubAuditService{}

	router := newAdminCatalogRouter(catalog, audit)
	req := authedRequest(http.MethodDelete, "/banners/bnr_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if len(audit.records) != 1 || audit.records[0].Action != "catalog.banner.deleted" {
		t.Fatalf("expected audit record, got %+v", audit.records)
	}
	if audit.records[0].TargetRef != "banner:bnr_1" {
		t.Fatalf("unexpected target: %s", audit.records[0].TargetRef)
	}
}

func TestAdminUpsertCategoryValidationError(t *testing.T) {
	catalog := &stubCatalogService{
		upsertCategoryFn: func(context.Context, services.UpsertCategoryCommand) (services.Category, error) {
			return services.Category{}, services.ErrCatalogInvalidInput
		},
	}

	router := newAdminCatalogRouter(catalog, nil)
	req := authedRequest(http.MethodPost, "/categories", []byte(`{"name": ""}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "invalid_request" {
		t.Fatalf("expected invalid_request code, got %v", body["error"])
	}
}

func TestAdminSignImageUpload(t *testing.T) {
	var signedPath, signedType string
	uploads := func(_ context.Context, objectPath, contentType string) (UploadTarget, error) {
		signedPath = objectPath
		signedType = contentType
		return UploadTarget{
			URL:        "https://storage.googleapis.com/signed",
			Method:     http.MethodPut,
			ObjectPath: objectPath,
			Headers:    map[string]string{"Content-Type": contentType},
		}, nil
	}
	audit := &stubAuditService{}
	r := chi.NewRouter()
	NewAdminCatalogHandlers(nil, &stubCatalogService{}, audit, uploads).Routes(r)

	payload := `{"purpose": "product", "entity_id": "prd_1", "file_name": "hero.jpg", "content_type": "image/jpeg"}`
	req := authedRequest(http.MethodPost, "/uploads/images", []byte(payload))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if signedPath != "products/prd_1/hero.jpg" {
		t.Fatalf("unexpected object path %q", signedPath)
	}
	if signedType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", signedType)
	}

	var body signImageUploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.UploadURL == "" || body.Method != http.MethodPut || body.ObjectPath != signedPath {
		t.Fatalf("unexpected response: %+v", body)
	}
	if len(audit.records) != 1 || audit.records[0].Action != "catalog.image.upload_signed" {
		t.Fatalf("expected audit record, got %+v", audit.records)
	}
}

func TestAdminSignImageUploadRejectsUnknownPurpose(t *testing.T) {
	r := chi.NewRouter()
	NewAdminCatalogHandlers(nil, &stubCatalogService{}, nil, func(context.Context, string, string) (UploadTarget, error) {
		return UploadTarget{}, nil
	}).Routes(r)

	payload := `{"purpose": "invoice", "entity_id": "ord_1", "file_name": "a.pdf", "content_type": "application/pdf"}`
	req := authedRequest(http.MethodPost, "/uploads/images", []byte(payload))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminSignImageUploadUnconfigured(t *testing.T) {
	router := newAdminCatalogRouter(&stubCatalogService{}, nil)
	payload := `{"purpose": "product", "entity_id": "prd_1", "file_name": "hero.jpg", "content_type": "image/jpeg"}`
	req := authedRequest(http.MethodPost, "/uploads/images", []byte(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
