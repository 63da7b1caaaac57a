package services

import (
	"context"
	"time"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	"github.com/dheerghayush/naturals-api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentMethod      = domain.PaymentMethod
	PaymentStatus      = domain.PaymentStatus
	RefundStatus       = domain.RefundStatus
	CustomerInfo       = domain.CustomerInfo
	TrackingEvent      = domain.TrackingEvent
	TrackingProjection = domain.TrackingProjection
	GatewayRefs        = domain.GatewayRefs
	Review             = domain.Review
	ReviewableProduct  = domain.ReviewableProduct
	Product            = domain.Product
	Category           = domain.Category
	Banner             = domain.Banner
	DashboardStats     = domain.DashboardStats
	SystemHealthReport = domain.SystemHealthReport
	AuditLogEntry      = domain.AuditLogEntry
)

// OrderListFilter mirrors the repository filter for order list queries.
type OrderListFilter = repositories.OrderListFilter

// OrderService applies customer and admin actions against the order state machine.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	RequestReplacement(ctx context.Context, cmd RequestReplacementCommand) (Order, error)
	AdminUpdate(ctx context.Context, cmd AdminUpdateOrderCommand) (Order, error)
	Track(ctx context.Context, orderID string, opts OrderReadOptions) (TrackingProjection, error)
	Stats(ctx context.Context) (DashboardStats, error)
}

// OrderReadOptions scopes reads to the requesting customer when ForUser is set.
type OrderReadOptions struct {
	ForUser string
}

// CreateOrderCommand carries everything needed to persist a new order.
type CreateOrderCommand struct {
	UserID        string
	Customer      CustomerInfo
	Items         []OrderItem
	Currency      string
	Subtotal      int64
	ShippingFee   int64
	Total         int64
	PaymentMethod PaymentMethod
	Gateway       GatewayRefs
	PaymentStatus PaymentStatus
	ActorID       string
}

// CancelOrderCommand requests cancellation of an order with a mandatory reason.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
	ActorID string
}

// RequestReplacementCommand opens the replacement sub-flow on a delivered order.
type RequestReplacementCommand struct {
	OrderID string
	UserID  string
	Reason  string
	ActorID string
}

// AdminUpdateOrderCommand mutates order status and/or payment status from the back office.
// Refund fields are deliberately absent; only the refund service writes those.
type AdminUpdateOrderCommand struct {
	OrderID       string
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
	ActorID       string
}

// RefundService owns the refund sub-lifecycle of cancelled gateway orders.
// It is the sole writer of refund_status and the gateway refund references.
type RefundService interface {
	ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error)
	RetryRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error)
}

// ProcessRefundCommand identifies the order whose refund should be transferred.
type ProcessRefundCommand struct {
	OrderID string
	ActorID string
}

// CheckoutService drives gateway payment creation and verification at checkout.
type CheckoutService interface {
	CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
	VerifyAndCreateOrder(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
}

// CreatePaymentIntentCommand opens a gateway order for the given amount.
type CreatePaymentIntentCommand struct {
	UserID   string
	Amount   int64
	Currency string
	Method   PaymentMethod
}

// PaymentIntent is returned to the client to drive the gateway checkout widget.
type PaymentIntent struct {
	GatewayOrderID string
	PublicKey      string
	Amount         int64
	Currency       string
	Provider       string
}

// VerifyPaymentCommand carries the gateway callback artefacts plus the order draft.
type VerifyPaymentCommand struct {
	UserID           string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Method           PaymentMethod
	Order            CreateOrderCommand
}

// ReviewService computes review eligibility and accepts review submissions.
type ReviewService interface {
	ReviewableProducts(ctx context.Context, userID string, orderID string) ([]ReviewableProduct, error)
	SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Review, error)
	ListProductReviews(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[Review], error)
}

// SubmitReviewCommand carries a review for one product of a delivered order.
type SubmitReviewCommand struct {
	UserID    string
	OrderID   string
	ProductID string
	Rating    int
	Text      string
}

// CatalogService manages products, categories and banners for storefront and admin.
type CatalogService interface {
	ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error

	ListCategories(ctx context.Context) ([]Category, error)
	UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	ListBanners(ctx context.Context, activeOnly bool) ([]Banner, error)
	UpsertBanner(ctx context.Context, cmd UpsertBannerCommand) (Banner, error)
	DeleteBanner(ctx context.Context, bannerID string) error
}

// UpsertProductCommand creates or updates a catalog product.
type UpsertProductCommand struct {
	ID          string
	Name        string
	Description string
	Price       int64
	WeightGrams int
	CategoryID  string
	ImagePath   string
	Featured    bool
	InStock     bool
}

// UpsertCategoryCommand creates or updates a catalog category.
type UpsertCategoryCommand struct {
	ID        string
	Name      string
	ImagePath string
}

// UpsertBannerCommand creates or updates a storefront banner.
type UpsertBannerCommand struct {
	ID        string
	Title     string
	ImagePath string
	LinkURL   string
	Active    bool
	SortOrder int
}

// CounterService issues monotonic sequences with optional formatting.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	Prefix       string
	Suffix       string
	PadLength    int
	MaxValue     *int64
	InitialValue *int64
	Formatter    func(now time.Time, value int64) string
}

// CounterValue is the raw and formatted result of a counter increment.
type CounterValue struct {
	Value     int64
	Formatted string
}

// CounterCommand addresses a counter in scope:name format.
type CounterCommand struct {
	CounterID string
	Step      int64
}

// SystemService aggregates dependency health, build metadata and ops utilities.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// AuditLogService records admin actions for later inspection.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// AuditLogRecord captures an admin mutation before sanitisation.
type AuditLogRecord struct {
	Actor                 string
	ActorType             string
	Action                string
	TargetRef             string
	Severity              string
	RequestID             string
	OccurredAt            time.Time
	Metadata              map[string]any
	Diff                  map[string]AuditLogDiff
	SensitiveMetadataKeys []string
	SensitiveDiffKeys     []string
	IPAddress             string
	UserAgent             string
}

// AuditLogDiff captures before/after values for tracked fields.
type AuditLogDiff struct {
	Before any
	After  any
}

// AuditLogFilter narrows audit log listings.
type AuditLogFilter = repositories.AuditLogFilter
