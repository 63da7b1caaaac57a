package domain

import (
	"strings"
	"time"
)

// Pagination defines standard paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
	TotalSize     int
}

// OrderStatus enumerates every state an order can occupy, including the
// replacement sub-flow layered on top of delivered orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order has been acknowledged by the store.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared for dispatch.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusOutForDelivery indicates the order is with the delivery agent.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before delivery.
	OrderStatusCancelled OrderStatus = "cancelled"

	// OrderStatusReplacementRequested indicates the customer asked to replace a delivered order.
	OrderStatusReplacementRequested OrderStatus = "replacement_requested"
	// OrderStatusReplacementAccepted indicates the store approved the replacement.
	OrderStatusReplacementAccepted OrderStatus = "replacement_accepted"
	// OrderStatusReplacementRejected indicates the store declined the replacement.
	OrderStatusReplacementRejected OrderStatus = "replacement_rejected"
	// OrderStatusReplacementProcessing indicates the replacement is being prepared.
	OrderStatusReplacementProcessing OrderStatus = "replacement_processing"
	// OrderStatusReplacementShipped indicates the replacement has been dispatched.
	OrderStatusReplacementShipped OrderStatus = "replacement_shipped"
	// OrderStatusReplacementOutForDelivery indicates the replacement is with the delivery agent.
	OrderStatusReplacementOutForDelivery OrderStatus = "replacement_out_for_delivery"
	// OrderStatusReplacementDelivered indicates the replacement reached the customer.
	OrderStatusReplacementDelivered OrderStatus = "replacement_delivered"
)

// IsReplacement reports whether the status belongs to the replacement sub-flow.
func (s OrderStatus) IsReplacement() bool {
	return strings.HasPrefix(string(s), "replacement_")
}

// IsTerminal reports whether no further transition can leave the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusReplacementRejected, OrderStatusReplacementDelivered:
		return true
	default:
		return false
	}
}

// PaymentMethod identifies how the customer pays for an order.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery; no gateway is involved.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodRazorpay is an online payment captured through Razorpay.
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	// PaymentMethodStripe is an online payment captured through Stripe.
	PaymentMethodStripe PaymentMethod = "stripe"
)

// IsGateway reports whether the method settles through an online gateway.
func (m PaymentMethod) IsGateway() bool {
	return m == PaymentMethodRazorpay || m == PaymentMethodStripe
}

// PaymentStatus tracks whether the order has been paid.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not completed yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates payment was captured successfully.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the payment attempt failed.
	PaymentStatusFailed PaymentStatus = "failed"
)

// RefundStatus tracks the gateway refund sub-lifecycle of a cancelled order.
// The zero value means no refund applies.
type RefundStatus string

const (
	// RefundStatusProcessing indicates a refund transfer is in flight.
	RefundStatusProcessing RefundStatus = "processing"
	// RefundStatusCompleted indicates the gateway confirmed the refund.
	RefundStatusCompleted RefundStatus = "completed"
	// RefundStatusFailed indicates the refund attempt failed and may be retried.
	RefundStatusFailed RefundStatus = "failed"
)

// OrderItem snapshots a purchased product at checkout time. The snapshot is
// immutable once the order exists, regardless of later catalog edits.
type OrderItem struct {
	ProductID   string
	Name        string
	UnitPrice   int64
	Quantity    int
	WeightGrams int
	ImageURL    string
}

// CustomerInfo snapshots the customer's delivery details at checkout time.
type CustomerInfo struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
	State   string
	Pincode string
}

// TrackingEvent is a timestamped fulfilment milestone attached to an order.
type TrackingEvent struct {
	Status      OrderStatus
	Description string
	Timestamp   time.Time
	Location    string
	Completed   bool
}

// GatewayRefs stores external payment gateway identifiers for an order.
type GatewayRefs struct {
	Provider  string
	OrderID   string
	PaymentID string
	RefundID  string
}

// Order is the canonical purchase record. Amounts are in the smallest
// currency unit and Total = Subtotal + ShippingFee, fixed at creation.
type Order struct {
	ID                     string
	Number                 string
	UserID                 string
	Status                 OrderStatus
	PaymentMethod          PaymentMethod
	PaymentStatus          PaymentStatus
	RefundStatus           RefundStatus
	ReplacementStatus      OrderStatus
	Items                  []OrderItem
	Customer               CustomerInfo
	Currency               string
	Subtotal               int64
	ShippingFee            int64
	Total                  int64
	TrackingEvents         []TrackingEvent
	CancelReason           string
	CancelledAt            *time.Time
	ReplacementReason      string
	ReplacementRequestedAt *time.Time
	Gateway                GatewayRefs
	RefundError            string
	RefundErrorInternal    string
	RefundAttempts         int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// DeliveredAt resolves the delivery timestamp from the most recent delivered
// tracking event, falling back to the creation time when no such event exists.
func (o Order) DeliveredAt() time.Time {
	for i := len(o.TrackingEvents) - 1; i >= 0; i-- {
		event := o.TrackingEvents[i]
		if event.Status == OrderStatusDelivered && !event.Timestamp.IsZero() {
			return event.Timestamp
		}
	}
	return o.CreatedAt
}

// TrackingProjection is the read-only tracking view derived from an order.
type TrackingProjection struct {
	OrderID           string
	Status            OrderStatus
	Events            []TrackingEvent
	EstimatedDelivery time.Time
}

// Review is a customer review tied to a specific (order, product) pair.
// At most one review exists per pair.
type Review struct {
	ID        string
	OrderID   string
	ProductID string
	UserID    string
	Rating    int
	Text      string
	CreatedAt time.Time
}

// ReviewableProduct reports review eligibility for one item of a delivered order.
type ReviewableProduct struct {
	ProductID string
	Name      string
	ImageURL  string
	Reviewed  bool
}

// Product is a catalog entry managed by the back office.
type Product struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Price       int64
	WeightGrams int
	CategoryID  string
	ImagePath   string
	ImageURL    string
	Featured    bool
	InStock     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category groups catalog products.
type Category struct {
	ID        string
	Name      string
	Slug      string
	ImagePath string
	ImageURL  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Banner is a storefront promotional slot.
type Banner struct {
	ID        string
	Title     string
	ImagePath string
	ImageURL  string
	LinkURL   string
	Active    bool
	SortOrder int
	CreatedAt time.Time
}

// DashboardStats aggregates back-office counters.
type DashboardStats struct {
	TotalOrders      int64
	PaidRevenue      int64
	PendingRefunds   int64
	OpenReplacements int64
	GeneratedAt      time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry stores normalized audit information for admin use.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Diff      map[string]any
	IPHash    string
	UserAgent string
	Severity  string
	RequestID string
	CreatedAt time.Time
}
