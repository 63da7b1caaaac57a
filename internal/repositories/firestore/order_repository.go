package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"

	domain "github.com/dheerghayush/naturals-api/internal/domain"
	pfirestore "github.com/dheerghayush/naturals-api/internal/platform/firestore"
	"github.com/dheerghayush/naturals-api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order documents in Firestore. Reads and writes
// participate in an ambient transaction when one is carried by the context.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert stores a new order document. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)
	if tx, ok := txFromContext(ctx); ok {
		if err := tx.Create(docRef, doc); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)
	if tx, ok := txFromContext(ctx); ok {
		if err := tx.Set(docRef, doc); err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		return nil
	}
	if _, err := docRef.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if tx, ok := txFromContext(ctx); ok {
		docRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}
		return decodeOrderDocument(orderID, doc, snap.CreateTime, snap.UpdateTime), nil
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(orderID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns orders matching the filter ordered by most recent creation.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := normaliseOrderStatuses(filter.Statuses)
	userID := strings.TrimSpace(filter.UserID)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}

		switch {
		case filter.RefundQueueOnly:
			q = q.Where("refundStatus", "in", []string{
				string(domain.RefundStatusProcessing),
				string(domain.RefundStatusFailed),
			})
		case filter.ReplacementsOnly:
			q = q.Where("replacementOpen", "==", true)
		case len(statusFilters) == 1:
			q = q.Where("status", "==", statusFilters[0])
		case len(statusFilters) > 1:
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}

		if filter.DateRange.From != nil && !filter.DateRange.From.IsZero() {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil && !filter.DateRange.To.IsZero() {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
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

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// CollectStats aggregates back-office dashboard counters using Firestore
// server-side aggregation so no order documents are streamed to the API.
func (r *OrderRepository) CollectStats(ctx context.Context, now time.Time) (domain.DashboardStats, error) {
	if r == nil || r.provider == nil {
		return domain.DashboardStats{}, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	coll := client.Collection(ordersCollection)

	total, err := aggregateCount(ctx, coll.Query)
	if err != nil {
		return domain.DashboardStats{}, pfirestore.WrapError("orders.stats.total", err)
	}

	revenue, err := aggregateSum(ctx, coll.Query.Where("paymentStatus", "==", string(domain.PaymentStatusPaid)), "total")
	if err != nil {
		return domain.DashboardStats{}, pfirestore.WrapError("orders.stats.revenue", err)
	}

	pendingRefunds, err := aggregateCount(ctx, coll.Query.Where("refundStatus", "in", []string{
		string(domain.RefundStatusProcessing),
		string(domain.RefundStatusFailed),
	}))
	if err != nil {
		return domain.DashboardStats{}, pfirestore.WrapError("orders.stats.refunds", err)
	}

	openReplacements, err := aggregateCount(ctx, coll.Query.Where("replacementOpen", "==", true))
	if err != nil {
		return domain.DashboardStats{}, pfirestore.WrapError("orders.stats.replacements", err)
	}

	return domain.DashboardStats{
		TotalOrders:      total,
		PaidRevenue:      revenue,
		PendingRefunds:   pendingRefunds,
		OpenReplacements: openReplacements,
		GeneratedAt:      now.UTC(),
	}, nil
}

func aggregateCount(ctx context.Context, query firestore.Query) (int64, error) {
	results, err := query.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, err
	}
	return aggregationInt(results, "count")
}

func aggregateSum(ctx context.Context, query firestore.Query, field string) (int64, error) {
	results, err := query.NewAggregationQuery().WithSum(field, "sum").Get(ctx)
	if err != nil {
		return 0, err
	}
	return aggregationInt(results, "sum")
}

func aggregationInt(results firestore.AggregationResult, alias string) (int64, error) {
	raw, ok := results[alias]
	if !ok {
		return 0, fmt.Errorf("aggregation alias %q missing from result", alias)
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("aggregation alias %q has unexpected type %T", alias, raw)
	}
	switch v := value.ValueType.(type) {
	case *firestorepb.Value_IntegerValue:
		return v.IntegerValue, nil
	case *firestorepb.Value_DoubleValue:
		return int64(v.DoubleValue), nil
	case *firestorepb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("aggregation alias %q has unexpected value type %T", alias, value.ValueType)
	}
}

type orderDocument struct {
	Number                 string                  `firestore:"number"`
	UserID                 string                  `firestore:"userId"`
	Status                 string                  `firestore:"status"`
	PaymentMethod          string                  `firestore:"paymentMethod"`
	PaymentStatus          string                  `firestore:"paymentStatus"`
	RefundStatus           string                  `firestore:"refundStatus"`
	ReplacementStatus      string                  `firestore:"replacementStatus"`
	ReplacementOpen        bool                    `firestore:"replacementOpen"`
	Items                  []orderItemDocument     `firestore:"items"`
	Customer               customerDocument        `firestore:"customer"`
	Currency               string                  `firestore:"currency"`
	Subtotal               int64                   `firestore:"subtotal"`
	ShippingFee            int64                   `firestore:"shippingFee"`
	Total                  int64                   `firestore:"total"`
	TrackingEvents         []trackingEventDocument `firestore:"trackingEvents"`
	CancelReason           string                  `firestore:"cancelReason,omitempty"`
	CancelledAt            *time.Time              `firestore:"cancelledAt,omitempty"`
	ReplacementReason      string                  `firestore:"replacementReason,omitempty"`
	ReplacementRequestedAt *time.Time              `firestore:"replacementRequestedAt,omitempty"`
	Gateway                gatewayRefsDocument     `firestore:"gateway"`
	RefundError            string                  `firestore:"refundError,omitempty"`
	RefundErrorInternal    string                  `firestore:"refundErrorInternal,omitempty"`
	RefundAttempts         int                     `firestore:"refundAttempts"`
	CreatedAt              time.Time               `firestore:"createdAt"`
	UpdatedAt              time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID   string `firestore:"productId"`
	Name        string `firestore:"name"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Quantity    int    `firestore:"quantity"`
	WeightGrams int    `firestore:"weightGrams"`
	ImageURL    string `firestore:"imageUrl,omitempty"`
}

type customerDocument struct {
	Name    string `firestore:"name"`
	Email   string `firestore:"email"`
	Phone   string `firestore:"phone"`
	Address string `firestore:"address"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	Pincode string `firestore:"pincode"`
}

type trackingEventDocument struct {
	Status      string    `firestore:"status"`
	Description string    `firestore:"description"`
	Timestamp   time.Time `firestore:"timestamp"`
	Location    string    `firestore:"location,omitempty"`
	Completed   bool      `firestore:"completed"`
}

type gatewayRefsDocument struct {
	Provider  string `firestore:"provider,omitempty"`
	OrderID   string `firestore:"orderId,omitempty"`
	PaymentID string `firestore:"paymentId,omitempty"`
	RefundID  string `firestore:"refundId,omitempty"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:                 strings.TrimSpace(order.Number),
		UserID:                 strings.TrimSpace(order.UserID),
		Status:                 string(order.Status),
		PaymentMethod:          string(order.PaymentMethod),
		PaymentStatus:          string(order.PaymentStatus),
		RefundStatus:           string(order.RefundStatus),
		ReplacementStatus:      string(order.ReplacementStatus),
		ReplacementOpen:        order.Status.IsReplacement(),
		Items:                  encodeOrderItems(order.Items),
		Customer:               encodeCustomer(order.Customer),
		Currency:               strings.TrimSpace(order.Currency),
		Subtotal:               order.Subtotal,
		ShippingFee:            order.ShippingFee,
		Total:                  order.Total,
		TrackingEvents:         encodeTrackingEvents(order.TrackingEvents),
		CancelReason:           strings.TrimSpace(order.CancelReason),
		CancelledAt:            timePointer(order.CancelledAt),
		ReplacementReason:      strings.TrimSpace(order.ReplacementReason),
		ReplacementRequestedAt: timePointer(order.ReplacementRequestedAt),
		Gateway: gatewayRefsDocument{
			Provider:  strings.TrimSpace(order.Gateway.Provider),
			OrderID:   strings.TrimSpace(order.Gateway.OrderID),
			PaymentID: strings.TrimSpace(order.Gateway.PaymentID),
			RefundID:  strings.TrimSpace(order.Gateway.RefundID),
		},
		RefundError:         order.RefundError,
		RefundErrorInternal: order.RefundErrorInternal,
		RefundAttempts:      order.RefundAttempts,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument, createdAt, updatedAt time.Time) domain.Order {
	return domain.Order{
		ID:                     strings.TrimSpace(id),
		Number:                 strings.TrimSpace(doc.Number),
		UserID:                 strings.TrimSpace(doc.UserID),
		Status:                 domain.OrderStatus(strings.TrimSpace(doc.Status)),
		PaymentMethod:          domain.PaymentMethod(strings.TrimSpace(doc.PaymentMethod)),
		PaymentStatus:          domain.PaymentStatus(strings.TrimSpace(doc.PaymentStatus)),
		RefundStatus:           domain.RefundStatus(strings.TrimSpace(doc.RefundStatus)),
		ReplacementStatus:      domain.OrderStatus(strings.TrimSpace(doc.ReplacementStatus)),
		Items:                  decodeOrderItems(doc.Items),
		Customer:               decodeCustomer(doc.Customer),
		Currency:               strings.TrimSpace(doc.Currency),
		Subtotal:               doc.Subtotal,
		ShippingFee:            doc.ShippingFee,
		Total:                  doc.Total,
		TrackingEvents:         decodeTrackingEvents(doc.TrackingEvents),
		CancelReason:           doc.CancelReason,
		CancelledAt:            timePointer(doc.CancelledAt),
		ReplacementReason:      doc.ReplacementReason,
		ReplacementRequestedAt: timePointer(doc.ReplacementRequestedAt),
		Gateway: domain.GatewayRefs{
			Provider:  doc.Gateway.Provider,
			OrderID:   doc.Gateway.OrderID,
			PaymentID: doc.Gateway.PaymentID,
			RefundID:  doc.Gateway.RefundID,
		},
		RefundError:         doc.RefundError,
		RefundErrorInternal: doc.RefundErrorInternal,
		RefundAttempts:      doc.RefundAttempts,
		CreatedAt:           timeOrFallback(doc.CreatedAt, createdAt),
		UpdatedAt:           timeOrFallback(doc.UpdatedAt, updatedAt),
	}
}

func encodeOrderItems(items []domain.OrderItem) []orderItemDocument {
	if len(items) == 0 {
		return nil
	}
	docs := make([]orderItemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, orderItemDocument{
			ProductID:   strings.TrimSpace(item.ProductID),
			Name:        strings.TrimSpace(item.Name),
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			WeightGrams: item.WeightGrams,
			ImageURL:    strings.TrimSpace(item.ImageURL),
		})
	}
	return docs
}

func decodeOrderItems(docs []orderItemDocument) []domain.OrderItem {
	if len(docs) == 0 {
		return nil
	}
	items := make([]domain.OrderItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.OrderItem{
			ProductID:   doc.ProductID,
			Name:        doc.Name,
			UnitPrice:   doc.UnitPrice,
			Quantity:    doc.Quantity,
			WeightGrams: doc.WeightGrams,
			ImageURL:    doc.ImageURL,
		})
	}
	return items
}

func encodeCustomer(customer domain.CustomerInfo) customerDocument {
	return customerDocument{
		Name:    strings.TrimSpace(customer.Name),
		Email:   strings.ToLower(strings.TrimSpace(customer.Email)),
		Phone:   strings.TrimSpace(customer.Phone),
		Address: strings.TrimSpace(customer.Address),
		City:    strings.TrimSpace(customer.City),
		State:   strings.TrimSpace(customer.State),
		Pincode: strings.TrimSpace(customer.Pincode),
	}
}

func decodeCustomer(doc customerDocument) domain.CustomerInfo {
	return domain.CustomerInfo{
		Name:    doc.Name,
		Email:   doc.Email,
		Phone:   doc.Phone,
		Address: doc.Address,
		City:    doc.City,
		State:   doc.State,
		Pincode: doc.Pincode,
	}
}

func encodeTrackingEvents(events []domain.TrackingEvent) []trackingEventDocument {
	if len(events) == 0 {
		return nil
	}
	docs := make([]trackingEventDocument, 0, len(events))
	for _, event := range events {
		docs = append(docs, trackingEventDocument{
			Status:      string(event.Status),
			Description: event.Description,
			Timestamp:   event.Timestamp.UTC(),
			Location:    strings.TrimSpace(event.Location),
			Completed:   event.Completed,
		})
	}
	return docs
}

func decodeTrackingEvents(docs []trackingEventDocument) []domain.TrackingEvent {
	if len(docs) == 0 {
		return nil
	}
	events := make([]domain.TrackingEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, domain.TrackingEvent{
			Status:      domain.OrderStatus(doc.Status),
			Description: doc.Description,
			Timestamp:   doc.Timestamp,
			Location:    doc.Location,
			Completed:   doc.Completed,
		})
	}
	return events
}

func normaliseOrderStatuses(statuses []domain.OrderStatus) []string {
	if len(statuses) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(statuses))
	seen := make(map[string]struct{})
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(string(status)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
