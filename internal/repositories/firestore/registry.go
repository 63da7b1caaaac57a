package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/dheerghayush/naturals-api/internal/platform/firestore"
	"github.com/dheerghayush/naturals-api/internal/repositories"
)

type txContextKey struct{}

func withTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// txFromContext extracts the transaction started by Registry.RunInTx, if any.
// Repositories that support transactional access route reads and writes
// through it so service-level guards stay atomic.
func txFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// Registry bundles the Firestore repositories behind the repository contract
// and provides the transactional unit of work.
type Registry struct {
	provider *pfirestore.Provider

	orders     *OrderRepository
	reviews    *ReviewRepository
	products   *ProductRepository
	categories *CategoryRepository
	banners    *BannerRepository
	counters   *CounterRepository
	auditLogs  *AuditLogRepository
	health     repositories.HealthRepository
}

// RegistryDeps carries the dependencies needed to assemble the registry.
type RegistryDeps struct {
	Provider *pfirestore.Provider
	Health   repositories.HealthRepository
}

// NewRegistry constructs every Firestore repository against the shared provider.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	orders, err := NewOrderRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	reviews, err := NewReviewRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	categories, err := NewCategoryRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	banners, err := NewBannerRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	auditLogs, err := NewAuditLogRepository(deps.Provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:   deps.Provider,
		orders:     orders,
		reviews:    reviews,
		products:   products,
		categories: categories,
		banners:    banners,
		counters:   counters,
		auditLogs:  auditLogs,
		health:     deps.Health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a Firestore transaction. The transaction travels
// in the context, so repository calls made from fn join it transparently.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry: firestore provider is required")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(withTx(ctx, tx))
	})
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Reviews() repositories.ReviewRepository { return r.reviews }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }

func (r *Registry) Banners() repositories.BannerRepository { return r.banners }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.auditLogs }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

var _ repositories.Registry = (*Registry)(nil)
