package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dheerghayush/naturals-api/internal/payments"
	"github.com/dheerghayush/naturals-api/internal/platform/config"
	"github.com/dheerghayush/naturals-api/internal/repositories"
	"github.com/dheerghayush/naturals-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Refunds  services.RefundService
	Checkout services.CheckoutService
	Reviews  services.ReviewService
	Catalog  services.CatalogService
	Counters services.CounterService
	System   services.SystemService
	Audit    services.AuditLogService
}

// ContainerDeps carries the external collaborators the container cannot build
// itself: the repository registry, the payment gateway manager, and runtime
// metadata such as build info.
type ContainerDeps struct {
	Config    config.Config
	Registry  repositories.Registry
	Payments  *payments.Manager
	Events    services.OrderEventPublisher
	ImageURLs services.ImageURLResolver
	Build     services.BuildInfo
	AuditSalt string
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// Firestore-backed repositories and real payment providers, while tests can
// supply in-memory registries and stub gateways.
func NewContainer(ctx context.Context, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment manager is required")
	}

	svc, err := buildServices(ctx, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, deps ContainerDeps) (Services, error) {
	var svc Services
	reg := deps.Registry

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger

	audit, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: reg.AuditLogs(),
		Clock:      clock,
		HashSalt:   deps.AuditSalt,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = audit

	counters, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counters

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Banners:    reg.Banners(),
		ImageURLs:  deps.ImageURLs,
		Clock:      clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Numbers:    counters,
		UnitOfWork: reg,
		Clock:      clock,
		Events:     deps.Events,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	refunds, err := services.NewRefundService(services.RefundServiceDeps{
		Orders:     reg.Orders(),
		UnitOfWork: reg,
		Gateway:    deps.Payments,
		Clock:      clock,
		Events:     deps.Events,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build refund service: %w", err)
	}
	svc.Refunds = refunds

	reviews, err := services.NewReviewService(services.ReviewServiceDeps{
		Orders:  reg.Orders(),
		Reviews: reg.Reviews(),
		Clock:   clock,
		Logger:  logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviews

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:     orders,
		Gateway:    deps.Payments,
		PublicKeys: checkoutPublicKeys(deps.Config.PSP),
		Clock:      clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	if health := reg.Health(); health != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            clock,
			Build:            deps.Build,
			Audit:            audit,
			Counters:         counters,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

func checkoutPublicKeys(psp config.PSPConfig) map[string]string {
	keys := make(map[string]string, 2)
	if psp.RazorpayKeyID != "" {
		keys["razorpay"] = psp.RazorpayKeyID
	}
	if psp.StripePublicKey != "" {
		keys["stripe"] = psp.StripePublicKey
	}
	return keys
}
