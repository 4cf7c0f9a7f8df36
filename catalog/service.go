package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/EdissonBeltGom/product/observe"
	"github.com/EdissonBeltGom/product/resilience"
)

// Resource names the Service executes under. Each carries its own breaker,
// limiter and metrics.
const (
	ResourceProducts        = "productService"
	ResourceSimilarProducts = "similarProductsService"
	ResourceRepository      = "productRepository"
)

// DefaultPolicies returns the per-resource pipeline configuration the
// Service installs. Domain errors are ignored by every breaker and never
// retried.
func DefaultPolicies() map[string]resilience.PipelineConfig {
	return map[string]resilience.PipelineConfig{
		ResourceProducts: {
			CircuitBreaker: resilience.CircuitBreakerConfig{
				SlidingWindowSize:      10,
				MinimumNumberOfCalls:   5,
				FailureRateThreshold:   50,
				WaitDurationOpen:       30 * time.Second,
				PermittedCallsHalfOpen: 3,
				IgnoreErrors:           DomainErrors(),
			},
			RateLimiter: resilience.RateLimiterConfig{
				CapacityPerPeriod: 100,
				Period:            time.Minute,
				AcquireTimeout:    5 * time.Second,
			},
			Retry: resilience.RetryConfig{
				MaxAttempts: 3,
				BaseWait:    100 * time.Millisecond,
				Multiplier:  2,
				RetryIf:     IsTransient,
			},
			Timeout: resilience.TimeoutConfig{Timeout: 5 * time.Second},
		},
		ResourceSimilarProducts: {
			CircuitBreaker: resilience.CircuitBreakerConfig{
				SlidingWindowSize:      20,
				MinimumNumberOfCalls:   10,
				FailureRateThreshold:   30,
				WaitDurationOpen:       2 * time.Minute,
				PermittedCallsHalfOpen: 5,
				IgnoreErrors:           DomainErrors(),
			},
			RateLimiter: resilience.RateLimiterConfig{
				CapacityPerPeriod: 50,
				Period:            time.Minute,
				AcquireTimeout:    5 * time.Second,
			},
			Retry: resilience.RetryConfig{
				MaxAttempts: 3,
				BaseWait:    200 * time.Millisecond,
				Multiplier:  2,
				RetryIf:     IsTransient,
			},
			Timeout: resilience.TimeoutConfig{Timeout: 5 * time.Second},
		},
		ResourceRepository: {
			CircuitBreaker: resilience.CircuitBreakerConfig{
				SlidingWindowSize:      5,
				MinimumNumberOfCalls:   3,
				FailureRateThreshold:   70,
				WaitDurationOpen:       15 * time.Second,
				PermittedCallsHalfOpen: 2,
				IgnoreErrors:           DomainErrors(),
			},
			RateLimiter: resilience.RateLimiterConfig{
				CapacityPerPeriod: 30,
				Period:            time.Minute,
			},
			Retry: resilience.RetryConfig{
				MaxAttempts: 2,
				BaseWait:    50 * time.Millisecond,
				Multiplier:  2,
				RetryIf:     IsTransient,
			},
			Timeout: resilience.TimeoutConfig{Timeout: 3 * time.Second},
		},
	}
}

// Repository is the persistence surface the Service depends on.
type Repository interface {
	FindByID(ctx context.Context, id string) (Product, error)
	FindAll(ctx context.Context) ([]Product, error)
	FindByCategory(ctx context.Context, category string) ([]Product, error)
	FindSimilar(ctx context.Context, category, excludeID string, maxPrice float64, limit int) ([]Product, error)
	Save(ctx context.Context, p Product) (Product, error)
	DeleteByID(ctx context.Context, id string) error
}

// Service exposes catalog operations, each executed through the resilience
// pipeline. Read operations degrade to placeholder results on terminal
// failure instead of returning an error; writes propagate errors.
type Service struct {
	repo     Repository
	pipeline *resilience.Pipeline
	logger   observe.Logger
}

// NewService wires repo behind pipeline and installs the default
// per-resource policies.
func NewService(repo Repository, pipeline *resilience.Pipeline, logger observe.Logger) (*Service, error) {
	for resource, cfg := range DefaultPolicies() {
		if err := pipeline.ConfigureResource(resource, cfg); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Service{repo: repo, pipeline: pipeline, logger: logger}, nil
}

// ValidID reports whether id is acceptable: non-empty, at most 64 bytes, no
// whitespace.
func ValidID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	return !strings.ContainsAny(id, " \t\n\r")
}

// UnavailableProduct is the degraded placeholder returned when the catalog
// cannot be reached.
func UnavailableProduct(id string) Product {
	return Product{
		ID:          id,
		Title:       "Product temporarily unavailable",
		Description: "Product information could not be retrieved. Please try again later.",
		Available:   false,
	}
}

// GetProduct returns the product with the given id, or a degraded
// placeholder when the catalog is unreachable. Invalid ids fail fast with
// ErrInvalidID before any pipeline accounting.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	if !ValidID(id) {
		return Product{}, ErrInvalidID
	}
	return resilience.Execute(ctx, s.pipeline, ResourceProducts,
		func(ctx context.Context) (Product, error) {
			return s.repo.FindByID(ctx, id)
		},
		func(ctx context.Context, err error) Product {
			s.logger.Warn(ctx, "product lookup degraded",
				observe.F("productId", id), observe.F("error", err.Error()))
			return UnavailableProduct(id)
		},
	)
}

// ListProducts returns the whole catalog, or an empty slice when the catalog
// is unreachable.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return resilience.Execute(ctx, s.pipeline, ResourceProducts,
		func(ctx context.Context) ([]Product, error) {
			return s.repo.FindAll(ctx)
		},
		func(ctx context.Context, err error) []Product {
			s.logger.Warn(ctx, "product listing degraded", observe.F("error", err.Error()))
			return []Product{}
		},
	)
}

// ProductsByCategory returns the products in category, or an empty slice
// when the catalog is unreachable.
func (s *Service) ProductsByCategory(ctx context.Context, category string) ([]Product, error) {
	return resilience.Execute(ctx, s.pipeline, ResourceProducts,
		func(ctx context.Context) ([]Product, error) {
			return s.repo.FindByCategory(ctx, category)
		},
		func(ctx context.Context, err error) []Product {
			s.logger.Warn(ctx, "category listing degraded",
				observe.F("category", category), observe.F("error", err.Error()))
			return []Product{}
		},
	)
}

// SimilarProducts returns up to limit products in the same category as id,
// priced at or below 150% of its price. The seed lookup runs under the
// product resource; the similarity search has its own, stricter policy.
func (s *Service) SimilarProducts(ctx context.Context, id string, limit int) ([]Product, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	if limit <= 0 {
		limit = 5
	}
	seed, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if seed.Category == "" {
		// Degraded seed carries no category to search by.
		return []Product{}, nil
	}
	return resilience.Execute(ctx, s.pipeline, ResourceSimilarProducts,
		func(ctx context.Context) ([]Product, error) {
			return s.repo.FindSimilar(ctx, seed.Category, seed.ID, seed.Price*1.5, limit)
		},
		func(ctx context.Context, err error) []Product {
			s.logger.Warn(ctx, "similar products degraded",
				observe.F("productId", id), observe.F("error", err.Error()))
			return []Product{}
		},
	)
}

// CreateProduct persists a new or updated product. Write failures propagate;
// there is no degraded fallback for mutations.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	return resilience.Execute[Product](ctx, s.pipeline, ResourceRepository,
		func(ctx context.Context) (Product, error) {
			return s.repo.Save(ctx, p)
		},
		nil,
	)
}

// DeleteProduct removes a product. Deleting an absent id is not an error.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	_, err := resilience.Execute[struct{}](ctx, s.pipeline, ResourceRepository,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.repo.DeleteByID(ctx, id)
		},
		nil,
	)
	return err
}
