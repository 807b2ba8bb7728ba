// Package snapshot keeps an in-process copy of the whole catalog, the product list
// every listing page view filters, sorts and paginates.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceramica/storefront/internal/catalog"
	"github.com/ceramica/storefront/internal/config"
	perrors "github.com/ceramica/storefront/internal/errors"
	"github.com/ceramica/storefront/internal/store"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const (
	meterName = "github.com/ceramica/storefront/internal/snapshot"
	loadKey   = "catalog"
)

// Loader reads the full catalog in featured order.
type Loader interface {
	ListCatalog(ctx context.Context) ([]store.Product, error)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMeterProvider replaces the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Cache) { c.meterProvider = mp }
}

// Cache serves the catalog from memory and reloads it from the Loader when the
// copy is older than the TTL or was invalidated. Concurrent reloads collapse into
// one Loader call. Loader failures trip a circuit breaker; while a reload fails the
// previous copy keeps being served.
type Cache struct {
	loader        Loader
	ttl           time.Duration
	loadTimeout   time.Duration
	breaker       *gobreaker.CircuitBreaker[[]catalog.Product]
	group         singleflight.Group
	logger        *slog.Logger
	now           func() time.Time
	meterProvider metric.MeterProvider

	mu          sync.RWMutex
	products    []catalog.Product
	loaded      bool
	loadedAt    time.Time
	invalidated bool
	generation  uint64

	ready atomic.Bool

	reloads       metric.Int64Counter
	staleServes   metric.Int64Counter
	invalidations metric.Int64Counter
}

// New creates an empty Cache. Nothing is loaded until the first Products or Warm call.
func New(loader Loader, cfg config.SnapshotConfig, logger *slog.Logger, opts ...Option) (*Cache, error) {
	c := &Cache{
		loader:      loader,
		ttl:         cfg.TTL,
		loadTimeout: cfg.LoadTimeout,
		logger:      logger.With("component", "snapshot"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.meterProvider == nil {
		c.meterProvider = otel.GetMeterProvider()
	}
	if err := c.initMetrics(); err != nil {
		return nil, err
	}
	c.breaker = newBreaker(cfg, c.logger)
	return c, nil
}

func newBreaker(cfg config.SnapshotConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[[]catalog.Product] {
	cb := cfg.CircuitBreaker
	st := gobreaker.Settings{
		Name:        "catalog-snapshot",
		MaxRequests: cb.MaxRequests,
		Timeout:     cb.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures >= cb.ConsecutiveFailures ||
				(total > cb.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cb.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a store failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return gobreaker.NewCircuitBreaker[[]catalog.Product](st)
}

func (c *Cache) initMetrics() error {
	meter := c.meterProvider.Meter(meterName)
	var err error
	if c.reloads, err = meter.Int64Counter("catalog.snapshot.reloads",
		metric.WithDescription("Catalog snapshot reload attempts by result.")); err != nil {
		return fmt.Errorf("failed to create reloads counter: %w", err)
	}
	if c.staleServes, err = meter.Int64Counter("catalog.snapshot.stale_serves",
		metric.WithDescription("Requests answered from an outdated snapshot after a failed reload.")); err != nil {
		return fmt.Errorf("failed to create stale serves counter: %w", err)
	}
	if c.invalidations, err = meter.Int64Counter("catalog.snapshot.invalidations",
		metric.WithDescription("Explicit snapshot invalidations.")); err != nil {
		return fmt.Errorf("failed to create invalidations counter: %w", err)
	}
	return nil
}

// Products returns the catalog in featured order. The returned slice is shared and
// must not be modified. ErrSnapshotUnavailable is returned only when the catalog
// could not be loaded and no earlier copy exists.
func (c *Cache) Products(ctx context.Context) ([]catalog.Product, error) {
	c.mu.RLock()
	products, loaded, fresh := c.products, c.loaded, c.freshLocked()
	c.mu.RUnlock()
	if fresh {
		return products, nil
	}

	v, err, _ := c.group.Do(loadKey, func() (any, error) {
		return c.reload(ctx)
	})
	if err != nil {
		if loaded {
			c.staleServes.Add(ctx, 1)
			c.logger.WarnContext(ctx, "serving stale catalog snapshot", "error", err)
			return products, nil
		}
		return nil, fmt.Errorf("%w: %w", perrors.ErrSnapshotUnavailable, err)
	}
	return v.([]catalog.Product), nil
}

// Warm loads the catalog unless a fresh copy is already held.
func (c *Cache) Warm(ctx context.Context) error {
	_, err := c.Products(ctx)
	return err
}

// Invalidate marks the held copy as outdated. The next Products call reloads it,
// and a reload already in flight is not reused.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.invalidated = true
	c.generation++
	c.mu.Unlock()
	c.group.Forget(loadKey)
	c.invalidations.Add(ctx, 1)
	c.logger.DebugContext(ctx, "catalog snapshot invalidated")
}

// Ready reports whether a catalog copy has been loaded at least once.
func (c *Cache) Ready() bool {
	return c.ready.Load()
}

func (c *Cache) freshLocked() bool {
	return c.loaded && !c.invalidated && c.now().Sub(c.loadedAt) < c.ttl
}

func (c *Cache) reload(ctx context.Context) ([]catalog.Product, error) {
	c.mu.RLock()
	generation := c.generation
	if c.freshLocked() {
		// another caller finished a reload after this one checked
		products := c.products
		c.mu.RUnlock()
		return products, nil
	}
	c.mu.RUnlock()

	// The load outlives the request that triggered it, other callers share the result.
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
	defer cancel()

	products, err := c.breaker.Execute(func() ([]catalog.Product, error) {
		rows, err := c.loader.ListCatalog(loadCtx)
		if err != nil {
			return nil, err
		}
		return ToCatalog(rows), nil
	})
	if err != nil {
		c.reloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		c.logger.ErrorContext(ctx, "catalog snapshot reload failed", "error", err, "breaker", c.breaker.State().String())
		return nil, err
	}
	c.reloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))

	c.mu.Lock()
	c.products = products
	c.loaded = true
	c.loadedAt = c.now()
	if c.generation == generation {
		c.invalidated = false
	}
	c.mu.Unlock()
	c.ready.Store(true)

	c.logger.DebugContext(ctx, "catalog snapshot reloaded", "products", len(products))
	return products, nil
}

// ToCatalog converts store rows to listing page products, keeping their order.
func ToCatalog(rows []store.Product) []catalog.Product {
	products := make([]catalog.Product, len(rows))
	for i, row := range rows {
		products[i] = catalog.Product{
			ID:          row.ID.String(),
			Name:        row.Name,
			Description: row.Description,
			Price:       row.Price,
			Category:    catalog.Category{Name: row.Category},
			ImageURL:    row.ImageURL,
			Stock:       row.StockQuantity,
		}
	}
	return products
}
