package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ceramica/storefront/internal/catalog"
	"github.com/ceramica/storefront/internal/config"
	perrors "github.com/ceramica/storefront/internal/errors"
	"github.com/ceramica/storefront/internal/store"
	pkgconfig "github.com/ceramica/storefront/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var errDatabaseDown = errors.New("database down")

// fakeLoader is a Loader returning a configurable result and counting calls.
type fakeLoader struct {
	mu      sync.Mutex
	rows    []store.Product
	err     error
	calls   int
	release chan struct{}
}

func (f *fakeLoader) ListCatalog(ctx context.Context) ([]store.Product, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, f.err
}

func (f *fakeLoader) set(rows []store.Product, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows, f.err = rows, err
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.SnapshotConfig {
	return config.SnapshotConfig{
		TTL:         30 * time.Second,
		LoadTimeout: time.Second,
		CircuitBreaker: pkgconfig.CircuitBreakerConfig{
			ConsecutiveFailures: 2,
			ErrorRatePercent:    100,
			OpenTimeout:         time.Minute,
			MaxRequests:         1,
		},
	}
}

func rows(names ...string) []store.Product {
	out := make([]store.Product, len(names))
	for i, name := range names {
		out[i] = store.Product{ID: uuid.New(), Name: name, Price: int64(1000 * (i + 1)), Category: "Tableware", Version: 1}
	}
	return out
}

func names(products []catalog.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Name
	}
	return out
}

func newTestCache(t *testing.T, loader Loader, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := New(loader, testConfig(), logger, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return cache, clock
}

func TestCache_ServesFromMemoryUntilTTL(t *testing.T) {
	// given
	loader := &fakeLoader{rows: rows("Bowl", "Vase")}
	cache, clock := newTestCache(t, loader)
	ctx := context.Background()
	assert.False(t, cache.Ready())

	// when
	first, err := cache.Products(ctx)
	require.NoError(t, err)
	loader.set(rows("Bowl", "Vase", "Jug"), nil)
	clock.Advance(29 * time.Second)
	second, err := cache.Products(ctx)
	require.NoError(t, err)

	// then
	assert.Equal(t, []string{"Bowl", "Vase"}, names(first))
	assert.Equal(t, []string{"Bowl", "Vase"}, names(second))
	assert.Equal(t, 1, loader.callCount())
	assert.True(t, cache.Ready())

	// when
	clock.Advance(time.Second)
	third, err := cache.Products(ctx)

	// then
	require.NoError(t, err)
	assert.Equal(t, []string{"Bowl", "Vase", "Jug"}, names(third))
	assert.Equal(t, 2, loader.callCount())
}

func TestCache_Invalidate(t *testing.T) {
	// given
	loader := &fakeLoader{rows: rows("Bowl")}
	cache, _ := newTestCache(t, loader)
	ctx := context.Background()
	require.NoError(t, cache.Warm(ctx))
	loader.set(rows("Bowl", "Plate"), nil)

	// when
	cache.Invalidate(ctx)
	products, err := cache.Products(ctx)

	// then
	require.NoError(t, err)
	assert.Equal(t, []string{"Bowl", "Plate"}, names(products))
	assert.Equal(t, 2, loader.callCount())
}

func TestCache_LoadFailures(t *testing.T) {
	testCases := []struct {
		name          string
		warm          bool
		expectError   error
		expectedNames []string
	}{
		{
			name:        "no earlier copy",
			warm:        false,
			expectError: perrors.ErrSnapshotUnavailable,
		},
		{
			name:          "stale copy is served",
			warm:          true,
			expectedNames: []string{"Bowl", "Vase"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			loader := &fakeLoader{rows: rows("Bowl", "Vase")}
			cache, _ := newTestCache(t, loader)
			ctx := context.Background()
			if tc.warm {
				require.NoError(t, cache.Warm(ctx))
				cache.Invalidate(ctx)
			}
			loader.set(nil, errDatabaseDown)

			// when
			products, err := cache.Products(ctx)

			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.ErrorIs(t, err, errDatabaseDown)
				assert.Nil(t, products)
				assert.False(t, cache.Ready())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedNames, names(products))
		})
	}
}

func TestCache_BreakerStopsCallingLoader(t *testing.T) {
	// given
	loader := &fakeLoader{err: errDatabaseDown}
	cache, _ := newTestCache(t, loader)
	ctx := context.Background()

	// when
	for range 5 {
		_, err := cache.Products(ctx)
		require.ErrorIs(t, err, perrors.ErrSnapshotUnavailable)
	}

	// then
	assert.Equal(t, 2, loader.callCount(), "breaker opens after two consecutive failures")
}

func TestCache_ConcurrentReloadsCollapse(t *testing.T) {
	// given
	loader := &fakeLoader{rows: rows("Bowl"), release: make(chan struct{})}
	cache, _ := newTestCache(t, loader)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan []catalog.Product, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			products, err := cache.Products(ctx)
			assert.NoError(t, err)
			results <- products
		}()
	}

	// when
	require.Eventually(t, func() bool { return loader.callCount() == 1 }, time.Second, time.Millisecond)
	close(loader.release)
	wg.Wait()
	close(results)

	// then
	assert.Equal(t, 1, loader.callCount())
	for products := range results {
		assert.Equal(t, []string{"Bowl"}, names(products))
	}
}

func TestCache_RecordsReloadMetrics(t *testing.T) {
	// given
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	loader := &fakeLoader{rows: rows("Bowl")}
	cache, _ := newTestCache(t, loader, WithMeterProvider(mp))
	ctx := context.Background()

	// when
	require.NoError(t, cache.Warm(ctx))
	cache.Invalidate(ctx)
	require.NoError(t, cache.Warm(ctx))

	// then
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["catalog.snapshot.reloads"])
	assert.Equal(t, int64(1), sums["catalog.snapshot.invalidations"])
}

func TestToCatalog(t *testing.T) {
	// given
	id := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	row := store.Product{
		ID:            id,
		Name:          "Speckled Mug",
		Description:   "Stoneware",
		Price:         2800,
		StockQuantity: 7,
		ImageURL:      "https://img.example/mug.jpg",
		Category:      "Drinkware",
		Version:       4,
	}

	// when
	products := ToCatalog([]store.Product{row})

	// then
	require.Len(t, products, 1)
	assert.Equal(t, catalog.Product{
		ID:          id.String(),
		Name:        "Speckled Mug",
		Description: "Stoneware",
		Price:       2800,
		Category:    catalog.Category{Name: "Drinkware"},
		ImageURL:    "https://img.example/mug.jpg",
		Stock:       7,
	}, products[0])
}
