package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ceramica/storefront/internal/catalog"
	perrors "github.com/ceramica/storefront/internal/errors"
	"github.com/ceramica/storefront/internal/store"
	"github.com/ceramica/storefront/pkg/messaging"
	"github.com/ceramica/storefront/pkg/messaging/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockProductStore is a mock implementation of the ProductStore interface
type mockProductStore struct {
	products []store.Product
	product  store.Product
	error    error
}

// Simulate finding a product by ID
func (m *mockProductStore) FindByID(_ context.Context, _ uuid.UUID) (*store.Product, error) {
	if m.error != nil {
		return nil, m.error
	}
	return &m.product, nil
}

// Simulate listing the catalog
func (m *mockProductStore) ListCatalog(_ context.Context) ([]store.Product, error) {
	return m.products, m.error
}

// Simulate creating a product
func (m *mockProductStore) Create(_ context.Context, _ store.CreateParams) (*store.Product, error) {
	if m.error != nil {
		return nil, m.error
	}
	return &m.product, nil
}

// Simulate updating a product
func (m *mockProductStore) Update(_ context.Context, _ store.UpdateParams) (*store.Product, error) {
	if m.error != nil {
		return nil, m.error
	}
	return &m.product, nil
}

// Simulate updating stock for a product
func (m *mockProductStore) UpdateStock(_ context.Context, _ uuid.UUID, _ int32, _ int32) (*store.Product, error) {
	if m.error != nil {
		return nil, m.error
	}
	return &m.product, nil
}

// Simulate deleting a product by ID
func (m *mockProductStore) DeleteByID(_ context.Context, _ uuid.UUID, _ int32) error {
	return m.error
}

// fakeSnapshot serves a fixed product list and counts invalidations.
type fakeSnapshot struct {
	products      []catalog.Product
	err           error
	invalidations int
}

func (f *fakeSnapshot) Products(_ context.Context) ([]catalog.Product, error) {
	return f.products, f.err
}

func (f *fakeSnapshot) Invalidate(_ context.Context) {
	f.invalidations++
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event messaging.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestService(repo store.ProductStore, snap Snapshot, pub messaging.Publisher) *Service {
	s := NewService(repo, snap, pub, catalog.DefaultPageSize, discardLogger)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }
	return s
}

func ceramics() []catalog.Product {
	return []catalog.Product{
		{ID: "1", Name: "Bowl", Price: 100000, Category: catalog.Category{Name: "Tableware"}},
		{ID: "2", Name: "Vase", Price: 50000, Category: catalog.Category{Name: "Decor"}},
		{ID: "3", Name: "Plate", Price: 75000, Category: catalog.Category{Name: "Tableware"}},
	}
}

func numbered(n int) []catalog.Product {
	out := make([]catalog.Product, n)
	for i := range out {
		out[i] = catalog.Product{
			ID:       fmt.Sprint(i + 1),
			Name:     fmt.Sprintf("Item %02d", i+1),
			Price:    int64(1000 * (i + 1)),
			Category: catalog.Category{Name: "Tableware"},
		}
	}
	return out
}

func productIDs(products []catalog.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func Test_CatalogService_Browse(t *testing.T) {
	testCases := []struct {
		name          string
		products      []catalog.Product
		query         BrowseQuery
		expectedIDs   []string
		expectedItems int
		expectedPages int
		expectedPage  int
		expectedView  catalog.ViewMode
	}{
		{
			name:          "defaults show the first page in featured order",
			products:      ceramics(),
			query:         BrowseQuery{},
			expectedIDs:   []string{"1", "2", "3"},
			expectedItems: 3,
			expectedPages: 1,
			expectedPage:  1,
			expectedView:  catalog.ViewGrid,
		},
		{
			name:          "category and price sort",
			products:      ceramics(),
			query:         BrowseQuery{Category: "Tableware", Sort: "price-asc", View: "list"},
			expectedIDs:   []string{"3", "1"},
			expectedItems: 2,
			expectedPages: 1,
			expectedPage:  1,
			expectedView:  catalog.ViewList,
		},
		{
			name:          "minimum price only",
			products:      ceramics(),
			query:         BrowseQuery{MinPrice: 60000},
			expectedIDs:   []string{"1", "3"},
			expectedItems: 2,
			expectedPages: 1,
			expectedPage:  1,
			expectedView:  catalog.ViewGrid,
		},
		{
			name:          "last page of fourteen products",
			products:      numbered(14),
			query:         BrowseQuery{Page: 3},
			expectedIDs:   []string{"13", "14"},
			expectedItems: 14,
			expectedPages: 3,
			expectedPage:  3,
			expectedView:  catalog.ViewGrid,
		},
		{
			name:          "page beyond range is empty",
			products:      numbered(14),
			query:         BrowseQuery{Page: 4},
			expectedIDs:   []string{},
			expectedItems: 14,
			expectedPages: 3,
			expectedPage:  4,
			expectedView:  catalog.ViewGrid,
		},
		{
			name:          "unknown sort keeps featured order",
			products:      ceramics(),
			query:         BrowseQuery{Sort: "popularity"},
			expectedIDs:   []string{"1", "2", "3"},
			expectedItems: 3,
			expectedPages: 1,
			expectedPage:  1,
			expectedView:  catalog.ViewGrid,
		},
		{
			name:          "unknown category is empty",
			products:      ceramics(),
			query:         BrowseQuery{Category: "Garden"},
			expectedIDs:   []string{},
			expectedItems: 0,
			expectedPages: 0,
			expectedPage:  1,
			expectedView:  catalog.ViewGrid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			service := newTestService(&mockProductStore{}, &fakeSnapshot{products: tc.products}, messaging.NoopPublisher{})

			// when
			page, err := service.Browse(context.Background(), tc.query)

			// then
			require.NoError(t, err)
			assert.Equal(t, tc.expectedIDs, productIDs(page.Products))
			assert.Equal(t, tc.expectedItems, page.TotalItems)
			assert.Equal(t, tc.expectedPages, page.TotalPages)
			assert.Equal(t, tc.expectedPage, page.CurrentPage)
			assert.Equal(t, catalog.DefaultPageSize, page.PageSize)
			assert.Equal(t, tc.expectedView, page.State.View)
		})
	}
}

func Test_CatalogService_Browse_EchoesState(t *testing.T) {
	// given
	service := newTestService(&mockProductStore{}, &fakeSnapshot{products: ceramics()}, messaging.NoopPublisher{})

	// when
	page, err := service.Browse(context.Background(), BrowseQuery{Search: "bo", MaxPrice: 200000, Sort: "name-desc"})

	// then
	require.NoError(t, err)
	assert.Equal(t, catalog.State{
		Category:    catalog.AllCategories,
		Sort:        catalog.SortNameDesc,
		Search:      "bo",
		PriceRange:  catalog.PriceRange{Min: catalog.Unset, Max: 200000},
		CurrentPage: 1,
		View:        catalog.ViewGrid,
	}, page.State)
	assert.Equal(t, []string{"all", "Tableware", "Decor"}, page.Categories)
}

func Test_CatalogService_SnapshotUnavailable(t *testing.T) {
	// given
	snap := &fakeSnapshot{err: perrors.ErrSnapshotUnavailable}
	service := newTestService(&mockProductStore{}, snap, messaging.NoopPublisher{})

	// when
	page, browseErr := service.Browse(context.Background(), BrowseQuery{})
	categories, categoriesErr := service.Categories(context.Background())

	// then
	assert.ErrorIs(t, browseErr, perrors.ErrSnapshotUnavailable)
	assert.Nil(t, page)
	assert.ErrorIs(t, categoriesErr, perrors.ErrSnapshotUnavailable)
	assert.Nil(t, categories)
}

func Test_CatalogService_Categories(t *testing.T) {
	// given
	service := newTestService(&mockProductStore{}, &fakeSnapshot{products: ceramics()}, messaging.NoopPublisher{})

	// when
	categories, err := service.Categories(context.Background())

	// then
	require.NoError(t, err)
	assert.Equal(t, []string{"all", "Tableware", "Decor"}, categories)
}

func Test_CatalogService_FindByID(t *testing.T) {
	mockID, _ := uuid.Parse("123e4567-e89b-12d3-a456-426614174000")
	testCases := []struct {
		name        string
		mockStore   *mockProductStore
		productID   uuid.UUID
		expected    *ProductDto
		expectError error
	}{
		{
			name: "Success - product found",
			mockStore: &mockProductStore{
				product: store.Product{ID: mockID, Name: "Bowl", Category: "Tableware", Version: 2},
			},
			productID: mockID,
			expected:  &ProductDto{ID: mockID.String(), Name: "Bowl", Category: "Tableware", Version: 2},
		},
		{
			name: "Error - product not found",
			mockStore: &mockProductStore{
				error: perrors.ErrProductNotFound,
			},
			productID:   mockID,
			expectError: perrors.ErrProductNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			service := newTestService(tc.mockStore, &fakeSnapshot{}, messaging.NoopPublisher{})
			// when
			found, err := service.FindByID(context.Background(), tc.productID)
			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Nil(t, found)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, found)
		})
	}
}

func Test_CatalogService_Mutations(t *testing.T) {
	ErrStoreError := errors.New("store error")
	mockID, _ := uuid.Parse("123e4567-e89b-12d3-a456-426614174000")
	stored := store.Product{ID: mockID, Name: "Bowl", Price: 100000, StockQuantity: 4, Category: "Tableware", Version: 3}

	testCases := []struct {
		name         string
		mockStore    *mockProductStore
		call         func(s *Service) error
		expectedKind events.ChangeKind
		expectError  error
	}{
		{
			name:      "Create publishes created",
			mockStore: &mockProductStore{product: stored},
			call: func(s *Service) error {
				_, err := s.Create(context.Background(), ProductCreateDto{Name: "Bowl", Price: 100000, Category: "Tableware"})
				return err
			},
			expectedKind: events.ProductCreated,
		},
		{
			name:      "Update publishes updated",
			mockStore: &mockProductStore{product: stored},
			call: func(s *Service) error {
				_, err := s.Update(context.Background(), ProductDto{ID: mockID.String(), Name: "Bowl", Category: "Tableware", Version: 2})
				return err
			},
			expectedKind: events.ProductUpdated,
		},
		{
			name:      "UpdateStock publishes updated",
			mockStore: &mockProductStore{product: stored},
			call: func(s *Service) error {
				_, err := s.UpdateStock(context.Background(), mockID, 4, 2)
				return err
			},
			expectedKind: events.ProductUpdated,
		},
		{
			name:      "DeleteByID publishes deleted",
			mockStore: &mockProductStore{},
			call: func(s *Service) error {
				return s.DeleteByID(context.Background(), mockID, 3)
			},
			expectedKind: events.ProductDeleted,
		},
		{
			name:      "Update not found publishes nothing",
			mockStore: &mockProductStore{error: perrors.ErrProductNotFound},
			call: func(s *Service) error {
				_, err := s.Update(context.Background(), ProductDto{ID: mockID.String(), Name: "Bowl", Category: "Tableware", Version: 9})
				return err
			},
			expectError: perrors.ErrProductNotFound,
		},
		{
			name:      "Create store error publishes nothing",
			mockStore: &mockProductStore{error: ErrStoreError},
			call: func(s *Service) error {
				_, err := s.Create(context.Background(), ProductCreateDto{Name: "Bowl", Category: "Tableware"})
				return err
			},
			expectError: ErrStoreError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			snap := &fakeSnapshot{}
			publisher := new(mockPublisher)
			if tc.expectError == nil {
				publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.CatalogChangedEvent) bool {
					return e.ProductID == mockID && e.Kind == tc.expectedKind
				})).Return(nil).Once()
			}
			service := newTestService(tc.mockStore, snap, publisher)

			// when
			err := tc.call(service)

			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Equal(t, 0, snap.invalidations)
				publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, snap.invalidations)
			publisher.AssertExpectations(t)
		})
	}
}

func Test_CatalogService_PublishFailureDoesNotFailWrite(t *testing.T) {
	// given
	mockID := uuid.New()
	snap := &fakeSnapshot{}
	publisher := new(mockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nats down")).Once()
	service := newTestService(&mockProductStore{product: store.Product{ID: mockID, Name: "Jug", Category: "Drinkware", Version: 1}}, snap, publisher)

	// when
	created, err := service.Create(context.Background(), ProductCreateDto{Name: "Jug", Category: "Drinkware"})

	// then
	require.NoError(t, err)
	assert.Equal(t, mockID.String(), created.ID)
	assert.Equal(t, 1, snap.invalidations)
	publisher.AssertExpectations(t)
}

func Test_CatalogService_Update_InvalidID(t *testing.T) {
	// given
	service := newTestService(&mockProductStore{}, &fakeSnapshot{}, messaging.NoopPublisher{})

	// when
	updated, err := service.Update(context.Background(), ProductDto{ID: "not-a-uuid", Name: "Bowl", Category: "Tableware", Version: 1})

	// then
	assert.Error(t, err)
	assert.Nil(t, updated)
}
