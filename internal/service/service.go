// Package service provides the implementation of catalog-related business logic.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ceramica/storefront/internal/catalog"
	"github.com/ceramica/storefront/internal/store"
	"github.com/ceramica/storefront/pkg/messaging"
	"github.com/ceramica/storefront/pkg/messaging/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CatalogService defines the listing page and catalog maintenance operations.
type CatalogService interface {
	// Browse renders one listing page view for the given query.
	// Returns ErrSnapshotUnavailable if the catalog cannot be loaded.
	Browse(ctx context.Context, query BrowseQuery) (*CatalogPage, error)

	// Categories returns "all" followed by the distinct category names in featured order.
	Categories(ctx context.Context) ([]string, error)

	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*ProductDto, error)

	// Create adds a new product to the catalog.
	// Returns error if the product cannot be created.
	Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error)

	// Update modifies an existing product's details.
	// Returns ErrProductNotFound if no product exists with the given ID and version.
	Update(ctx context.Context, product ProductDto) (*ProductDto, error)

	// UpdateStock adjusts the stock quantity of a product.
	// Returns ErrProductNotFound if no product exists with the given ID and version.
	UpdateStock(ctx context.Context, id uuid.UUID, stock int32, version int32) (*ProductDto, error)

	// DeleteByID removes a product by its ID.
	// Returns ErrProductNotFound if no product exists with the given ID and version.
	DeleteByID(ctx context.Context, id uuid.UUID, version int32) error
}

// Snapshot supplies the full product list and is told when it goes out of date.
type Snapshot interface {
	Products(ctx context.Context) ([]catalog.Product, error)
	Invalidate(ctx context.Context)
}

// Service implements CatalogService.
type Service struct {
	repository store.ProductStore
	snapshot   Snapshot
	publisher  messaging.Publisher
	pageSize   int
	logger     *slog.Logger
	now        func() time.Time
	pageViews  metric.Int64Counter
}

// NewService creates a new instance of CatalogService.
func NewService(repo store.ProductStore, snapshot Snapshot, publisher messaging.Publisher, pageSize int, logger *slog.Logger) *Service {
	meter := otel.Meter("catalog-service")
	pageViews, err := meter.Int64Counter("catalog_page_views", metric.WithDescription("Total number of rendered listing pages"))
	if err != nil {
		panic(fmt.Sprintf("failed to create catalog_page_views counter: %v", err))
	}
	return &Service{
		repository: repo,
		snapshot:   snapshot,
		publisher:  publisher,
		pageSize:   pageSize,
		logger:     logger.With("component", "service"),
		now:        time.Now,
		pageViews:  pageViews,
	}
}

// BrowseQuery holds the listing page inputs of one request. Zero values mean
// "not set": all categories, featured order, no price bound, page 1, grid view.
type BrowseQuery struct {
	Category string `json:"category" validate:"max=100"`
	Search   string `json:"q"        validate:"max=200"`
	Sort     string `json:"sort"     validate:"max=20"`
	MinPrice int64  `json:"minPrice" validate:"min=0"`
	MaxPrice int64  `json:"maxPrice" validate:"min=0"`
	Page     int    `json:"page"     validate:"min=0"`
	View     string `json:"view"     validate:"omitempty,oneof=grid list"`
}

// CatalogPage is one rendered listing page.
type CatalogPage struct {
	Products    []catalog.Product `json:"products"`
	Categories  []string          `json:"categories"`
	TotalItems  int               `json:"totalItems"`
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
	PageSize    int               `json:"pageSize"`
	State       catalog.State     `json:"state"`
}

// ProductCreateDto represents the data transfer object for creating a new product.
type ProductCreateDto struct {
	Name        string `json:"name"        validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
	Price       int64  `json:"price"       validate:"min=0"`
	Stock       int32  `json:"stock"       validate:"min=0"`
	ImageURL    string `json:"imageUrl"    validate:"omitempty,url"`
	Category    string `json:"category"    validate:"required,max=100,ne=all"`
}

// ProductDto represents the data transfer object for a product.
// Version is read-only and used for optimistic concurrency control.
type ProductDto struct {
	ID          string `json:"id"`
	Name        string `json:"name"        validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
	Price       int64  `json:"price"       validate:"min=0"`
	Stock       int32  `json:"stock"       validate:"min=0"`
	ImageURL    string `json:"imageUrl"    validate:"omitempty,url"`
	Category    string `json:"category"    validate:"required,max=100,ne=all"`
	Version     int32  `json:"version"     validate:"required,min=1"`
}

// StockUpdateDto represents the data transfer object for updating product stock.
type StockUpdateDto struct {
	Stock   int32 `json:"stock"   validate:"min=0"`
	Version int32 `json:"version" validate:"required,min=1"`
}

// Browse builds a fresh catalog store over the current snapshot, applies the query
// and returns the derived page.
func (s *Service) Browse(ctx context.Context, query BrowseQuery) (*CatalogPage, error) {
	products, err := s.snapshot.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	st := catalog.New(products, catalog.WithPageSize(s.pageSize))
	st.Apply(catalog.Query{
		Category: query.Category,
		Search:   query.Search,
		Sort:     catalog.ParseSortKey(query.Sort),
		MinPrice: query.MinPrice,
		MaxPrice: query.MaxPrice,
		Page:     query.Page,
		View:     catalog.ViewMode(query.View),
	})

	page := &CatalogPage{
		Products:    st.Paginated(),
		Categories:  st.Categories(),
		TotalItems:  st.TotalItems(),
		TotalPages:  st.TotalPages(),
		CurrentPage: st.CurrentPage(),
		PageSize:    st.PageSize(),
		State:       st.State(),
	}
	s.pageViews.Add(ctx, 1, metric.WithAttributes(attribute.String("sort", string(st.SortKey()))))
	if !st.SortKey().Known() {
		s.logger.DebugContext(ctx, "Unknown sort key, keeping featured order", "sort", query.Sort)
	}
	return page, nil
}

// Categories returns the category list derived from the current snapshot.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	products, err := s.snapshot.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return catalog.New(products).Categories(), nil
}

// FindByID retrieves a product by its ID and returns it as a ProductDto.
// Returns ErrProductNotFound if no product exists with the given ID.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*ProductDto, error) {
	product, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}

	return toDto(product), nil
}

// Create creates a new product and returns it as a ProductDto.
// Returns an error if the product cannot be created.
func (s *Service) Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error) {
	p, err := s.repository.Create(ctx, store.CreateParams{
		Name:          product.Name,
		Description:   product.Description,
		Price:         product.Price,
		StockQuantity: product.Stock,
		ImageURL:      product.ImageURL,
		Category:      product.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.catalogChanged(ctx, p.ID, events.ProductCreated, p.Version)
	return toDto(p), nil
}

// Update modifies an existing product's details and returns the updated product as a ProductDto.
// Returns ErrProductNotFound if no product exists with the given ID and version.
func (s *Service) Update(ctx context.Context, product ProductDto) (*ProductDto, error) {
	id, err := uuid.Parse(product.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid product ID %q: %w", product.ID, err)
	}
	updated, err := s.repository.Update(ctx, store.UpdateParams{
		ID:            id,
		Name:          product.Name,
		Description:   product.Description,
		Price:         product.Price,
		StockQuantity: product.Stock,
		ImageURL:      product.ImageURL,
		Category:      product.Category,
		Version:       product.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update product with ID %s: %w", product.ID, err)
	}

	s.catalogChanged(ctx, updated.ID, events.ProductUpdated, updated.Version)
	return toDto(updated), nil
}

// UpdateStock adjusts the stock quantity of a product and returns the updated product as a ProductDto.
// Returns ErrProductNotFound if no product exists with the given ID and version.
func (s *Service) UpdateStock(ctx context.Context, id uuid.UUID, stock int32, version int32) (*ProductDto, error) {
	product, err := s.repository.UpdateStock(ctx, id, stock, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update stock for product with ID %s: %w", id, err)
	}

	s.catalogChanged(ctx, product.ID, events.ProductUpdated, product.Version)
	return toDto(product), nil
}

// DeleteByID deletes a product by its ID.
// Returns ErrProductNotFound if no product exists with the given ID and version.
func (s *Service) DeleteByID(ctx context.Context, id uuid.UUID, version int32) error {
	if err := s.repository.DeleteByID(ctx, id, version); err != nil {
		return fmt.Errorf("failed to delete product with ID %s: %w", id, err)
	}

	s.catalogChanged(ctx, id, events.ProductDeleted, version)
	return nil
}

// catalogChanged drops the local snapshot and tells the other replicas to do the same.
// The write already happened, so a failed publish is only logged.
func (s *Service) catalogChanged(ctx context.Context, id uuid.UUID, kind events.ChangeKind, version int32) {
	s.snapshot.Invalidate(ctx)
	event := events.CatalogChangedEvent{
		ProductID: id,
		Kind:      kind,
		Version:   version,
		ChangedAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish CatalogChangedEvent", "ID", id, "kind", kind, "error", err)
	}
}

// toDto converts a store.Product to a ProductDto.
func toDto(product *store.Product) *ProductDto {
	return &ProductDto{
		ID:          product.ID.String(),
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Stock:       product.StockQuantity,
		ImageURL:    product.ImageURL,
		Category:    product.Category,
		Version:     product.Version,
	}
}
