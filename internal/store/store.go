// Package store provides an interface for catalog product storage operations.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProductStore is an interface for product storage operations.
// It abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type ProductStore interface {
	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// ListCatalog returns every product in featured order (creation order).
	// Returns an empty slice if no products exist.
	ListCatalog(ctx context.Context) ([]Product, error)

	// Create adds a new product to the catalog, creating its category when it does not exist yet.
	Create(ctx context.Context, params CreateParams) (*Product, error)

	// Update modifies an existing product's details.
	// Returns ErrProductNotFound if no product exists with the given ID and version.
	Update(ctx context.Context, params UpdateParams) (*Product, error)

	// UpdateStock adjusts the stock quantity of a product.
	// Returns ErrProductNotFound if no product exists with the given ID and version.
	UpdateStock(ctx context.Context, id uuid.UUID, stock int32, version int32) (*Product, error)

	// DeleteByID removes a product by its ID.
	// Returns ErrProductNotFound if no product exists with the given ID and version.
	DeleteByID(ctx context.Context, id uuid.UUID, version int32) error
}

// Product is a catalog row. Field order matches the column order of productColumns.
type Product struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Price         int64 // Price in the smallest currency unit
	StockQuantity int32
	ImageURL      string
	Category      string
	Version       int32
	CreatedAt     *time.Time
	UpdatedAt     *time.Time
}

// CreateParams holds the fields of a new product.
type CreateParams struct {
	Name          string
	Description   string
	Price         int64
	StockQuantity int32
	ImageURL      string
	Category      string
}

// UpdateParams holds the replacement fields of a product and the version they were read at.
type UpdateParams struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Price         int64
	StockQuantity int32
	ImageURL      string
	Category      string
	Version       int32
}

var (
	_ ProductStore = (*PgStore)(nil)
	_ ProductStore = (*InMemory)(nil)
)
