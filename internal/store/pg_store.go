package store

import (
	"context"
	"errors"
	"fmt"

	perrors "github.com/ceramica/storefront/internal/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `p.id, p.name, p.description, p.price, p.stock_quantity, p.image_url, c.name, p.version, p.created_at, p.updated_at`

const findByIDQuery = `
SELECT ` + productColumns + `
FROM products p
JOIN categories c ON c.id = p.category_id
WHERE p.id = $1`

const listCatalogQuery = `
SELECT ` + productColumns + `
FROM products p
JOIN categories c ON c.id = p.category_id
ORDER BY p.created_at, p.id`

const upsertCategoryCTE = `
category AS (
    INSERT INTO categories (name) VALUES ($1)
    ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
    RETURNING id, name
)`

const createQuery = `
WITH ` + upsertCategoryCTE + `,
p AS (
    INSERT INTO products (name, description, price, stock_quantity, image_url, category_id)
    SELECT $2::varchar, $3::text, $4::bigint, $5::integer, $6::text, category.id FROM category
    RETURNING *
)
SELECT ` + productColumns + `
FROM p
JOIN category c ON c.id = p.category_id`

const updateQuery = `
WITH ` + upsertCategoryCTE + `,
p AS (
    UPDATE products
    SET name = $3, description = $4, price = $5, stock_quantity = $6, image_url = $7,
        category_id = (SELECT id FROM category),
        version = version + 1, updated_at = now()
    WHERE id = $2 AND version = $8
    RETURNING *
)
SELECT ` + productColumns + `
FROM p
JOIN category c ON c.id = p.category_id`

const updateStockQuery = `
WITH p AS (
    UPDATE products
    SET stock_quantity = $2, version = version + 1, updated_at = now()
    WHERE id = $1 AND version = $3
    RETURNING *
)
SELECT ` + productColumns + `
FROM p
JOIN categories c ON c.id = p.category_id`

const deleteQuery = `DELETE FROM products WHERE id = $1 AND version = $2`

// PgStore implements ProductStore using PostgreSQL as the data store.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of ProductStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

// FindByID retrieves a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) FindByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	product, err := p.queryOne(ctx, findByIDQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return product, nil
}

// ListCatalog retrieves all products in creation order.
// It returns a slice of products, which may be empty if no products exist.
func (p *PgStore) ListCatalog(ctx context.Context) ([]Product, error) {
	rows, err := p.db.Query(ctx, listCatalogQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Product])
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog: %w", err)
	}
	return products, nil
}

// Create adds a new product to the catalog.
// Returns an error if the product cannot be created.
func (p *PgStore) Create(ctx context.Context, params CreateParams) (*Product, error) {
	product, err := p.queryOne(ctx, createQuery,
		params.Category, params.Name, params.Description, params.Price, params.StockQuantity, params.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

// Update modifies an existing product's details.
// Returns ErrProductNotFound if no product exists with the given ID and version.
func (p *PgStore) Update(ctx context.Context, params UpdateParams) (*Product, error) {
	product, err := p.queryOne(ctx, updateQuery,
		params.Category, params.ID, params.Name, params.Description, params.Price, params.StockQuantity, params.ImageURL, params.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

// UpdateStock adjusts the stock quantity of a product.
// Returns ErrProductNotFound if no product exists with the given ID and version.
func (p *PgStore) UpdateStock(ctx context.Context, id uuid.UUID, stock int32, version int32) (*Product, error) {
	product, err := p.queryOne(ctx, updateStockQuery, id, stock, version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product stock: %w", err)
	}
	return product, nil
}

// DeleteByID removes a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID and version.
func (p *PgStore) DeleteByID(ctx context.Context, id uuid.UUID, version int32) error {
	tag, err := p.db.Exec(ctx, deleteQuery, id, version)
	if err != nil {
		return fmt.Errorf("failed to delete product by ID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return perrors.ErrProductNotFound
	}
	return nil
}

// queryOne runs a query expected to return exactly one product row.
func (p *PgStore) queryOne(ctx context.Context, sql string, args ...any) (*Product, error) {
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	product, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[Product])
	if err != nil {
		return nil, err
	}
	return &product, nil
}
