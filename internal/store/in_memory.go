package store

import (
	"context"
	"sync"
	"time"

	"github.com/ceramica/storefront/internal/errors"
	"github.com/google/uuid"
)

// InMemory implements ProductStore using an in-memory map that remembers insertion order.
type InMemory struct {
	mu       sync.RWMutex
	products map[uuid.UUID]Product
	order    []uuid.UUID
	now      func() time.Time
}

// NewInMemoryStore creates a new empty in-memory ProductStore.
func NewInMemoryStore() *InMemory {
	return &InMemory{
		products: make(map[uuid.UUID]Product),
		now:      time.Now,
	}
}

// FindByID retrieves a product by its ID.
func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, errors.ErrProductNotFound
	}
	return &p, nil
}

// ListCatalog retrieves all products in insertion order.
func (s *InMemory) ListCatalog(_ context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Product, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.products[id])
	}
	return list, nil
}

// Create creates a new product and returns it.
func (s *InMemory) Create(_ context.Context, params CreateParams) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	product := Product{
		ID:            uuid.New(),
		Name:          params.Name,
		Description:   params.Description,
		Price:         params.Price,
		StockQuantity: params.StockQuantity,
		ImageURL:      params.ImageURL,
		Category:      params.Category,
		Version:       1,
		CreatedAt:     &now,
		UpdatedAt:     &now,
	}
	s.products[product.ID] = product
	s.order = append(s.order, product.ID)

	return &product, nil
}

// Update replaces the product's fields when the version matches.
func (s *InMemory) Update(_ context.Context, params UpdateParams) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[params.ID]
	if !ok || p.Version != params.Version {
		return nil, errors.ErrProductNotFound
	}
	now := s.now()
	p.Name = params.Name
	p.Description = params.Description
	p.Price = params.Price
	p.StockQuantity = params.StockQuantity
	p.ImageURL = params.ImageURL
	p.Category = params.Category
	p.Version++
	p.UpdatedAt = &now
	s.products[p.ID] = p

	return &p, nil
}

// UpdateStock sets the stock quantity when the version matches.
func (s *InMemory) UpdateStock(_ context.Context, id uuid.UUID, stock int32, version int32) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.Version != version {
		return nil, errors.ErrProductNotFound
	}
	now := s.now()
	p.StockQuantity = stock
	p.Version++
	p.UpdatedAt = &now
	s.products[id] = p

	return &p, nil
}

// DeleteByID deletes a product by its ID when the version matches.
func (s *InMemory) DeleteByID(_ context.Context, id uuid.UUID, version int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists || p.Version != version {
		return errors.ErrProductNotFound
	}
	delete(s.products, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
