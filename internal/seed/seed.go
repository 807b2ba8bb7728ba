// Package seed reads product files used to fill an empty catalog and to browse offline.
package seed

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/ceramica/storefront/internal/catalog"
	"github.com/ceramica/storefront/internal/store"
	"gopkg.in/yaml.v3"
)

// Item is one product entry of a seed file. Price is in the smallest currency unit.
type Item struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
	Stock       int32  `yaml:"stock"`
	ImageURL    string `yaml:"imageUrl"`
	Category    string `yaml:"category"`
}

type file struct {
	Products []Item `yaml:"products"`
}

// ReadFile parses a YAML or JSON seed file with a top-level "products" list.
// Entries are returned in file order, which is the featured order.
func ReadFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes seed file content. JSON is accepted since it is valid YAML.
func Parse(data []byte) ([]Item, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, item := range f.Products {
		if item.Name == "" {
			return nil, fmt.Errorf("product #%d has no name", i+1)
		}
		if item.Category == "" || item.Category == catalog.AllCategories {
			return nil, fmt.Errorf("product %q has an invalid category %q", item.Name, item.Category)
		}
		if item.Price < 0 || item.Stock < 0 {
			return nil, fmt.Errorf("product %q has a negative price or stock", item.Name)
		}
	}
	return f.Products, nil
}

// Products converts the items for the catalog store. Items without an ID get their position.
func Products(items []Item) []catalog.Product {
	out := make([]catalog.Product, len(items))
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		out[i] = catalog.Product{
			ID:          id,
			Name:        item.Name,
			Description: item.Description,
			Price:       item.Price,
			Category:    catalog.Category{Name: item.Category},
			ImageURL:    item.ImageURL,
			Stock:       item.Stock,
		}
	}
	return out
}

// Creator is the part of store.ProductStore needed to insert seed items.
type Creator interface {
	Create(ctx context.Context, params store.CreateParams) (*store.Product, error)
}

// Apply inserts the items in order and returns how many were created.
func Apply(ctx context.Context, creator Creator, items []Item) (int, error) {
	for i, item := range items {
		_, err := creator.Create(ctx, store.CreateParams{
			Name:          item.Name,
			Description:   item.Description,
			Price:         item.Price,
			StockQuantity: item.Stock,
			ImageURL:      item.ImageURL,
			Category:      item.Category,
		})
		if err != nil {
			return i, fmt.Errorf("failed to create product %q: %w", item.Name, err)
		}
	}
	return len(items), nil
}
