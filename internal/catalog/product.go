// Package catalog holds the filter, sort and pagination state of a product listing page
// and derives the visible subset of products from it.
package catalog

// AllCategories is the category selection that disables the category filter.
const AllCategories = "all"

// DefaultPageSize is the number of products shown on one listing page.
const DefaultPageSize = 6

// Category groups products on the listing page.
type Category struct {
	Name string `json:"name" yaml:"name"`
}

// Product is a catalog entry as supplied by the host page. The store never mutates it.
type Product struct {
	ID          string   `json:"id"          yaml:"id"`
	Name        string   `json:"name"        yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Price       int64    `json:"price"       yaml:"price"` // smallest currency unit
	Category    Category `json:"category"    yaml:"category"`
	ImageURL    string   `json:"imageUrl"    yaml:"imageUrl"`
	Stock       int32    `json:"stock"       yaml:"stock"`
}

// ViewMode selects how the listing page lays out products. It does not affect filtering.
type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

// ParseViewMode returns the view mode for s, falling back to grid.
func ParseViewMode(s string) ViewMode {
	if ViewMode(s) == ViewList {
		return ViewList
	}
	return ViewGrid
}
