package catalog

import (
	"slices"
	"strings"
)

// Unset is the price bound value that disables that side of a PriceRange.
// A bound of exactly zero cannot be expressed; see DESIGN.md.
const Unset int64 = 0

// PriceRange bounds the product price on both sides, inclusive.
type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// State is the flat filter, sort and pagination record owned by a Store.
type State struct {
	Category    string     `json:"category"`
	Sort        SortKey    `json:"sort"`
	Search      string     `json:"search"`
	PriceRange  PriceRange `json:"priceRange"`
	CurrentPage int        `json:"currentPage"`
	View        ViewMode   `json:"view"`
}

func defaultState() State {
	return State{
		Category:    AllCategories,
		Sort:        SortFeatured,
		CurrentPage: 1,
		View:        ViewGrid,
	}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithPageSize sets the number of products per page. Values below 1 are ignored.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// Store holds the listing page state over a fixed product list and derives
// the filtered, sorted and paginated views from it.
//
// Setters never fail and never validate: unknown categories give an empty
// result, unknown sort keys keep the input order, out-of-range pages give an
// empty page. Changing a filter does not reset the current page; callers that
// want that behaviour call SetCurrentPage(1) or use Apply.
//
// Derived values are memoized and recomputed lazily after any setter call.
// A Store is owned by one page view and is not safe for concurrent use.
type Store struct {
	products []Product
	pageSize int
	state    State

	version    uint64
	computedAt uint64
	filtered   []Product
	categories []string
}

// New creates a Store over a copy of products with the default state.
func New(products []Product, opts ...Option) *Store {
	s := &Store{
		pageSize: DefaultPageSize,
		state:    defaultState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.SetProducts(products)
	return s
}

// SetProducts replaces the whole product list, as when the host re-fetches it.
func (s *Store) SetProducts(products []Product) {
	s.products = slices.Clone(products)
	s.categories = nil
	s.touch()
}

// SetSelectedCategory replaces the selected category. AllCategories disables the filter.
func (s *Store) SetSelectedCategory(category string) {
	s.state.Category = category
	s.touch()
}

// SetSortKey replaces the active sort.
func (s *Store) SetSortKey(key SortKey) {
	s.state.Sort = key
	s.touch()
}

// SetSearchQuery replaces the free-text search.
func (s *Store) SetSearchQuery(query string) {
	s.state.Search = query
	s.touch()
}

// SetPriceRange replaces both price bounds. Unset disables a bound.
func (s *Store) SetPriceRange(minPrice, maxPrice int64) {
	s.state.PriceRange = PriceRange{Min: minPrice, Max: maxPrice}
	s.touch()
}

// SetCurrentPage replaces the 1-based current page without bounds checking.
func (s *Store) SetCurrentPage(page int) {
	s.state.CurrentPage = page
}

// SetViewMode switches between grid and list layout.
func (s *Store) SetViewMode(mode ViewMode) {
	s.state.View = mode
}

// ClearFilters resets category, sort, search, price range and page to their defaults.
// The view mode is layout, not a filter, and is kept.
func (s *Store) ClearFilters() {
	view := s.state.View
	s.state = defaultState()
	s.state.View = view
	s.touch()
}

func (s *Store) SelectedCategory() string { return s.state.Category }
func (s *Store) SortKey() SortKey          { return s.state.Sort }
func (s *Store) SearchQuery() string       { return s.state.Search }
func (s *Store) PriceRange() PriceRange    { return s.state.PriceRange }
func (s *Store) CurrentPage() int          { return s.state.CurrentPage }
func (s *Store) PageSize() int             { return s.pageSize }
func (s *Store) ViewMode() ViewMode        { return s.state.View }

// State returns a copy of the current state record.
func (s *Store) State() State { return s.state }

// Categories returns AllCategories followed by the distinct category names
// in order of first appearance in the product list.
func (s *Store) Categories() []string {
	if s.categories == nil {
		s.categories = distinctCategories(s.products)
	}
	return slices.Clone(s.categories)
}

// FilteredAndSorted returns every product matching the current filters, in sort order.
func (s *Store) FilteredAndSorted() []Product {
	return slices.Clone(s.derive())
}

// TotalItems returns the number of products matching the current filters.
func (s *Store) TotalItems() int {
	return len(s.derive())
}

// TotalPages returns the number of pages needed for the filtered products; zero when none match.
func (s *Store) TotalPages() int {
	n := len(s.derive())
	return (n + s.pageSize - 1) / s.pageSize
}

// Paginated returns the products of the current page. A page outside
// [1, TotalPages] yields an empty slice.
func (s *Store) Paginated() []Product {
	filtered := s.derive()
	page := s.state.CurrentPage
	if page < 1 || page > s.TotalPages() {
		return []Product{}
	}
	start := (page - 1) * s.pageSize
	end := min(start+s.pageSize, len(filtered))
	return slices.Clone(filtered[start:end])
}

func (s *Store) touch() {
	s.version++
}

// derive recomputes the filtered and sorted list when the state changed since the last call.
func (s *Store) derive() []Product {
	if s.filtered != nil && s.computedAt == s.version {
		return s.filtered
	}
	s.filtered = filterAndSort(s.products, s.state)
	s.computedAt = s.version
	return s.filtered
}

// filterAndSort applies category, search, minimum price and maximum price
// filters in that order, then sorts the survivors.
func filterAndSort(products []Product, st State) []Product {
	query := strings.ToLower(st.Search)
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if st.Category != AllCategories && p.Category.Name != st.Category {
			continue
		}
		if query != "" && !matchesSearch(p, query) {
			continue
		}
		if st.PriceRange.Min != Unset && p.Price < st.PriceRange.Min {
			continue
		}
		if st.PriceRange.Max != Unset && p.Price > st.PriceRange.Max {
			continue
		}
		out = append(out, p)
	}
	return sortProducts(out, st.Sort)
}

// matchesSearch reports whether the lower-cased query occurs in the product name or description.
func matchesSearch(p Product, query string) bool {
	if strings.Contains(strings.ToLower(p.Name), query) {
		return true
	}
	return p.Description != "" && strings.Contains(strings.ToLower(p.Description), query)
}

func distinctCategories(products []Product) []string {
	seen := map[string]struct{}{AllCategories: {}}
	out := []string{AllCategories}
	for _, p := range products {
		name := p.Category.Name
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
