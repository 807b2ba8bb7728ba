package catalog

// Query is the complete set of listing page inputs carried by one request.
type Query struct {
	Category string
	Search   string
	Sort     SortKey
	MinPrice int64
	MaxPrice int64
	Page     int
	View     ViewMode
}

// Apply runs the setters for every field of q. An empty category selects
// AllCategories, an empty view keeps the current one and a zero page means page 1.
// The page is set last, so a query that changes filters and omits the page
// lands on the first page.
func (s *Store) Apply(q Query) {
	category := q.Category
	if category == "" {
		category = AllCategories
	}
	s.SetSelectedCategory(category)
	s.SetSearchQuery(q.Search)
	s.SetPriceRange(q.MinPrice, q.MaxPrice)
	s.SetSortKey(ParseSortKey(string(q.Sort)))
	if q.View != "" {
		s.SetViewMode(q.View)
	}
	page := q.Page
	if page == 0 {
		page = 1
	}
	s.SetCurrentPage(page)
}
