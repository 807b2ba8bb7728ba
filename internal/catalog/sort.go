package catalog

import (
	"cmp"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey is the ordering applied to the filtered products.
type SortKey string

const (
	SortFeatured  SortKey = "featured"
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
	SortNameAsc   SortKey = "name-asc"
	SortNameDesc  SortKey = "name-desc"
)

// SortKeys lists the recognised keys in the order a sort selector shows them.
var SortKeys = []SortKey{SortFeatured, SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc}

// ParseSortKey converts s to a SortKey. Unknown values are kept as they are and
// sort like SortFeatured, so the input order is preserved.
func ParseSortKey(s string) SortKey {
	if s == "" {
		return SortFeatured
	}
	return SortKey(s)
}

// Known reports whether k is one of SortKeys.
func (k SortKey) Known() bool {
	return slices.Contains(SortKeys, k)
}

type indexed struct {
	pos     int
	product Product
}

// sortProducts orders products by key. Equal keys keep their input order: the
// comparison falls back to the original position, so the result does not depend
// on the stability of the underlying sort.
func sortProducts(products []Product, key SortKey) []Product {
	var compare func(a, b Product) int
	switch key {
	case SortPriceAsc:
		compare = func(a, b Product) int { return cmp.Compare(a.Price, b.Price) }
	case SortPriceDesc:
		compare = func(a, b Product) int { return cmp.Compare(b.Price, a.Price) }
	case SortNameAsc:
		c := newNameCollator()
		compare = func(a, b Product) int { return c.CompareString(a.Name, b.Name) }
	case SortNameDesc:
		c := newNameCollator()
		compare = func(a, b Product) int { return c.CompareString(b.Name, a.Name) }
	default:
		return products
	}

	pairs := make([]indexed, len(products))
	for i, p := range products {
		pairs[i] = indexed{pos: i, product: p}
	}
	slices.SortFunc(pairs, func(a, b indexed) int {
		if c := compare(a.product, b.product); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})
	for i, p := range pairs {
		products[i] = p.product
	}
	return products
}

// newNameCollator returns a case-insensitive English collator.
// A Collator is not safe for concurrent use, so each sort gets its own.
func newNameCollator() *collate.Collator {
	return collate.New(language.English, collate.IgnoreCase)
}
