package domain

import "fmt"

// Category is one of the fixed clothing classes the backend understands.
type Category string

const (
	CategoryTops      Category = "tops"
	CategoryBottoms   Category = "bottoms"
	CategoryOuterwear Category = "outerwear"
	CategoryFootwear  Category = "footwear"
)

// Categories returns the closed set of categories in canonical order. The
// order matters on the wire: wardrobe request parts are written per category
// in this order so that part indices line up with collection indices.
func Categories() []Category {
	return []Category{CategoryTops, CategoryBottoms, CategoryOuterwear, CategoryFootwear}
}

// ParseCategory validates a category name from an untrusted source (URL path,
// settings row, backend response).
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryTops, CategoryBottoms, CategoryOuterwear, CategoryFootwear:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}
