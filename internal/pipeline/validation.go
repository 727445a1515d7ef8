package pipeline

import (
	"strings"
)

// DefaultCategories is the category list offered to extractors.
var DefaultCategories = []string{
	"Food & Dining",
	"Groceries",
	"Transportation",
	"Entertainment",
	"Utilities",
	"Shopping",
	"Housing",
	"Healthcare",
	"Travel",
	"Salary",
	"Transfers",
	UncategorizedCategory,
}

// CategoryNormalizer maps extracted category names onto a known list, ignoring case and spacing.
type CategoryNormalizer struct {
	canonical map[string]string // normalized -> display name
}

// NewCategoryNormalizer builds a normalizer over categories.
func NewCategoryNormalizer(categories []string) *CategoryNormalizer {
	n := &CategoryNormalizer{canonical: make(map[string]string, len(categories))}
	for _, c := range categories {
		if key := normalizeCategory(c); key != "" {
			n.canonical[key] = strings.TrimSpace(c)
		}
	}
	return n
}

// Normalize returns the known spelling of category. Unknown names are kept
// trimmed; an empty name becomes UncategorizedCategory.
func (n *CategoryNormalizer) Normalize(category string) string {
	key := normalizeCategory(category)
	if key == "" {
		return UncategorizedCategory
	}
	if known, ok := n.canonical[key]; ok {
		return known
	}
	return strings.Join(strings.Fields(category), " ")
}

// Known reports whether category matches one of the configured names.
func (n *CategoryNormalizer) Known(category string) bool {
	_, ok := n.canonical[normalizeCategory(category)]
	return ok
}

// normalizeCategory normalizes a category name for comparison.
// Converts to uppercase and collapses whitespace for case-insensitive comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}
