package domain

import (
	"strings"

	dErrors "proctrack/pkg/domain-errors"
)

// Category is the document class a transaction tracks.
// Invariant: the value must be one of the supported categories.
//
// Usage: construct via ParseCategory at trust boundaries; direct casting
// bypasses validation.
type Category string

const (
	CategoryPurchaseRequest Category = "PR"
	CategoryPurchaseOrder   Category = "PO"
	CategoryVoucher         Category = "VCH"
)

var validCategories = map[Category]bool{
	CategoryPurchaseRequest: true,
	CategoryPurchaseOrder:   true,
	CategoryVoucher:         true,
}

// Categories lists every supported category in display order.
func Categories() []Category {
	return []Category{CategoryPurchaseRequest, CategoryPurchaseOrder, CategoryVoucher}
}

// ParseCategory constructs a Category from external input. Matching is
// case-insensitive.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseCategory(s string) (Category, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category cannot be empty")
	}
	c := Category(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	return c, nil
}

func (c Category) IsValid() bool {
	return validCategories[c]
}

func (c Category) String() string {
	return string(c)
}
