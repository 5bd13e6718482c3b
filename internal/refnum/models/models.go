package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
)

// ContinuationMarker is appended to purchase request numbers issued for a
// continuation of an earlier request.
const ContinuationMarker = "-CONT"

var fundTypePattern = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

// Key identifies one counter. Every number issued for a key is strictly
// greater than the previous one.
//
// Purchase requests are segmented by fund type, year and month. Purchase
// orders and vouchers only by year: FundType is empty and Month is zero.
type Key struct {
	Category id.Category
	FundType string
	Year     int
	Month    int
}

func (k Key) String() string {
	if k.FundType == "" {
		return fmt.Sprintf("%s/%04d", k.Category, k.Year)
	}
	return fmt.Sprintf("%s/%s/%04d-%02d", k.Category, k.FundType, k.Year, k.Month)
}

// Request describes the number a caller needs.
type Request struct {
	Category     id.Category
	FundType     string
	Continuation bool
}

// Normalize validates the request and upper-cases the fund type.
func (r Request) Normalize() (Request, error) {
	if !r.Category.IsValid() {
		return r, dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	r.FundType = strings.ToUpper(strings.TrimSpace(r.FundType))
	if r.Category != id.CategoryPurchaseRequest {
		r.FundType = ""
		r.Continuation = false
		return r, nil
	}
	if r.FundType == "" {
		return r, dErrors.New(dErrors.CodeInvalidInput, "fund type is required for purchase requests")
	}
	if !fundTypePattern.MatchString(r.FundType) {
		return r, dErrors.New(dErrors.CodeInvalidInput, "fund type abbreviation must be 1-16 letters or digits")
	}
	return r, nil
}

// KeyFor derives the counter key for a normalized request at time now.
func KeyFor(r Request, now time.Time) Key {
	if r.Category == id.CategoryPurchaseRequest {
		return Key{Category: r.Category, FundType: r.FundType, Year: now.Year(), Month: int(now.Month())}
	}
	return Key{Category: r.Category, Year: now.Year()}
}

// Format renders a sequence value for key.
//
//	PR:     {FundType}-{Year}-{Month:2}-{Seq:6}[-CONT]
//	PO/VCH: {Category}-{Year}-{Seq:6}
func Format(key Key, seq int64, continuation bool) string {
	if key.Category == id.CategoryPurchaseRequest {
		s := fmt.Sprintf("%s-%04d-%02d-%06d", key.FundType, key.Year, key.Month, seq)
		if continuation {
			s += ContinuationMarker
		}
		return s
	}
	return fmt.Sprintf("%s-%04d-%06d", key.Category, key.Year, seq)
}
