package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// DefaultCategory is the category name used when the backend sends none.
const DefaultCategory = "general"

// ID is an opaque catalog identifier. Upstream payloads carry ids either as
// JSON strings or numbers, so comparison is tolerant of that mismatch.
type ID string

// Equal reports whether two ids identify the same record. Plain decimal ids
// are compared exactly by value, so "7", "07" and "7.0" are equal. Any other
// spelling, including exponents, Inf and NaN, only equals itself.
func (id ID) Equal(other ID) bool {
	if id == other {
		return true
	}
	a, ok := id.number()
	if !ok {
		return false
	}
	b, ok := other.number()
	return ok && a.Equal(b)
}

func (id ID) number() (decimal.Decimal, bool) {
	if !isPlainDecimal(string(id)) {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(string(id))
	return d, err == nil
}

// isPlainDecimal matches -?[0-9]+(\.[0-9]+)?.
func isPlainDecimal(s string) bool {
	if len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	if !allDigits(intPart) {
		return false
	}
	return !hasFrac || allDigits(frac)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsZero reports whether the id is absent.
func (id ID) IsZero() bool { return id == "" }

func (id ID) String() string { return string(id) }

// Product is an immutable snapshot of a catalog item.
type Product struct {
	ID          ID
	Name        string
	Description string
	// CategoryID is empty when the product has no category.
	CategoryID ID
	// Category is the normalized lowercase category name.
	Category string
	// Price is the effective unit price after discount.
	Price           decimal.Decimal
	OriginalPrice   decimal.Decimal
	DiscountPercent int
	Stock           int
	Dietary         Dietary
	Featured        bool
	Attributes      map[string]string
	Image           string
}

// Available reports whether the product has stock.
func (p Product) Available() bool { return p.Stock > 0 }

// Category is a normalized catalog category.
type Category struct {
	ID   ID
	Name string
	// Value is the lowercase name used for matching.
	Value string
}

// RawProduct is the product payload as sent by the catalog backend. Optional
// fields are pointers or zero values; the Normalizer fills in defaults.
type RawProduct struct {
	ID          ID
	Name        string
	Description string
	Price       decimal.Decimal
	NewPrice    *decimal.Decimal
	Discount    *int
	Stock       int
	Category    *RawCategory
	Attributes  map[string]string
	Image       string
}

// RawCategory is the category payload as sent by the catalog backend.
type RawCategory struct {
	ID   ID
	Name string
}

// Source fetches raw catalog data. Implementations report transport and
// backend validation failures as *NetworkError.
type Source interface {
	FetchProducts(ctx context.Context, sortHint string) ([]RawProduct, error)
	FetchCategories(ctx context.Context) ([]RawCategory, error)
}

// NetworkError reports a failed catalog fetch. It is propagated unchanged to
// the caller, which decides on display and retry.
type NetworkError struct {
	Op string
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: backend returned %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
