package domain

import "time"

// SortDirection represents ordering direction for listings.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortKey enumerates the canonical sort keys a listing accepts. Each source
// maps these onto its own native columns.
type SortKey string

const (
	SortKeyLastSeenAt      SortKey = "last_seen_at"
	SortKeyFirstSeenAt     SortKey = "first_seen_at"
	SortKeyDiscountPercent SortKey = "discount_percent"
	SortKeyCurrentPrice    SortKey = "current_price"
)

// ValidSortKey reports whether k is one of the accepted sort keys.
func ValidSortKey(k SortKey) bool {
	switch k {
	case SortKeyLastSeenAt, SortKeyFirstSeenAt, SortKeyDiscountPercent, SortKeyCurrentPrice:
		return true
	}
	return false
}

// FilterKind identifies one canonical filter dimension. Sources declare
// which kinds they can express natively; the registry's capability policy
// decides what happens when they cannot.
type FilterKind string

const (
	FilterKindSource    FilterKind = "source"
	FilterKindStore     FilterKind = "store"
	FilterKindRegion    FilterKind = "region"
	FilterKindBrand     FilterKind = "brand"
	FilterKindCategory  FilterKind = "category"
	FilterKindSearch    FilterKind = "search"
	FilterKindDiscount  FilterKind = "discount"
	FilterKindPrice     FilterKind = "price"
	FilterKindDate      FilterKind = "date"
	FilterKindOnSale    FilterKind = "on_sale"
	FilterKindPriceDrop FilterKind = "price_drop"
	FilterKindActive    FilterKind = "active"
)

// FilterSpec is the canonical listing request. Zero values mean "not
// requested"; pointer fields distinguish absent from zero.
type FilterSpec struct {
	Sources    []string
	Stores     []string
	Regions    []string
	Brands     []string
	Categories []string

	Search string

	MinDiscount *float64
	MaxDiscount *float64
	MinPrice    *float64
	MaxPrice    *float64

	DateFrom *time.Time
	DateTo   *time.Time

	OnSaleOnly   bool
	HasPriceDrop bool
	ActiveOnly   bool

	SortBy    SortKey
	SortOrder SortDirection

	Page    int
	PerPage int
}

// Offset returns the index of the first row of the requested page in the
// globally sorted union.
func (f FilterSpec) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// Wants reports whether the spec restricts the given filter dimension at all.
func (f FilterSpec) Wants(kind FilterKind) bool {
	switch kind {
	case FilterKindSource:
		return len(f.Sources) > 0
	case FilterKindStore:
		return len(f.Stores) > 0
	case FilterKindRegion:
		return len(f.Regions) > 0
	case FilterKindBrand:
		return len(f.Brands) > 0
	case FilterKindCategory:
		return len(f.Categories) > 0
	case FilterKindSearch:
		return f.Search != ""
	case FilterKindDiscount:
		return f.MinDiscount != nil || f.MaxDiscount != nil
	case FilterKindPrice:
		return f.MinPrice != nil || f.MaxPrice != nil
	case FilterKindDate:
		return f.DateFrom != nil || f.DateTo != nil
	case FilterKindOnSale:
		return f.OnSaleOnly
	case FilterKindPriceDrop:
		return f.HasPriceDrop
	case FilterKindActive:
		return f.ActiveOnly
	}
	return false
}
