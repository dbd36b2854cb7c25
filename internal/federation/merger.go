package federation

import (
	"sort"
	"time"

	"github.com/northdeals/catalog/internal/domain"
)

// Page is one globally sorted, paginated slice of the federated union.
type Page struct {
	Products []domain.CanonicalProduct

	// Total is the sum of every source's independently reported count; it
	// can exceed len(Products) across all pages because per-source fetches
	// are capped.
	Total int

	// FailedSources names sources that contributed nothing due to failure.
	FailedSources []string

	// SkippedRows counts rows dropped as unrepresentable during
	// normalization.
	SkippedRows int

	// Capped reports that at least one source fetched exactly its cap,
	// meaning pages beyond this one may be inaccurate for this filter.
	Capped bool
}

// Merge concatenates all settled source results, applies the canonical sort
// with an id tie-break, and slices out the requested page.
func Merge(results []SourceResult, spec domain.FilterSpec) Page {
	var page Page
	var all []domain.CanonicalProduct

	for _, res := range results {
		if res.Failed {
			page.FailedSources = append(page.FailedSources, res.SourceKey)
			continue
		}
		page.Total += res.Count
		page.SkippedRows += res.Skipped
		// The raw fetch count decides capping; skipped rows still consumed
		// fetch budget.
		if res.FetchLimit > 0 && res.Fetched >= res.FetchLimit {
			page.Capped = true
		}
		all = append(all, res.Products...)
	}

	sort.Slice(all, func(i, j int) bool {
		return less(all[i], all[j], spec.SortBy, spec.SortOrder)
	})

	start := spec.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + spec.PerPage
	if end > len(all) {
		end = len(all)
	}
	page.Products = all[start:end]
	if page.Products == nil {
		page.Products = []domain.CanonicalProduct{}
	}
	return page
}

// less implements the canonical ordering: the sort key in the requested
// direction, ties broken by id ascending so ordering is deterministic.
func less(a, b domain.CanonicalProduct, key domain.SortKey, dir domain.SortDirection) bool {
	cmp := compare(a, b, key)
	if cmp == 0 {
		return a.ID < b.ID
	}
	if dir == domain.SortDirectionAsc {
		return cmp < 0
	}
	return cmp > 0
}

func compare(a, b domain.CanonicalProduct, key domain.SortKey) int {
	switch key {
	case domain.SortKeyCurrentPrice:
		return compareFloat(a.CurrentPrice, b.CurrentPrice)
	case domain.SortKeyDiscountPercent:
		return compareFloat(deref(a.DiscountPercent), deref(b.DiscountPercent))
	case domain.SortKeyFirstSeenAt:
		return compareTime(a.FirstSeenAt, b.FirstSeenAt)
	default: // last_seen_at
		return compareTime(a.LastSeenAt, b.LastSeenAt)
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
