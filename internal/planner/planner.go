// Package planner turns one canonical FilterSpec into per-source native
// query plans. Predicate translation is driven entirely by the source
// registry: a filter is pushed down only when the source declared the
// capability, and the registry's policy table decides whether an
// inexpressible filter excludes the source or leaves it unfiltered.
package planner

import (
	"strings"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/registry"
)

// PredicateOp is a native comparison the repository knows how to render.
type PredicateOp string

const (
	OpEq       PredicateOp = "eq"
	OpGte      PredicateOp = "gte"
	OpLte      PredicateOp = "lte"
	OpGt       PredicateOp = "gt"
	OpILike    PredicateOp = "ilike"
	OpIn       PredicateOp = "in"
	OpNotIn    PredicateOp = "not_in"
	OpNotNull  PredicateOp = "not_null"
	OpLtColumn PredicateOp = "lt_column"
)

// Predicate is one native filter condition. Column names come from the
// registry, never from request input. For OpLtColumn, Value holds the other
// column's name.
type Predicate struct {
	Column string
	Op     PredicateOp
	Value  any
}

// QueryPlan is the native query for one source: which predicates to push
// down, the native sort column, and the row-fetch cap.
type QueryPlan struct {
	SourceKey  string
	Predicates []Predicate
	SortColumn string
	SortDesc   bool

	// FetchLimit bounds the row fetch. Pagination happens in memory after
	// the merge, so every source must fetch up to the end of the requested
	// page; the hard cap trades deep-pagination accuracy for bounded memory.
	FetchLimit int
}

// FetchLimit computes the per-source row cap for a page request:
// min(page*perPage+perPage, hardCap).
func FetchLimit(page, perPage, hardCap int) int {
	limit := page*perPage + perPage
	if limit > hardCap {
		return hardCap
	}
	return limit
}

// Plan produces one QueryPlan per eligible source, in registry order.
func Plan(reg *registry.Registry, spec domain.FilterSpec, hardCap int) []QueryPlan {
	var plans []QueryPlan
	for _, desc := range reg.List() {
		plan, ok := planSource(desc, spec, hardCap)
		if !ok {
			continue
		}
		plans = append(plans, plan)
	}
	return plans
}

func planSource(desc registry.SourceDescriptor, spec domain.FilterSpec, hardCap int) (QueryPlan, bool) {
	if len(spec.Sources) > 0 && !contains(spec.Sources, desc.Key) {
		return QueryPlan{}, false
	}

	plan := QueryPlan{
		SourceKey:  desc.Key,
		SortColumn: sortColumn(desc, spec.SortBy),
		SortDesc:   spec.SortOrder != domain.SortDirectionAsc,
		FetchLimit: FetchLimit(spec.Page, spec.PerPage, hardCap),
	}

	for _, kind := range []domain.FilterKind{
		domain.FilterKindStore,
		domain.FilterKindRegion,
		domain.FilterKindBrand,
		domain.FilterKindCategory,
		domain.FilterKindSearch,
		domain.FilterKindDiscount,
		domain.FilterKindPrice,
		domain.FilterKindDate,
		domain.FilterKindOnSale,
		domain.FilterKindPriceDrop,
		domain.FilterKindActive,
	} {
		if !spec.Wants(kind) {
			continue
		}
		if !desc.Supports(kind) {
			if registry.PolicyFor(kind) == registry.PolicyExcludeSource {
				return QueryPlan{}, false
			}
			continue
		}
		preds, ok := translate(desc, spec, kind)
		if !ok {
			// The source supports the dimension via a fixed value that the
			// selection does not include.
			return QueryPlan{}, false
		}
		plan.Predicates = append(plan.Predicates, preds...)
	}

	return plan, true
}

// translate renders one filter dimension into native predicates. The second
// return is false when a fixed-value dimension rules the source out.
func translate(desc registry.SourceDescriptor, spec domain.FilterSpec, kind domain.FilterKind) ([]Predicate, bool) {
	f := desc.Fields
	switch kind {
	case domain.FilterKindStore:
		// A fixed store decides membership outright; a store column becomes
		// a native predicate.
		if desc.FixedStore != "" {
			return nil, containsFold(spec.Stores, desc.FixedStore)
		}
		return []Predicate{{Column: f.Store, Op: OpIn, Value: spec.Stores}}, true
	case domain.FilterKindRegion:
		if desc.FixedRegion != "" {
			return nil, containsFold(spec.Regions, desc.FixedRegion)
		}
		return []Predicate{{Column: f.Region, Op: OpIn, Value: spec.Regions}}, true
	case domain.FilterKindBrand:
		return []Predicate{{Column: f.Brand, Op: OpIn, Value: spec.Brands}}, true
	case domain.FilterKindCategory:
		return []Predicate{{Column: f.Category, Op: OpIn, Value: spec.Categories}}, true
	case domain.FilterKindSearch:
		return []Predicate{{Column: f.Title, Op: OpILike, Value: "%" + spec.Search + "%"}}, true
	case domain.FilterKindDiscount:
		var preds []Predicate
		if spec.MinDiscount != nil {
			preds = append(preds, Predicate{Column: f.Discount, Op: OpGte, Value: *spec.MinDiscount})
		}
		if spec.MaxDiscount != nil {
			preds = append(preds, Predicate{Column: f.Discount, Op: OpLte, Value: *spec.MaxDiscount})
		}
		return preds, true
	case domain.FilterKindPrice:
		var preds []Predicate
		if spec.MinPrice != nil {
			preds = append(preds, Predicate{Column: f.CurrentPrice, Op: OpGte, Value: *spec.MinPrice})
		}
		if spec.MaxPrice != nil {
			preds = append(preds, Predicate{Column: f.CurrentPrice, Op: OpLte, Value: *spec.MaxPrice})
		}
		return preds, true
	case domain.FilterKindDate:
		var preds []Predicate
		if spec.DateFrom != nil {
			preds = append(preds, Predicate{Column: f.FirstSeen, Op: OpGte, Value: *spec.DateFrom})
		}
		if spec.DateTo != nil {
			preds = append(preds, Predicate{Column: f.FirstSeen, Op: OpLte, Value: *spec.DateTo})
		}
		return preds, true
	case domain.FilterKindOnSale:
		return []Predicate{{Column: f.Discount, Op: OpGt, Value: 0.0}}, true
	case domain.FilterKindPriceDrop:
		return []Predicate{
			{Column: f.OriginalPrice, Op: OpNotNull},
			{Column: f.CurrentPrice, Op: OpLtColumn, Value: f.OriginalPrice},
		}, true
	case domain.FilterKindActive:
		if desc.ActiveColumn != "" {
			return []Predicate{{Column: desc.ActiveColumn, Op: OpEq, Value: true}}, true
		}
		return []Predicate{{Column: desc.StatusColumn, Op: OpNotIn, Value: desc.InactiveStatuses}}, true
	}
	return nil, true
}

// sortColumn maps a canonical sort key to the source's native column,
// preferring an explicit per-source proxy, then the direct field mapping,
// then the nearest recency column. A plan never fails over sorting.
func sortColumn(desc registry.SourceDescriptor, key domain.SortKey) string {
	if col, ok := desc.SortProxy[key]; ok {
		return col
	}
	f := desc.Fields
	switch key {
	case domain.SortKeyFirstSeenAt:
		return f.FirstSeen
	case domain.SortKeyCurrentPrice:
		return f.CurrentPrice
	case domain.SortKeyDiscountPercent:
		if f.Discount != "" {
			return f.Discount
		}
		return f.CurrentPrice
	default: // SortKeyLastSeenAt
		if f.LastSeen != "" {
			return f.LastSeen
		}
		return f.FirstSeen
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// containsFold matches fixed store/region values case-insensitively because
// selections arrive lowercased from query strings.
func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
