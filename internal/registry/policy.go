package registry

import "github.com/northdeals/catalog/internal/domain"

// CapabilityPolicy decides what the planner does with a source that cannot
// natively express a requested filter.
type CapabilityPolicy int

const (
	// PolicyExcludeSource drops the source from the plan entirely. Used for
	// load-bearing selections where including unfiltered rows would violate
	// the caller's explicit restriction.
	PolicyExcludeSource CapabilityPolicy = iota

	// PolicyIncludeUnfiltered keeps the source but skips the predicate for
	// that dimension. Used for narrowing filters where a few extra rows are
	// preferable to hiding a whole source.
	PolicyIncludeUnfiltered
)

// filterPolicies is the single, explicit policy table per filter kind. It is
// data, not per-source conditionals.
var filterPolicies = map[domain.FilterKind]CapabilityPolicy{
	domain.FilterKindSource:    PolicyExcludeSource,
	domain.FilterKindStore:     PolicyExcludeSource,
	domain.FilterKindRegion:    PolicyExcludeSource,
	domain.FilterKindBrand:     PolicyIncludeUnfiltered,
	domain.FilterKindCategory:  PolicyIncludeUnfiltered,
	domain.FilterKindSearch:    PolicyIncludeUnfiltered,
	domain.FilterKindDiscount:  PolicyIncludeUnfiltered,
	domain.FilterKindPrice:     PolicyIncludeUnfiltered,
	domain.FilterKindDate:      PolicyIncludeUnfiltered,
	domain.FilterKindOnSale:    PolicyIncludeUnfiltered,
	domain.FilterKindPriceDrop: PolicyIncludeUnfiltered,
	domain.FilterKindActive:    PolicyIncludeUnfiltered,
}

// PolicyFor returns the planner policy for a filter kind.
func PolicyFor(kind domain.FilterKind) CapabilityPolicy {
	if p, ok := filterPolicies[kind]; ok {
		return p
	}
	return PolicyIncludeUnfiltered
}
