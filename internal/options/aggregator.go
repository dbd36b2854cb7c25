// Package options computes filter facets and headline stats on a TTL cache.
// Distinct scans are expensive, so readers get an immutable snapshot swapped
// atomically by a single in-flight refresh; stale reads inside the TTL are
// accepted.
package options

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/planner"
	"github.com/northdeals/catalog/internal/registry"
	"github.com/northdeals/catalog/internal/repository"
)

// Facet is one selectable filter value with its product count.
type Facet struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// FacetSnapshot is one immutable facet computation.
type FacetSnapshot struct {
	Sources    []Facet   `json:"sources"`
	Stores     []Facet   `json:"stores"`
	Regions    []Facet   `json:"regions"`
	Brands     []Facet   `json:"brands"`
	Categories []Facet   `json:"categories"`
	CachedAt   time.Time `json:"cached_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// StatsSnapshot is one immutable headline-stats computation.
type StatsSnapshot struct {
	TotalProducts int       `json:"total_products"`
	TotalActive   int       `json:"total_active"`
	AddedToday    int       `json:"added_today"`
	OnSale        int       `json:"on_sale"`
	CachedAt      time.Time `json:"cached_at"`
	TTLSeconds    int       `json:"ttl_seconds"`
}

// Aggregator owns the only long-lived mutable state in the service: two
// atomically swapped snapshots with independent TTLs.
type Aggregator struct {
	reader   repository.SourceReader
	reg      *registry.Registry
	facetTTL time.Duration
	statsTTL time.Duration
	hardCap  int

	facets atomic.Pointer[FacetSnapshot]
	stats  atomic.Pointer[StatsSnapshot]

	facetRefreshing atomic.Bool
	statsRefreshing atomic.Bool

	now func() time.Time
}

func NewAggregator(reader repository.SourceReader, reg *registry.Registry, facetTTL, statsTTL time.Duration) *Aggregator {
	if facetTTL <= 0 {
		facetTTL = 5 * time.Minute
	}
	if statsTTL <= 0 {
		statsTTL = time.Minute
	}
	return &Aggregator{
		reader:   reader,
		reg:      reg,
		facetTTL: facetTTL,
		statsTTL: statsTTL,
		hardCap:  1,
		now:      time.Now,
	}
}

// Run refreshes both snapshots on their TTL intervals until ctx is done.
// Intended to be started once from main.
func (a *Aggregator) Run(ctx context.Context) {
	a.refreshFacets(ctx)
	a.refreshStats(ctx)

	facetTick := time.NewTicker(a.facetTTL)
	statsTick := time.NewTicker(a.statsTTL)
	defer facetTick.Stop()
	defer statsTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-facetTick.C:
			a.refreshFacets(ctx)
		case <-statsTick.C:
			a.refreshStats(ctx)
		}
	}
}

// Facets returns the current facet snapshot, refreshing synchronously when
// none exists yet or when force is set (operator cache bypass). A refresh
// already in flight is never doubled; callers get the stale snapshot
// instead.
func (a *Aggregator) Facets(ctx context.Context, force bool) *FacetSnapshot {
	snap := a.facets.Load()
	if snap != nil && !force && a.now().Sub(snap.CachedAt) < a.facetTTL {
		return snap
	}
	if a.refreshFacets(ctx) {
		return a.facets.Load()
	}
	return snap
}

// Stats returns the current stats snapshot, refreshing when expired.
func (a *Aggregator) Stats(ctx context.Context, force bool) *StatsSnapshot {
	snap := a.stats.Load()
	if snap != nil && !force && a.now().Sub(snap.CachedAt) < a.statsTTL {
		return snap
	}
	if a.refreshStats(ctx) {
		return a.stats.Load()
	}
	return snap
}

// refreshFacets recomputes the facet snapshot; reports false when another
// refresh holds the guard.
func (a *Aggregator) refreshFacets(ctx context.Context) bool {
	if !a.facetRefreshing.CompareAndSwap(false, true) {
		return false
	}
	defer a.facetRefreshing.Store(false)

	start := a.now()
	snap := &FacetSnapshot{
		CachedAt:   start,
		TTLSeconds: int(a.facetTTL.Seconds()),
	}

	stores := newCounter()
	regions := newCounter()
	brands := newCounter()
	categories := newCounter()

	activePlans := a.countPlans(domain.FilterSpec{ActiveOnly: true})
	activePreds := make(map[string][]planner.Predicate, len(activePlans))
	for _, plan := range activePlans {
		activePreds[plan.SourceKey] = plan.Predicates
		desc, _ := a.reg.Lookup(plan.SourceKey)
		count, err := a.reader.Count(ctx, plan)
		if err != nil {
			log.Printf("[CACHE] facet count failed for %s: %v", plan.SourceKey, err)
			continue
		}
		if count > 0 {
			snap.Sources = append(snap.Sources, Facet{Value: desc.Key, Label: desc.Label, Count: count})
		}
		if desc.Fields.Store == "" && desc.FixedStore != "" {
			stores.add(desc.FixedStore, count)
		}
		if desc.Fields.Region == "" && desc.FixedRegion != "" {
			regions.add(desc.FixedRegion, count)
		}
	}

	for _, desc := range a.reg.List() {
		for column, counter := range map[string]*counter{
			desc.Fields.Store:    stores,
			desc.Fields.Region:   regions,
			desc.Fields.Brand:    brands,
			desc.Fields.Category: categories,
		} {
			if column == "" {
				continue
			}
			// Column scans count the same active population the source
			// counts above were computed over.
			counts, err := a.reader.FacetCounts(ctx, desc, column, activePreds[desc.Key])
			if err != nil {
				log.Printf("[CACHE] facet scan failed for %s.%s: %v", desc.Key, column, err)
				continue
			}
			for _, fc := range counts {
				counter.add(fc.Value, fc.Count)
			}
		}
	}

	snap.Stores = stores.facets()
	snap.Regions = regions.facets()
	snap.Brands = brands.facets()
	snap.Categories = categories.facets()

	a.facets.Store(snap)
	log.Printf("[CACHE] facets refreshed in %s (%d sources)", a.now().Sub(start), len(snap.Sources))
	return true
}

func (a *Aggregator) refreshStats(ctx context.Context) bool {
	if !a.statsRefreshing.CompareAndSwap(false, true) {
		return false
	}
	defer a.statsRefreshing.Store(false)

	midnight := a.now().UTC().Truncate(24 * time.Hour)
	snap := &StatsSnapshot{
		TotalProducts: a.sumCounts(ctx, domain.FilterSpec{}),
		TotalActive:   a.sumCounts(ctx, domain.FilterSpec{ActiveOnly: true}),
		AddedToday:    a.sumCounts(ctx, domain.FilterSpec{DateFrom: &midnight}),
		OnSale:        a.sumCounts(ctx, domain.FilterSpec{OnSaleOnly: true}),
		CachedAt:      a.now(),
		TTLSeconds:    int(a.statsTTL.Seconds()),
	}
	a.stats.Store(snap)
	return true
}

// sumCounts adds every source's count for a minimal filter. Failing sources
// contribute zero; the snapshot still lands.
func (a *Aggregator) sumCounts(ctx context.Context, spec domain.FilterSpec) int {
	total := 0
	for _, plan := range a.countPlans(spec) {
		count, err := a.reader.Count(ctx, plan)
		if err != nil {
			log.Printf("[CACHE] stats count failed for %s: %v", plan.SourceKey, err)
			continue
		}
		total += count
	}
	return total
}

func (a *Aggregator) countPlans(spec domain.FilterSpec) []planner.QueryPlan {
	spec.Page = 1
	spec.PerPage = 1
	spec.SortBy = domain.SortKeyLastSeenAt
	spec.SortOrder = domain.SortDirectionDesc
	return planner.Plan(a.reg, spec, a.hardCap)
}

// counter merges facet counts across sources for one dimension.
type counter struct {
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(value string, count int) {
	value = strings.TrimSpace(value)
	if value == "" || count <= 0 {
		return
	}
	c.counts[value] += count
}

func (c *counter) facets() []Facet {
	out := make([]Facet, 0, len(c.counts))
	for value, count := range c.counts {
		out = append(out, Facet{Value: value, Label: value, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
