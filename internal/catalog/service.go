// Package catalog orchestrates the federation pipeline behind the public
// REST surface: listings, detail lookups, price history, and the tracker
// feed.
package catalog

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/federation"
	"github.com/northdeals/catalog/internal/history"
	"github.com/northdeals/catalog/internal/historyloader"
	"github.com/northdeals/catalog/internal/normalize"
	"github.com/northdeals/catalog/internal/options"
	"github.com/northdeals/catalog/internal/planner"
	"github.com/northdeals/catalog/internal/registry"
	"github.com/northdeals/catalog/internal/repository"
)

// Pinger reports datastore liveness for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service wires the planner, executor, merger, and history stitcher into the
// operations the HTTP layer exposes.
type Service struct {
	reg       *registry.Registry
	executor  *federation.Executor
	reader    repository.SourceReader
	histories repository.HistoryReader
	options   *options.Aggregator
	pinger    Pinger

	hardCap     int
	trackerScan int
}

func NewService(
	reg *registry.Registry,
	executor *federation.Executor,
	reader repository.SourceReader,
	histories repository.HistoryReader,
	opts *options.Aggregator,
	pinger Pinger,
	hardCap int,
) *Service {
	if hardCap <= 0 {
		hardCap = 500
	}
	return &Service{
		reg:         reg,
		executor:    executor,
		reader:      reader,
		histories:   histories,
		options:     opts,
		pinger:      pinger,
		hardCap:     hardCap,
		trackerScan: 500,
	}
}

// ListResult is one listing page plus its degradation metadata.
type ListResult struct {
	Products      []domain.CanonicalProduct
	Total         int
	Page          int
	PerPage       int
	TotalPages    int
	FailedSources []string
	SkippedRows   int
	FetchCapped   bool
	QueryTimeMs   int64
}

// List plans, fans out, merges, and paginates one filter request. Per-source
// failures degrade the result; they never fail it.
func (s *Service) List(ctx context.Context, spec domain.FilterSpec) ListResult {
	start := time.Now()

	plans := planner.Plan(s.reg, spec, s.hardCap)
	results := s.executor.Execute(ctx, plans)
	page := federation.Merge(results, spec)

	totalPages := 1
	if page.Total > 0 {
		totalPages = int(math.Ceil(float64(page.Total) / float64(spec.PerPage)))
	}

	return ListResult{
		Products:      page.Products,
		Total:         page.Total,
		Page:          spec.Page,
		PerPage:       spec.PerPage,
		TotalPages:    totalPages,
		FailedSources: page.FailedSources,
		SkippedRows:   page.SkippedRows,
		FetchCapped:   page.Capped,
		QueryTimeMs:   time.Since(start).Milliseconds(),
	}
}

// Detail is a single product with its description and stitched history.
type Detail struct {
	domain.CanonicalProduct
	Description  *string                   `json:"description,omitempty"`
	PriceHistory []domain.PriceHistoryPoint `json:"price_history"`
}

// Get resolves a canonical id to its source, fetches the native row, and
// stitches the price history.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	desc, product, raw, err := s.load(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	points, err := s.tableHistory(ctx, desc, product)
	if err != nil {
		// A broken history table must not fail the detail; the stitcher
		// synthesizes from the product's own prices.
		log.Printf("[CATALOG] history read for %s failed: %v", product.ID, err)
		points = nil
	}

	detail := Detail{
		CanonicalProduct: product,
		PriceHistory:     history.Stitch(product, points),
	}
	if desc.Fields.Description != "" {
		if v, ok := raw[desc.Fields.Description].(string); ok && v != "" {
			detail.Description = &v
		}
	}
	return detail, nil
}

// HistoryResult is a product's full history plus computed stats.
type HistoryResult struct {
	History []domain.PriceHistoryPoint `json:"history"`
	Stats   *history.Stats             `json:"stats"`
}

// History returns the stitched history with summary stats.
func (s *Service) History(ctx context.Context, id string) (HistoryResult, error) {
	desc, product, _, err := s.load(ctx, id)
	if err != nil {
		return HistoryResult{}, err
	}
	points, err := s.tableHistory(ctx, desc, product)
	if err != nil {
		log.Printf("[CATALOG] history read for %s failed: %v", product.ID, err)
		points = nil
	}
	stitched := history.Stitch(product, points)
	return HistoryResult{History: stitched, Stats: history.ComputeStats(stitched)}, nil
}

// load resolves an id and normalizes its native row.
func (s *Service) load(ctx context.Context, id string) (registry.SourceDescriptor, domain.CanonicalProduct, map[string]any, error) {
	sourceKey, nativeID, err := s.reg.ResolveID(id)
	if err != nil {
		return registry.SourceDescriptor{}, domain.CanonicalProduct{}, nil, err
	}
	desc, ok := s.reg.Lookup(sourceKey)
	if !ok {
		return registry.SourceDescriptor{}, domain.CanonicalProduct{}, nil, domain.ErrUnresolvableID
	}
	raw, err := s.reader.GetByNativeID(ctx, desc, nativeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return registry.SourceDescriptor{}, domain.CanonicalProduct{}, nil, domain.ErrNotFound
		}
		return registry.SourceDescriptor{}, domain.CanonicalProduct{}, nil, fmt.Errorf("detail fetch: %w", err)
	}
	product, err := normalize.Row(desc, raw)
	if err != nil {
		return registry.SourceDescriptor{}, domain.CanonicalProduct{}, nil, domain.ErrNotFound
	}
	return desc, product, raw, nil
}

func (s *Service) tableHistory(ctx context.Context, desc registry.SourceDescriptor, p domain.CanonicalProduct) ([]domain.PriceHistoryPoint, error) {
	if !desc.HasHistory() {
		return nil, nil
	}
	_, nativeID, err := s.reg.ResolveID(p.ID)
	if err != nil {
		return nil, err
	}
	return s.histories.History(ctx, desc, nativeID)
}

// Filters returns the cached facet snapshot.
func (s *Service) Filters(ctx context.Context, force bool) *options.FacetSnapshot {
	return s.options.Facets(ctx, force)
}

// Stats returns the cached headline stats snapshot.
func (s *Service) Stats(ctx context.Context, force bool) *options.StatsSnapshot {
	return s.options.Stats(ctx, force)
}

// TrackerEntry is one product in a tracker feed list.
type TrackerEntry struct {
	Product   domain.CanonicalProduct `json:"product"`
	Points    int                     `json:"points,omitempty"`
	DropPct   *float64                `json:"drop_pct,omitempty"`
	DroppedAt *time.Time              `json:"dropped_at,omitempty"`
}

// TrackerResult is the price-tracker feed: three ranked lists.
type TrackerResult struct {
	RecentlyDropped []TrackerEntry `json:"recently_dropped"`
	MostTracked     []TrackerEntry `json:"most_tracked"`
	BiggestDrops    []TrackerEntry `json:"biggest_drops"`
}

// Tracker builds the price-tracker feed over every source with a history
// table. Per-source failures degrade the lists rather than failing the feed.
func (s *Service) Tracker(ctx context.Context, days, limit int) TrackerResult {
	var result TrackerResult
	loader := historyloader.New(s.reg, s.histories)
	since := time.Now().UTC().AddDate(0, 0, -days)

	for _, desc := range s.reg.List() {
		if !desc.HasHistory() {
			continue
		}
		result.MostTracked = append(result.MostTracked, s.mostTracked(ctx, desc, limit)...)
		result.BiggestDrops = append(result.BiggestDrops, s.biggestDrops(ctx, desc, limit)...)
		result.RecentlyDropped = append(result.RecentlyDropped, s.recentlyDropped(ctx, desc, loader, since)...)
	}

	sort.Slice(result.MostTracked, func(i, j int) bool {
		return result.MostTracked[i].Points > result.MostTracked[j].Points
	})
	sort.Slice(result.BiggestDrops, func(i, j int) bool {
		return derefPct(result.BiggestDrops[i].DropPct) > derefPct(result.BiggestDrops[j].DropPct)
	})
	sort.Slice(result.RecentlyDropped, func(i, j int) bool {
		a, b := result.RecentlyDropped[i].DroppedAt, result.RecentlyDropped[j].DroppedAt
		return a != nil && (b == nil || a.After(*b))
	})

	result.MostTracked = capEntries(result.MostTracked, limit)
	result.BiggestDrops = capEntries(result.BiggestDrops, limit)
	result.RecentlyDropped = capEntries(result.RecentlyDropped, limit)
	return result
}

func (s *Service) mostTracked(ctx context.Context, desc registry.SourceDescriptor, limit int) []TrackerEntry {
	counts, err := s.histories.MostTracked(ctx, desc, limit)
	if err != nil {
		return nil
	}
	var out []TrackerEntry
	for _, tc := range counts {
		product, ok := s.lookupProduct(ctx, desc, tc.NativeID)
		if !ok {
			continue
		}
		out = append(out, TrackerEntry{Product: product, Points: tc.Points})
	}
	return out
}

func (s *Service) biggestDrops(ctx context.Context, desc registry.SourceDescriptor, limit int) []TrackerEntry {
	stats, err := s.histories.BiggestDrops(ctx, desc, limit)
	if err != nil {
		return nil
	}
	var out []TrackerEntry
	for _, ds := range stats {
		if ds.Highest <= 0 {
			continue
		}
		product, ok := s.lookupProduct(ctx, desc, ds.NativeID)
		if !ok {
			continue
		}
		pct := math.Round((ds.Highest-ds.Lowest)/ds.Highest*1000) / 10
		out = append(out, TrackerEntry{Product: product, DropPct: &pct})
	}
	return out
}

// recentlyDropped finds products whose history shows a price decrease inside
// the window, most recent decrease first. Histories load through the batch
// loader so the scan issues one query per source.
func (s *Service) recentlyDropped(ctx context.Context, desc registry.SourceDescriptor, loader *historyloader.HistoryLoader, since time.Time) []TrackerEntry {
	ids, err := s.histories.RecentlyObserved(ctx, desc, since, s.trackerScan)
	if err != nil {
		return nil
	}
	// Queue every id before resolving any so the reads coalesce into one
	// batch query for the source.
	thunks := make([]historyloader.Thunk, len(ids))
	for i, nativeID := range ids {
		thunks[i] = loader.LoadThunk(ctx, registry.EncodeID(desc.Key, nativeID))
	}

	var out []TrackerEntry
	for i, nativeID := range ids {
		points, err := thunks[i]()
		if err != nil || len(points) < 2 {
			continue
		}
		droppedAt := lastDrop(points, since)
		if droppedAt == nil {
			continue
		}
		product, ok := s.lookupProduct(ctx, desc, nativeID)
		if !ok {
			continue
		}
		out = append(out, TrackerEntry{Product: product, DroppedAt: droppedAt})
	}
	return out
}

// lastDrop returns the time of the most recent price decrease at or after
// the cutoff, or nil when none happened.
func lastDrop(points []domain.PriceHistoryPoint, since time.Time) *time.Time {
	for i := len(points) - 1; i > 0; i-- {
		if points[i].ScrapedAt.Before(since) {
			return nil
		}
		if points[i].Price < points[i-1].Price {
			t := points[i].ScrapedAt
			return &t
		}
	}
	return nil
}

func (s *Service) lookupProduct(ctx context.Context, desc registry.SourceDescriptor, nativeID string) (domain.CanonicalProduct, bool) {
	raw, err := s.reader.GetByNativeID(ctx, desc, nativeID)
	if err != nil {
		return domain.CanonicalProduct{}, false
	}
	product, err := normalize.Row(desc, raw)
	if err != nil {
		return domain.CanonicalProduct{}, false
	}
	return product, true
}

func capEntries(entries []TrackerEntry, limit int) []TrackerEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

func derefPct(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// HealthResult reports datastore liveness and per-source active counts.
type HealthResult struct {
	Status       string         `json:"status"`
	Database     string         `json:"database"`
	SourceCounts map[string]int `json:"source_counts"`
	Total        int            `json:"active_products"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Health pings the datastore and counts active rows per source. Count
// failures leave a source at zero; only a dead datastore fails the check.
func (s *Service) Health(ctx context.Context) (HealthResult, error) {
	res := HealthResult{
		Status:       "ok",
		Database:     "connected",
		SourceCounts: map[string]int{},
		Timestamp:    time.Now().UTC(),
	}
	if err := s.pinger.Ping(ctx); err != nil {
		return HealthResult{Status: "error", Database: "disconnected", Timestamp: res.Timestamp}, err
	}
	spec := domain.FilterSpec{ActiveOnly: true, Page: 1, PerPage: 1, SortBy: domain.SortKeyLastSeenAt, SortOrder: domain.SortDirectionDesc}
	for _, plan := range planner.Plan(s.reg, spec, 1) {
		count, err := s.reader.Count(ctx, plan)
		if err != nil {
			continue
		}
		res.SourceCounts[plan.SourceKey] = count
		res.Total += count
	}
	return res, nil
}
