package repository

import (
	"context"
	"time"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/planner"
	"github.com/northdeals/catalog/internal/registry"
)

// SourceReader executes native queries for one plan. It is the boundary the
// fan-out executor and the options aggregator mock in tests.
type SourceReader interface {
	Fetch(ctx context.Context, plan planner.QueryPlan) ([]map[string]any, error)
	Count(ctx context.Context, plan planner.QueryPlan) (int, error)
	GetByNativeID(ctx context.Context, desc registry.SourceDescriptor, nativeID string) (map[string]any, error)
	FacetCounts(ctx context.Context, desc registry.SourceDescriptor, column string, preds []planner.Predicate) ([]FacetCount, error)
}

// HistoryReader reads dedicated price-history tables for sources that have
// one.
type HistoryReader interface {
	History(ctx context.Context, desc registry.SourceDescriptor, nativeID string) ([]domain.PriceHistoryPoint, error)
	HistoryBatch(ctx context.Context, desc registry.SourceDescriptor, nativeIDs []string) (map[string][]domain.PriceHistoryPoint, error)
	MostTracked(ctx context.Context, desc registry.SourceDescriptor, limit int) ([]TrackedCount, error)
	BiggestDrops(ctx context.Context, desc registry.SourceDescriptor, limit int) ([]DropStat, error)
	RecentlyObserved(ctx context.Context, desc registry.SourceDescriptor, since time.Time, limit int) ([]string, error)
}

// FacetCount is one distinct value with its row count.
type FacetCount struct {
	Value string
	Count int
}

// TrackedCount is a product's history point count.
type TrackedCount struct {
	NativeID string
	Points   int
}

// DropStat summarizes a product's all-time price extremes.
type DropStat struct {
	NativeID string
	Highest  float64
	Lowest   float64
}
