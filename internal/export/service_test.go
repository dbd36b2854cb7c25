package export

import (
	"context"
	"testing"
	"time"

	"github.com/northdeals/catalog/internal/catalog"
	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/federation"
	"github.com/northdeals/catalog/internal/options"
	"github.com/northdeals/catalog/internal/planner"
	"github.com/northdeals/catalog/internal/registry"
	"github.com/northdeals/catalog/internal/repository"
)

type mockReader struct {
	rows []map[string]any
}

func (m *mockReader) Fetch(ctx context.Context, plan planner.QueryPlan) ([]map[string]any, error) {
	return m.rows, nil
}

func (m *mockReader) Count(ctx context.Context, plan planner.QueryPlan) (int, error) {
	return len(m.rows), nil
}

func (m *mockReader) GetByNativeID(ctx context.Context, desc registry.SourceDescriptor, nativeID string) (map[string]any, error) {
	return nil, domain.ErrNotFound
}

func (m *mockReader) FacetCounts(ctx context.Context, desc registry.SourceDescriptor, column string, preds []planner.Predicate) ([]repository.FacetCount, error) {
	return nil, nil
}

type mockHistories struct{}

func (mockHistories) History(ctx context.Context, desc registry.SourceDescriptor, nativeID string) ([]domain.PriceHistoryPoint, error) {
	return nil, nil
}

func (mockHistories) HistoryBatch(ctx context.Context, desc registry.SourceDescriptor, nativeIDs []string) (map[string][]domain.PriceHistoryPoint, error) {
	return nil, nil
}

func (mockHistories) MostTracked(ctx context.Context, desc registry.SourceDescriptor, limit int) ([]repository.TrackedCount, error) {
	return nil, nil
}

func (mockHistories) BiggestDrops(ctx context.Context, desc registry.SourceDescriptor, limit int) ([]repository.DropStat, error) {
	return nil, nil
}

func (mockHistories) RecentlyObserved(ctx context.Context, desc registry.SourceDescriptor, since time.Time, limit int) ([]string, error) {
	return nil, nil
}

type mockPinger struct{}

func (mockPinger) Ping(ctx context.Context) error { return nil }

func TestBuild_WritesHeaderAndRows(t *testing.T) {
	descs := []registry.SourceDescriptor{{
		Key: "alpha", Label: "Alpha", Table: "alpha_deals",
		Fields: registry.FieldMap{
			NativeID: "id", Title: "title", CurrentPrice: "price", FirstSeen: "created_at",
		},
	}}
	reg, err := registry.New(descs)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	reader := &mockReader{rows: []map[string]any{
		{"id": "1", "title": "Boots", "price": 49.99, "created_at": time.Now()},
		{"id": "2", "title": "Jacket", "price": 120.0, "created_at": time.Now()},
	}}
	executor := federation.NewExecutor(reader, reg, time.Second)
	aggregator := options.NewAggregator(reader, reg, time.Minute, time.Minute)
	catalogSvc := catalog.NewService(reg, executor, reader, mockHistories{}, aggregator, mockPinger{}, 500)

	svc := NewService(catalogSvc, 100)
	file, err := svc.Build(context.Background(), domain.FilterSpec{
		Page: 1, PerPage: 24,
		SortBy: domain.SortKeyCurrentPrice, SortOrder: domain.SortDirectionAsc,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer file.Close()

	rows, err := file.GetRows(sheetName)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("want header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][1] != "Title" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "alpha_1" || rows[1][1] != "Boots" {
		t.Fatalf("first data row = %v", rows[1])
	}
}

func TestBuild_HonorsRowLimit(t *testing.T) {
	descs := []registry.SourceDescriptor{{
		Key: "alpha", Label: "Alpha", Table: "alpha_deals",
		Fields: registry.FieldMap{
			NativeID: "id", Title: "title", CurrentPrice: "price", FirstSeen: "created_at",
		},
	}}
	reg, err := registry.New(descs)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	var raw []map[string]any
	for i := 0; i < 10; i++ {
		raw = append(raw, map[string]any{
			"id": string(rune('a' + i)), "title": "Item", "price": float64(i + 1), "created_at": time.Now(),
		})
	}
	reader := &mockReader{rows: raw}
	executor := federation.NewExecutor(reader, reg, time.Second)
	aggregator := options.NewAggregator(reader, reg, time.Minute, time.Minute)
	catalogSvc := catalog.NewService(reg, executor, reader, mockHistories{}, aggregator, mockPinger{}, 500)

	svc := NewService(catalogSvc, 4)
	file, err := svc.Build(context.Background(), domain.FilterSpec{
		Page: 1, PerPage: 24,
		SortBy: domain.SortKeyCurrentPrice, SortOrder: domain.SortDirectionAsc,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer file.Close()

	rows, err := file.GetRows(sheetName)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("want header plus 4 capped rows, got %d", len(rows))
	}
}
