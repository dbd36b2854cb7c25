package historyloader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/registry"
	"github.com/northdeals/catalog/internal/repository"
)

type mockHistories struct {
	mu         sync.Mutex
	batchCalls int
	points     map[string][]domain.PriceHistoryPoint
}

func (m *mockHistories) History(ctx context.Context, desc registry.SourceDescriptor, nativeID string) ([]domain.PriceHistoryPoint, error) {
	return m.points[nativeID], nil
}

func (m *mockHistories) HistoryBatch(ctx context.Context, desc registry.SourceDescriptor, nativeIDs []string) (map[string][]domain.PriceHistoryPoint, error) {
	m.mu.Lock()
	m.batchCalls++
	m.mu.Unlock()
	out := make(map[string][]domain.PriceHistoryPoint)
	for _, id := range nativeIDs {
		out[id] = m.points[id]
	}
	return out, nil
}

func (m *mockHistories) MostTracked(ctx context.Context, desc registry.SourceDescriptor, limit int) ([]repository.TrackedCount, error) {
	return nil, nil
}

func (m *mockHistories) BiggestDrops(ctx context.Context, desc registry.SourceDescriptor, limit int) ([]repository.DropStat, error) {
	return nil, nil
}

func (m *mockHistories) RecentlyObserved(ctx context.Context, desc registry.SourceDescriptor, since time.Time, limit int) ([]string, error) {
	return nil, nil
}

func loaderRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	descs := []registry.SourceDescriptor{
		{
			Key: "retailer", Label: "Retailer", Table: "retailer_products",
			Fields: registry.FieldMap{
				NativeID: "id", Title: "title", CurrentPrice: "current_price", FirstSeen: "first_seen_at",
			},
			HistoryTable: "price_history",
			HistoryFK:    "retailer_product_id",
		},
		{
			Key: "leons", Label: "Leon's", Table: "leons_deals",
			Fields: registry.FieldMap{
				NativeID: "id", Title: "title", CurrentPrice: "price", FirstSeen: "created_at",
			},
		},
	}
	reg, err := registry.New(descs)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestLoad_BatchesPerSource(t *testing.T) {
	reg := loaderRegistry(t)
	histories := &mockHistories{points: map[string][]domain.PriceHistoryPoint{
		"1": {{Price: 10, ScrapedAt: time.Now()}},
		"2": {{Price: 20, ScrapedAt: time.Now()}, {Price: 15, ScrapedAt: time.Now()}},
	}}
	loader := New(reg, histories)

	var wg sync.WaitGroup
	results := make([][]domain.PriceHistoryPoint, 2)
	for i, id := range []string{"retailer_1", "retailer_2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			points, err := loader.Load(context.Background(), id)
			if err != nil {
				t.Errorf("load %s: %v", id, err)
				return
			}
			results[i] = points
		}(i, id)
	}
	wg.Wait()

	if len(results[0]) != 1 || len(results[1]) != 2 {
		t.Fatalf("point counts = %d/%d", len(results[0]), len(results[1]))
	}
	if histories.batchCalls != 1 {
		t.Fatalf("concurrent loads of one source should coalesce into one batch, got %d", histories.batchCalls)
	}
}

// Ids queued ahead of resolution coalesce into one batch even when the
// thunks resolve one at a time afterward.
func TestLoadThunk_QueuedIDsShareOneBatch(t *testing.T) {
	reg := loaderRegistry(t)
	histories := &mockHistories{points: map[string][]domain.PriceHistoryPoint{
		"1": {{Price: 10, ScrapedAt: time.Now()}},
		"2": {{Price: 20, ScrapedAt: time.Now()}},
		"3": {{Price: 30, ScrapedAt: time.Now()}},
	}}
	loader := New(reg, histories)

	ids := []string{"retailer_1", "retailer_2", "retailer_3"}
	thunks := make([]Thunk, len(ids))
	for i, id := range ids {
		thunks[i] = loader.LoadThunk(context.Background(), id)
	}
	for i, thunk := range thunks {
		points, err := thunk()
		if err != nil {
			t.Fatalf("resolve %s: %v", ids[i], err)
		}
		if len(points) != 1 {
			t.Fatalf("%s resolved %d points", ids[i], len(points))
		}
	}

	if histories.batchCalls != 1 {
		t.Fatalf("queued loads of one source should issue one batch, got %d", histories.batchCalls)
	}
}

func TestLoad_SourceWithoutHistoryTable(t *testing.T) {
	reg := loaderRegistry(t)
	loader := New(reg, &mockHistories{})

	points, err := loader.Load(context.Background(), "leons_7")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("sources without a history table resolve empty, got %v", points)
	}
}

func TestLoad_UnresolvableID(t *testing.T) {
	reg := loaderRegistry(t)
	loader := New(reg, &mockHistories{})

	if _, err := loader.Load(context.Background(), "nosuch_9"); !errors.Is(err, domain.ErrUnresolvableID) {
		t.Fatalf("err = %v, want ErrUnresolvableID", err)
	}
}
