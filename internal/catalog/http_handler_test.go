package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/federation"
	"github.com/northdeals/catalog/internal/options"
	"github.com/northdeals/catalog/internal/planner"
	"github.com/northdeals/catalog/internal/registry"
	"github.com/northdeals/catalog/internal/repository"
)

type mockReader struct {
	rows map[string][]map[string]any
	errs map[string]error
}

func (m *mockReader) Fetch(ctx context.Context, plan planner.QueryPlan) ([]map[string]any, error) {
	if err := m.errs[plan.SourceKey]; err != nil {
		return nil, err
	}
	return m.rows[plan.SourceKey], nil
}

func (m *mockReader) Count(ctx context.Context, plan planner.QueryPlan) (int, error) {
	if err := m.errs[plan.SourceKey]; err != nil {
		return 0, err
	}
	return len(m.rows[plan.SourceKey]), nil
}

func (m *mockReader) GetByNativeID(ctx context.Context, desc registry.SourceDescriptor, nativeID string) (map[string]any, error) {
	for _, row := range m.rows[desc.Key] {
		if id, _ := row["id"].(string); id == nativeID {
			return row, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockReader) FacetCounts(ctx context.Context, desc registry.SourceDescriptor, column string, preds []planner.Predicate) ([]repository.FacetCount, error) {
	return nil, nil
}

type mockHistories struct {
	points     map[string][]domain.PriceHistoryPoint
	historyErr error
}

func (m *mockHistories) History(ctx context.Context, desc registry.SourceDescriptor, nativeID string) ([]domain.PriceHistoryPoint, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.points[nativeID], nil
}

func (m *mockHistories) HistoryBatch(ctx context.Context, desc registry.SourceDescriptor, nativeIDs []string) (map[string][]domain.PriceHistoryPoint, error) {
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

type mockPinger struct{ err error }

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	descs := []registry.SourceDescriptor{
		{
			Key: "alpha", Label: "Alpha", Table: "alpha_deals",
			Fields: registry.FieldMap{
				NativeID: "id", Title: "title", CurrentPrice: "price",
				OriginalPrice: "original_price", FirstSeen: "created_at",
			},
			HistoryTable: "alpha_history",
			HistoryFK:    "deal_id",
		},
		{
			Key: "beta", Label: "Beta", Table: "beta_deals",
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

func testHandler(t *testing.T, reader *mockReader, histories *mockHistories, pinger *mockPinger) *Handler {
	t.Helper()
	reg := testRegistry(t)
	executor := federation.NewExecutor(reader, reg, time.Second)
	aggregator := options.NewAggregator(reader, reg, time.Minute, time.Minute)
	service := NewService(reg, executor, reader, histories, aggregator, pinger, 500)
	return NewHTTPHandler(service, Limits{DefaultPerPage: 24, MaxPerPage: 200})
}

func testMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", h.List)
	mux.HandleFunc("GET /api/products/{id}", h.Detail)
	mux.HandleFunc("GET /api/products/{id}/history", h.History)
	mux.HandleFunc("GET /api/health", h.Health)
	return mux
}

func alphaRow(id string, price float64, created time.Time) map[string]any {
	return map[string]any{"id": id, "title": "Item " + id, "price": price, "created_at": created}
}

func TestParseFilterSpec_Defaults(t *testing.T) {
	spec, err := ParseFilterSpec(url.Values{}, Limits{DefaultPerPage: 24, MaxPerPage: 200})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.Page != 1 || spec.PerPage != 24 {
		t.Fatalf("pagination defaults = %d/%d", spec.Page, spec.PerPage)
	}
	if spec.SortBy != domain.SortKeyLastSeenAt || spec.SortOrder != domain.SortDirectionDesc {
		t.Fatalf("sort defaults = %s/%s", spec.SortBy, spec.SortOrder)
	}
}

func TestParseFilterSpec_ClampsAndSets(t *testing.T) {
	q := url.Values{
		"page":         {"0"},
		"per_page":     {"10000"},
		"stores":       {"Amazon,Leon's", "Reebok"},
		"min_discount": {"150"},
		"sort_by":      {"current_price"},
		"sort_order":   {"asc"},
	}
	spec, err := ParseFilterSpec(q, Limits{DefaultPerPage: 24, MaxPerPage: 200})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.Page != 1 {
		t.Fatalf("page clamped to %d", spec.Page)
	}
	if spec.PerPage != 200 {
		t.Fatalf("per_page clamped to %d", spec.PerPage)
	}
	if len(spec.Stores) != 3 {
		t.Fatalf("stores = %v", spec.Stores)
	}
	if spec.MinDiscount == nil || *spec.MinDiscount != 100 {
		t.Fatalf("min_discount = %v", spec.MinDiscount)
	}
	if spec.SortBy != domain.SortKeyCurrentPrice || spec.SortOrder != domain.SortDirectionAsc {
		t.Fatalf("sort = %s/%s", spec.SortBy, spec.SortOrder)
	}
}

func TestParseFilterSpec_RejectsNonNumericPrice(t *testing.T) {
	_, err := ParseFilterSpec(url.Values{"min_price": {"cheap"}}, Limits{DefaultPerPage: 24, MaxPerPage: 200})
	var malformed *domain.MalformedFilterError
	if !errors.As(err, &malformed) || malformed.Param != "min_price" {
		t.Fatalf("err = %v", err)
	}
}

func TestParseFilterSpec_ExplicitDatesWinOverDays(t *testing.T) {
	q := url.Values{"days": {"7"}, "date_from": {"2025-06-01"}}
	spec, err := ParseFilterSpec(q, Limits{DefaultPerPage: 24, MaxPerPage: 200})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if spec.DateFrom == nil || !spec.DateFrom.Equal(want) {
		t.Fatalf("date_from = %v, want %v", spec.DateFrom, want)
	}

	spec, err = ParseFilterSpec(url.Values{"days": {"7"}}, Limits{DefaultPerPage: 24, MaxPerPage: 200})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.DateFrom == nil {
		t.Fatalf("days alone should set a window start")
	}
}

func TestParseFilterSpec_RejectsBadDate(t *testing.T) {
	_, err := ParseFilterSpec(url.Values{"date_to": {"last tuesday"}}, Limits{DefaultPerPage: 24, MaxPerPage: 200})
	var malformed *domain.MalformedFilterError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v", err)
	}
}

func TestList_MergesSourcesAndReportsFailures(t *testing.T) {
	now := time.Now().UTC()
	reader := &mockReader{
		rows: map[string][]map[string]any{
			"alpha": {alphaRow("1", 10, now.Add(-time.Hour)), alphaRow("2", 20, now)},
		},
		errs: map[string]error{"beta": errors.New("connection refused")},
	}
	h := testHandler(t, reader, &mockHistories{}, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	rec := httptest.NewRecorder()
	testMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Products      []domain.CanonicalProduct `json:"products"`
		Total         int                       `json:"total"`
		FailedSources []string                  `json:"failed_sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Products) != 2 {
		t.Fatalf("total=%d products=%d", resp.Total, len(resp.Products))
	}
	if resp.Products[0].ID != "alpha_2" {
		t.Fatalf("newest first, got %s", resp.Products[0].ID)
	}
	if len(resp.FailedSources) != 1 || resp.FailedSources[0] != "beta" {
		t.Fatalf("failed sources = %v", resp.FailedSources)
	}
}

func TestList_MalformedFilterRejected(t *testing.T) {
	h := testHandler(t, &mockReader{}, &mockHistories{}, &mockPinger{})
	req := httptest.NewRequest(http.MethodGet, "/api/products?min_price=abc", nil)
	rec := httptest.NewRecorder()
	testMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "malformed_filter" {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestDetail_StitchesHistory(t *testing.T) {
	now := time.Now().UTC()
	reader := &mockReader{rows: map[string][]map[string]any{
		"alpha": {alphaRow("1", 10, now)},
	}}
	histories := &mockHistories{points: map[string][]domain.PriceHistoryPoint{
		"1": {{Price: 15, ScrapedAt: now.Add(-24 * time.Hour)}, {Price: 10, ScrapedAt: now}},
	}}
	h := testHandler(t, reader, histories, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/products/alpha_1", nil)
	rec := httptest.NewRecorder()
	testMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var detail Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.ID != "alpha_1" || len(detail.PriceHistory) != 2 {
		t.Fatalf("detail = %s with %d points", detail.ID, len(detail.PriceHistory))
	}
}

func TestDetail_SynthesizesWhenNoTableHistory(t *testing.T) {
	now := time.Now().UTC()
	row := alphaRow("1", 60, now)
	row["original_price"] = 100.0
	reader := &mockReader{rows: map[string][]map[string]any{"alpha": {row}}}
	h := testHandler(t, reader, &mockHistories{}, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/products/alpha_1", nil)
	rec := httptest.NewRecorder()
	testMux(h).ServeHTTP(rec, req)

	var detail Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(detail.PriceHistory) != 2 {
		t.Fatalf("synthesized history should have two points, got %d", len(detail.PriceHistory))
	}
	if detail.PriceHistory[0].Price != 100 || detail.PriceHistory[1].Price != 60 {
		t.Fatalf("synthesized prices = %+v", detail.PriceHistory)
	}
}

// A failing history table degrades the detail to a synthesized history
// instead of failing the request.
func TestDetail_HistoryReadFailureDegrades(t *testing.T) {
	now := time.Now().UTC()
	row := alphaRow("1", 60, now)
	row["original_price"] = 100.0
	reader := &mockReader{rows: map[string][]map[string]any{"alpha": {row}}}
	histories := &mockHistories{historyErr: errors.New("relation alpha_history does not exist")}
	h := testHandler(t, reader, histories, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/products/alpha_1", nil)
	rec := httptest.NewRecorder()
	testMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var detail Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(detail.PriceHistory) != 2 {
		t.Fatalf("degraded detail should synthesize two points, got %d", len(detail.PriceHistory))
	}
}

func TestDetail_NotFound(t *testing.T) {
	h := testHandler(t, &mockReader{}, &mockHistories{}, &mockPinger{})

	for _, id := range []string{"alpha_999", "unknown_1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/products/"+id, nil)
		rec := httptest.NewRecorder()
		testMux(h).ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("id %s: status = %d", id, rec.Code)
		}
	}
}

func TestHistory_IncludesStats(t *testing.T) {
	now := time.Now().UTC()
	reader := &mockReader{rows: map[string][]map[string]any{
		"alpha": {alphaRow("1", 10, now)},
	}}
	histories := &mockHistories{points: map[string][]domain.PriceHistoryPoint{
		"1": {{Price: 20, ScrapedAt: now.Add(-48 * time.Hour)}, {Price: 10, ScrapedAt: now}},
	}}
	h := testHandler(t, reader, histories, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/products/alpha_1/history", nil)
	rec := httptest.NewRecorder()
	testMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		History []domain.PriceHistoryPoint `json:"history"`
		Stats   *struct {
			LowestPrice    float64 `json:"lowest_price"`
			PriceChangePct float64 `json:"price_change_pct"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.History) != 2 || resp.Stats == nil {
		t.Fatalf("history=%d stats=%v", len(resp.History), resp.Stats)
	}
	if resp.Stats.LowestPrice != 10 || resp.Stats.PriceChangePct != -50 {
		t.Fatalf("stats = %+v", resp.Stats)
	}
}

func TestHealth(t *testing.T) {
	reader := &mockReader{rows: map[string][]map[string]any{
		"alpha": {alphaRow("1", 10, time.Now())},
	}}
	h := testHandler(t, reader, &mockHistories{}, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	testMux(h).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	h = testHandler(t, reader, &mockHistories{}, &mockPinger{err: errors.New("down")})
	rec = httptest.NewRecorder()
	testMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
