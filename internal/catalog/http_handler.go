package catalog

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/northdeals/catalog/internal/domain"
)

// Limits caps and defaults the pagination parameters a request may ask for.
type Limits struct {
	DefaultPerPage int
	MaxPerPage     int
}

// Handler exposes the catalog service over REST. Routes are registered in
// cmd/server with method-qualified patterns.
type Handler struct {
	service *Service
	limits  Limits
}

func NewHTTPHandler(service *Service, limits Limits) *Handler {
	if limits.DefaultPerPage <= 0 {
		limits.DefaultPerPage = 24
	}
	if limits.MaxPerPage <= 0 {
		limits.MaxPerPage = 200
	}
	return &Handler{service: service, limits: limits}
}

// List handles GET /api/products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	spec, err := ParseFilterSpec(r.URL.Query(), h.limits)
	if err != nil {
		writeError(w, err)
		return
	}
	result := h.service.List(r.Context(), spec)
	writeJSON(w, http.StatusOK, listResponse{
		Products:       result.Products,
		Total:          result.Total,
		Page:           result.Page,
		PerPage:        result.PerPage,
		TotalPages:     result.TotalPages,
		AppliedFilters: appliedFilters(spec),
		FailedSources:  result.FailedSources,
		SkippedRows:    result.SkippedRows,
		FetchCapped:    result.FetchCapped,
		QueryTimeMs:    result.QueryTimeMs,
	})
}

// Detail handles GET /api/products/{id}.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// History handles GET /api/products/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Filters handles GET /api/filters. ?refresh=1 bypasses the cache TTL.
func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	snapshot := h.service.Filters(r.Context(), boolParam(r.URL.Query(), "refresh"))
	writeJSON(w, http.StatusOK, snapshot)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snapshot := h.service.Stats(r.Context(), boolParam(r.URL.Query(), "refresh"))
	writeJSON(w, http.StatusOK, snapshot)
}

// Tracker handles GET /api/tracker.
func (h *Handler) Tracker(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	days, err := intParam(query, "days", 7, 1, 90)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := intParam(query, "limit", 20, 1, 100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Tracker(r.Context(), days, limit))
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type listResponse struct {
	Products       []domain.CanonicalProduct `json:"products"`
	Total          int                       `json:"total"`
	Page           int                       `json:"page"`
	PerPage        int                       `json:"per_page"`
	TotalPages     int                       `json:"total_pages"`
	AppliedFilters map[string]any            `json:"applied_filters"`
	FailedSources  []string                  `json:"failed_sources,omitempty"`
	SkippedRows    int                       `json:"skipped_rows,omitempty"`
	FetchCapped    bool                      `json:"fetch_capped,omitempty"`
	QueryTimeMs    int64                     `json:"query_time_ms"`
}

// ParseFilterSpec maps listing query parameters onto a FilterSpec. Values
// with a safe default are clamped; values without one reject the request.
func ParseFilterSpec(query url.Values, limits Limits) (domain.FilterSpec, error) {
	spec := domain.FilterSpec{
		Sources:    csvParam(query, "sources"),
		Stores:     csvParam(query, "stores"),
		Regions:    csvParam(query, "regions"),
		Brands:     csvParam(query, "brands"),
		Categories: csvParam(query, "categories"),
		Search:     strings.TrimSpace(query.Get("search")),

		OnSaleOnly:   boolParam(query, "on_sale_only"),
		HasPriceDrop: boolParam(query, "has_price_drop"),
		ActiveOnly:   boolParam(query, "active_only"),

		SortBy:    domain.SortKeyLastSeenAt,
		SortOrder: domain.SortDirectionDesc,
	}

	if key := domain.SortKey(query.Get("sort_by")); domain.ValidSortKey(key) {
		spec.SortBy = key
	}
	if strings.EqualFold(query.Get("sort_order"), "asc") {
		spec.SortOrder = domain.SortDirectionAsc
	}

	var err error
	if spec.MinDiscount, err = floatParam(query, "min_discount", 0, 100); err != nil {
		return spec, err
	}
	if spec.MaxDiscount, err = floatParam(query, "max_discount", 0, 100); err != nil {
		return spec, err
	}
	if spec.MinPrice, err = floatParam(query, "min_price", 0, 0); err != nil {
		return spec, err
	}
	if spec.MaxPrice, err = floatParam(query, "max_price", 0, 0); err != nil {
		return spec, err
	}

	if spec.DateFrom, err = dateParam(query, "date_from"); err != nil {
		return spec, err
	}
	if spec.DateTo, err = dateParam(query, "date_to"); err != nil {
		return spec, err
	}
	// Explicit date bounds win over the relative window.
	if spec.DateFrom == nil && spec.DateTo == nil {
		if days, daysErr := intParam(query, "days", 0, 1, 365); daysErr != nil {
			return spec, daysErr
		} else if days > 0 {
			from := time.Now().UTC().AddDate(0, 0, -days)
			spec.DateFrom = &from
		}
	}

	spec.Page = clampedIntParam(query, "page", 1, 1, 0)
	spec.PerPage = clampedIntParam(query, "per_page", limits.DefaultPerPage, 1, limits.MaxPerPage)
	return spec, nil
}

// appliedFilters echoes the non-default filters back to the client.
func appliedFilters(spec domain.FilterSpec) map[string]any {
	applied := map[string]any{
		"sort_by":    spec.SortBy,
		"sort_order": spec.SortOrder,
	}
	if len(spec.Sources) > 0 {
		applied["sources"] = spec.Sources
	}
	if len(spec.Stores) > 0 {
		applied["stores"] = spec.Stores
	}
	if len(spec.Regions) > 0 {
		applied["regions"] = spec.Regions
	}
	if len(spec.Brands) > 0 {
		applied["brands"] = spec.Brands
	}
	if len(spec.Categories) > 0 {
		applied["categories"] = spec.Categories
	}
	if spec.Search != "" {
		applied["search"] = spec.Search
	}
	if spec.MinDiscount != nil {
		applied["min_discount"] = *spec.MinDiscount
	}
	if spec.MaxDiscount != nil {
		applied["max_discount"] = *spec.MaxDiscount
	}
	if spec.MinPrice != nil {
		applied["min_price"] = *spec.MinPrice
	}
	if spec.MaxPrice != nil {
		applied["max_price"] = *spec.MaxPrice
	}
	if spec.DateFrom != nil {
		applied["date_from"] = spec.DateFrom.Format(time.RFC3339)
	}
	if spec.DateTo != nil {
		applied["date_to"] = spec.DateTo.Format(time.RFC3339)
	}
	if spec.OnSaleOnly {
		applied["on_sale_only"] = true
	}
	if spec.HasPriceDrop {
		applied["has_price_drop"] = true
	}
	if spec.ActiveOnly {
		applied["active_only"] = true
	}
	return applied
}

func csvParam(query url.Values, name string) []string {
	var out []string
	for _, raw := range query[name] {
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func boolParam(query url.Values, name string) bool {
	switch strings.ToLower(strings.TrimSpace(query.Get(name))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// floatParam parses an optional float. max <= 0 means unbounded above.
func floatParam(query url.Values, name string, min, max float64) (*float64, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &domain.MalformedFilterError{Param: name, Reason: "must be a number"}
	}
	if parsed < min {
		parsed = min
	}
	if max > 0 && parsed > max {
		parsed = max
	}
	return &parsed, nil
}

// intParam parses an optional bounded int, rejecting non-numeric input.
func intParam(query url.Values, name string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.MalformedFilterError{Param: name, Reason: "must be an integer"}
	}
	if parsed < min {
		parsed = min
	}
	if max > 0 && parsed > max {
		parsed = max
	}
	return parsed, nil
}

// clampedIntParam never rejects: unparsable input falls back to the default.
func clampedIntParam(query url.Values, name string, def, min, max int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(query.Get(name)))
	if err != nil {
		return def
	}
	if parsed < min {
		parsed = min
	}
	if max > 0 && parsed > max {
		parsed = max
	}
	return parsed
}

// dateParam accepts YYYY-MM-DD or RFC 3339.
func dateParam(query url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &domain.MalformedFilterError{Param: name, Reason: "must be YYYY-MM-DD or RFC 3339"}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	var malformed *domain.MalformedFilterError
	switch {
	case errors.As(err, &malformed):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: malformed.Error(), Code: "malformed_filter"})
	case errors.Is(err, domain.ErrUnresolvableID), errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found", Code: "not_found"})
	default:
		log.Printf("[HTTP] request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		log.Printf("[HTTP] encode response: %v", err)
	}
}
