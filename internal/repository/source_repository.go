package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/planner"
	"github.com/northdeals/catalog/internal/registry"
)

// sourceRepository runs plan queries against the source tables over pgx.
// Column and table names always come from the registry, never from request
// input; values travel as bind parameters.
type sourceRepository struct {
	pool *pgxpool.Pool
	reg  *registry.Registry
}

// NewSourceRepository creates a pgx-backed SourceReader.
func NewSourceRepository(pool *pgxpool.Pool, reg *registry.Registry) SourceReader {
	return &sourceRepository{pool: pool, reg: reg}
}

// Fetch runs a plan's bounded row query and returns raw rows keyed by native
// column name.
func (r *sourceRepository) Fetch(ctx context.Context, plan planner.QueryPlan) ([]map[string]any, error) {
	desc, ok := r.reg.Lookup(plan.SourceKey)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", plan.SourceKey)
	}

	where, args := renderPredicates(plan.Predicates)
	dir := "ASC"
	if plan.SortDesc {
		dir = "DESC"
	}
	sql := fmt.Sprintf(
		"SELECT * FROM %s%s ORDER BY %s %s NULLS LAST LIMIT %d",
		ident(desc.Table), where, ident(plan.SortColumn), dir, plan.FetchLimit,
	)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rows from %s: %w", desc.Table, err)
	}
	defer rows.Close()

	return collectRawRows(rows)
}

// Count runs a plan's exact count query.
func (r *sourceRepository) Count(ctx context.Context, plan planner.QueryPlan) (int, error) {
	desc, ok := r.reg.Lookup(plan.SourceKey)
	if !ok {
		return 0, fmt.Errorf("unknown source %q", plan.SourceKey)
	}

	where, args := renderPredicates(plan.Predicates)
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", ident(desc.Table), where)

	var count int
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", desc.Table, err)
	}
	return count, nil
}

// GetByNativeID fetches a single raw row. The native id column is compared
// as text so integer, uuid, and text keyed tables all resolve the same way.
func (r *sourceRepository) GetByNativeID(ctx context.Context, desc registry.SourceDescriptor, nativeID string) (map[string]any, error) {
	sql := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s::text = $1 LIMIT 1",
		ident(desc.Table), ident(desc.Fields.NativeID),
	)
	rows, err := r.pool.Query(ctx, sql, nativeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get row %s from %s: %w", nativeID, desc.Table, err)
	}
	defer rows.Close()

	raw, err := collectRawRows(rows)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.ErrNotFound
	}
	return raw[0], nil
}

// FacetCounts returns distinct non-null values of a column with their row
// counts under the given predicates, most common first.
func (r *sourceRepository) FacetCounts(ctx context.Context, desc registry.SourceDescriptor, column string, preds []planner.Predicate) ([]FacetCount, error) {
	preds = append(append([]planner.Predicate(nil), preds...), planner.Predicate{Column: column, Op: planner.OpNotNull})
	where, args := renderPredicates(preds)
	sql := fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM %s%s GROUP BY %s ORDER BY COUNT(*) DESC",
		ident(column), ident(desc.Table), where, ident(column),
	)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count facet %s.%s: %w", desc.Table, column, err)
	}
	defer rows.Close()

	var out []FacetCount
	for rows.Next() {
		var fc FacetCount
		if err := rows.Scan(&fc.Value, &fc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan facet row: %w", err)
		}
		out = append(out, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("facet scan for %s: %w", desc.Table, err)
	}
	return out, nil
}

// collectRawRows materializes pgx rows as maps keyed by column name.
func collectRawRows(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return out, nil
}

// renderPredicates builds a WHERE clause with $n placeholders.
func renderPredicates(preds []planner.Predicate) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	var (
		clauses []string
		args    []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	for _, p := range preds {
		col := ident(p.Column)
		switch p.Op {
		case planner.OpEq:
			clauses = append(clauses, fmt.Sprintf("%s = %s", col, next(p.Value)))
		case planner.OpGte:
			clauses = append(clauses, fmt.Sprintf("%s >= %s", col, next(p.Value)))
		case planner.OpLte:
			clauses = append(clauses, fmt.Sprintf("%s <= %s", col, next(p.Value)))
		case planner.OpGt:
			clauses = append(clauses, fmt.Sprintf("%s > %s", col, next(p.Value)))
		case planner.OpILike:
			clauses = append(clauses, fmt.Sprintf("%s ILIKE %s", col, next(p.Value)))
		case planner.OpIn:
			clauses = append(clauses, fmt.Sprintf("%s = ANY(%s)", col, next(p.Value)))
		case planner.OpNotIn:
			clauses = append(clauses, fmt.Sprintf("%s <> ALL(%s)", col, next(p.Value)))
		case planner.OpNotNull:
			clauses = append(clauses, fmt.Sprintf("%s IS NOT NULL", col))
		case planner.OpLtColumn:
			other, _ := p.Value.(string)
			clauses = append(clauses, fmt.Sprintf("%s < %s", col, ident(other)))
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// IsNotFound reports whether err is the repository's row-missing condition.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
