package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/registry"
)

// historyRepository reads the dedicated price-history tables. Callers must
// only pass descriptors for which desc.HasHistory() is true.
type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a pgx-backed HistoryReader.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryReader {
	return &historyRepository{pool: pool}
}

// History returns a product's observations ordered by time.
func (r *historyRepository) History(ctx context.Context, desc registry.SourceDescriptor, nativeID string) ([]domain.PriceHistoryPoint, error) {
	sql := fmt.Sprintf(
		"SELECT price, original_price, scraped_at, is_on_sale FROM %s WHERE %s::text = $1 ORDER BY scraped_at",
		ident(desc.HistoryTable), ident(desc.HistoryFK),
	)
	rows, err := r.pool.Query(ctx, sql, nativeID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s/%s: %w", desc.Key, nativeID, err)
	}
	defer rows.Close()

	var out []domain.PriceHistoryPoint
	for rows.Next() {
		var p domain.PriceHistoryPoint
		if err := rows.Scan(&p.Price, &p.OriginalPrice, &p.ScrapedAt, &p.IsOnSale); err != nil {
			return nil, fmt.Errorf("failed to scan history point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history scan for %s: %w", desc.Key, err)
	}
	return out, nil
}

// HistoryBatch returns observations for many products in one query, keyed by
// native id.
func (r *historyRepository) HistoryBatch(ctx context.Context, desc registry.SourceDescriptor, nativeIDs []string) (map[string][]domain.PriceHistoryPoint, error) {
	if len(nativeIDs) == 0 {
		return map[string][]domain.PriceHistoryPoint{}, nil
	}
	sql := fmt.Sprintf(
		"SELECT %s::text, price, original_price, scraped_at, is_on_sale FROM %s WHERE %s::text = ANY($1) ORDER BY %s, scraped_at",
		ident(desc.HistoryFK), ident(desc.HistoryTable), ident(desc.HistoryFK), ident(desc.HistoryFK),
	)
	rows, err := r.pool.Query(ctx, sql, nativeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-read history for %s: %w", desc.Key, err)
	}
	defer rows.Close()

	out := make(map[string][]domain.PriceHistoryPoint, len(nativeIDs))
	for rows.Next() {
		var (
			fk string
			p  domain.PriceHistoryPoint
		)
		if err := rows.Scan(&fk, &p.Price, &p.OriginalPrice, &p.ScrapedAt, &p.IsOnSale); err != nil {
			return nil, fmt.Errorf("failed to scan history point: %w", err)
		}
		out[fk] = append(out[fk], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history batch scan for %s: %w", desc.Key, err)
	}
	return out, nil
}

// MostTracked returns the products with the most history points.
func (r *historyRepository) MostTracked(ctx context.Context, desc registry.SourceDescriptor, limit int) ([]TrackedCount, error) {
	sql := fmt.Sprintf(
		"SELECT %s::text, COUNT(*) FROM %s GROUP BY %s ORDER BY COUNT(*) DESC LIMIT %d",
		ident(desc.HistoryFK), ident(desc.HistoryTable), ident(desc.HistoryFK), limit,
	)
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to rank tracked products for %s: %w", desc.Key, err)
	}
	defer rows.Close()

	var out []TrackedCount
	for rows.Next() {
		var tc TrackedCount
		if err := rows.Scan(&tc.NativeID, &tc.Points); err != nil {
			return nil, fmt.Errorf("failed to scan tracked count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// BiggestDrops returns products ranked by all-time percentage drop from
// their highest observed price to their lowest.
func (r *historyRepository) BiggestDrops(ctx context.Context, desc registry.SourceDescriptor, limit int) ([]DropStat, error) {
	sql := fmt.Sprintf(
		`SELECT %s::text, MAX(price), MIN(price) FROM %s
		 GROUP BY %s
		 HAVING MAX(price) > 0 AND MIN(price) < MAX(price)
		 ORDER BY (MAX(price) - MIN(price)) / MAX(price) DESC
		 LIMIT %d`,
		ident(desc.HistoryFK), ident(desc.HistoryTable), ident(desc.HistoryFK), limit,
	)
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to rank price drops for %s: %w", desc.Key, err)
	}
	defer rows.Close()

	var out []DropStat
	for rows.Next() {
		var ds DropStat
		if err := rows.Scan(&ds.NativeID, &ds.Highest, &ds.Lowest); err != nil {
			return nil, fmt.Errorf("failed to scan drop stat: %w", err)
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// RecentlyObserved returns native ids with at least one history point since
// the cutoff.
func (r *historyRepository) RecentlyObserved(ctx context.Context, desc registry.SourceDescriptor, since time.Time, limit int) ([]string, error) {
	sql := fmt.Sprintf(
		"SELECT DISTINCT %s::text FROM %s WHERE scraped_at >= $1 LIMIT %d",
		ident(desc.HistoryFK), ident(desc.HistoryTable), limit,
	)
	rows, err := r.pool.Query(ctx, sql, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent observations for %s: %w", desc.Key, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan native id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
