// Package historyloader batches price-history reads behind a dataloader so
// callers resolving many products (the tracker feed in particular) issue one
// query per source instead of one per product.
package historyloader

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/registry"
	"github.com/northdeals/catalog/internal/repository"
)

// HistoryLoader wraps a dataloader keyed by canonical product id.
type HistoryLoader struct {
	Loader *dataloader.Loader
}

// New builds a loader for one request. Loaders cache per instance, so create
// one per request rather than sharing.
func New(reg *registry.Registry, histories repository.HistoryReader) *HistoryLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		type ref struct {
			source   string
			nativeID string
		}
		refs := make([]ref, len(keys))
		bySource := make(map[string][]string)

		for i, k := range keys {
			source, nativeID, err := reg.ResolveID(k.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			refs[i] = ref{source: source, nativeID: nativeID}
			bySource[source] = append(bySource[source], nativeID)
		}

		// One batch query per source that has a history table. Sources
		// without one resolve to an empty history; the stitcher synthesizes.
		loaded := make(map[string]map[string][]domain.PriceHistoryPoint, len(bySource))
		errs := make(map[string]error, len(bySource))
		for source, ids := range bySource {
			desc, ok := reg.Lookup(source)
			if !ok || !desc.HasHistory() {
				loaded[source] = map[string][]domain.PriceHistoryPoint{}
				continue
			}
			points, err := histories.HistoryBatch(ctx, desc, ids)
			if err != nil {
				errs[source] = err
				continue
			}
			loaded[source] = points
		}

		for i := range keys {
			if results[i] != nil {
				continue
			}
			r := refs[i]
			if err := errs[r.source]; err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			results[i] = &dataloader.Result{Data: loaded[r.source][r.nativeID]}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))
	return &HistoryLoader{Loader: loader}
}

// Thunk defers one id's history until called. Queue every id first and
// resolve afterward so the reads coalesce into one batch per source.
type Thunk func() ([]domain.PriceHistoryPoint, error)

// LoadThunk queues an id on the current batch without resolving it.
func (l *HistoryLoader) LoadThunk(ctx context.Context, id string) Thunk {
	thunk := l.Loader.Load(ctx, dataloader.StringKey(id))
	return func() ([]domain.PriceHistoryPoint, error) {
		data, err := thunk()
		if err != nil {
			return nil, err
		}
		points, _ := data.([]domain.PriceHistoryPoint)
		return points, nil
	}
}

// Load resolves a single id immediately. Resolving inside a loop dispatches
// a one-key batch per call; prefer LoadThunk when iterating.
func (l *HistoryLoader) Load(ctx context.Context, id string) ([]domain.PriceHistoryPoint, error) {
	return l.LoadThunk(ctx, id)()
}
