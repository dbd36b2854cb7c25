// Package federation runs per-source query plans concurrently and merges
// their normalized rows into one globally sorted, paginated page.
package federation

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/normalize"
	"github.com/northdeals/catalog/internal/planner"
	"github.com/northdeals/catalog/internal/registry"
)

// SourceClient executes one plan's native queries. Implementations must
// honor context cancellation.
type SourceClient interface {
	Fetch(ctx context.Context, plan planner.QueryPlan) ([]map[string]any, error)
	Count(ctx context.Context, plan planner.QueryPlan) (int, error)
}

// SourceResult is one source's settled contribution to a listing. A failed
// source contributes zero rows and zero count but never fails the request.
type SourceResult struct {
	SourceKey string
	Products  []domain.CanonicalProduct
	Count     int

	// Fetched is the raw row count before normalization; it can exceed
	// len(Products) when rows were skipped.
	Fetched    int
	Skipped    int
	FetchLimit int
	Failed     bool
	Err        error
}

// Executor fans a batch of plans out across sources. Each plan's fetch and
// count run concurrently with each other and with every other plan; results
// land in per-plan slots, so no aggregation lock is needed.
type Executor struct {
	client  SourceClient
	reg     *registry.Registry
	timeout time.Duration
}

func NewExecutor(client SourceClient, reg *registry.Registry, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{client: client, reg: reg, timeout: timeout}
}

// Execute runs every plan and returns once all have settled or the batch
// deadline elapses. Plans still pending at the deadline are recorded as
// failed rather than blocking the response.
func (e *Executor) Execute(ctx context.Context, plans []planner.QueryPlan) []SourceResult {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	slots := make([]SourceResult, len(plans))
	settled := make([]atomic.Bool, len(plans))

	var wg sync.WaitGroup
	for i, plan := range plans {
		wg.Add(1)
		go func(i int, plan planner.QueryPlan) {
			defer wg.Done()
			slots[i] = e.runPlan(ctx, plan)
			settled[i].Store(true)
		}(i, plan)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	results := make([]SourceResult, len(plans))
	for i, plan := range plans {
		if settled[i].Load() {
			results[i] = slots[i]
			continue
		}
		log.Printf("[FANOUT] source %s did not settle before deadline", plan.SourceKey)
		results[i] = SourceResult{
			SourceKey:  plan.SourceKey,
			FetchLimit: plan.FetchLimit,
			Failed:     true,
			Err:        &domain.SourceError{SourceKey: plan.SourceKey, Err: domain.ErrFanoutDeadline},
		}
	}
	return results
}

// runPlan executes one plan's fetch and count in parallel and normalizes the
// fetched rows. Either query failing fails the whole plan.
func (e *Executor) runPlan(ctx context.Context, plan planner.QueryPlan) SourceResult {
	res := SourceResult{SourceKey: plan.SourceKey, FetchLimit: plan.FetchLimit}

	desc, ok := e.reg.Lookup(plan.SourceKey)
	if !ok {
		res.Failed = true
		res.Err = &domain.SourceError{SourceKey: plan.SourceKey, Err: domain.ErrUnresolvableID}
		return res
	}

	var (
		rows     []map[string]any
		count    int
		fetchErr error
		countErr error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rows, fetchErr = e.client.Fetch(ctx, plan)
	}()
	go func() {
		defer wg.Done()
		count, countErr = e.client.Count(ctx, plan)
	}()
	wg.Wait()

	if fetchErr != nil || countErr != nil {
		err := fetchErr
		if err == nil {
			err = countErr
		}
		log.Printf("[FANOUT] source %s failed: %v", plan.SourceKey, err)
		return SourceResult{
			SourceKey:  plan.SourceKey,
			FetchLimit: plan.FetchLimit,
			Failed:     true,
			Err:        &domain.SourceError{SourceKey: plan.SourceKey, Err: err},
		}
	}

	res.Count = count
	res.Fetched = len(rows)
	for _, row := range rows {
		p, err := normalize.Row(desc, row)
		if err != nil {
			// A normalization bug must not abort the batch; skip and count.
			res.Skipped++
			continue
		}
		res.Products = append(res.Products, p)
	}
	if res.Skipped > 0 {
		log.Printf("[FANOUT] source %s skipped %d unrepresentable rows", plan.SourceKey, res.Skipped)
	}
	return res
}
