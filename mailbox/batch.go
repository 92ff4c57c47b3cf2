package mailbox

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one call of a batch.
type BatchResult struct {
	Delivery *Delivery
	Err      error
}

// Batch delivers independent calls concurrently, at most limit at a time
// (limit <= 0 means no bound). Each call runs in its own exchange; calls
// must not share conversation nodes or registries. Results are aligned with
// calls and the returned error joins every failure.
func (m *Mailbox) Batch(ctx context.Context, calls []Call, limit int) ([]BatchResult, error) {
	results := make([]BatchResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, call := range calls {
		g.Go(func() error {
			d, err := m.Deliver(gctx, call)
			results[i] = BatchResult{Delivery: d, Err: err}
			// Keep the group running; one failed conversation must not
			// cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("call %d: %w", i, r.Err))
		}
	}
	return results, errors.Join(errs...)
}
