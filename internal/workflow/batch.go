package workflow

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll runs independent requests concurrently, at most limit at a time,
// and returns their results in request order. Each run has its own state;
// the only shared resources are the retriever and the generator.
func (w *Workflow) RunAll(ctx context.Context, reqs []Request, limit int) []*Result {
	if limit <= 0 {
		limit = 1
	}
	results := make([]*Result, len(reqs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = w.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
