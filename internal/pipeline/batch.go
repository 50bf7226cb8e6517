package pipeline

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Batch processes the runs at paths on cfg.Workers goroutines. After
// the first failed run no new runs are started; runs already in progress
// complete. The returned Stats are in the order of paths, and the error
// joins the *RunError of every failed run.
func (p *Pipeline) Batch(ctx context.Context, stage Stage, paths []string) ([]Stats, error) {
	stats := make([]Stats, len(paths))
	for i, path := range paths {
		stats[i] = Stats{Run: RunName(path), Skipped: true}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.cfg.Workers, 1))
	for i, path := range paths {
		i, path := i, path
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			st, err := p.Process(ctx, stage, path)
			stats[i] = st
			return err
		})
	}
	_ = g.Wait()

	var errs []error
	for _, st := range stats {
		if st.Err != nil {
			errs = append(errs, st.Err)
		}
	}
	if len(errs) == 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}
	return stats, errors.Join(errs...)
}
