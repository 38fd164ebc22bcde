package identifier

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/logging"
	"github.com/xtxerr/pidx/internal/workerpool"
)

// inlineAttempts bounds the inline retries of one batch slot.
const inlineAttempts = 3

// GenerateBatch returns exactly count identifiers. Pool entries are used
// first; the rest are generated on the worker pool. A slot whose unit fails
// with a retriable error is regenerated inline with reclaim enabled, so block
// exhaustion never fails the batch. Only argument errors, a digit block
// failure or context cancellation do.
func (g *Generator) GenerateBatch(ctx context.Context, count, length int, includeSpiral bool) ([]Identifier, error) {
	start := time.Now()
	if count < 0 {
		return nil, pidxerrors.Wrapf(pidxerrors.ErrInvalidLength, "batch count %d", count)
	}
	if err := g.checkLength(length); err != nil {
		return nil, err
	}
	if count == 0 {
		return []Identifier{}, nil
	}
	if err := g.Warm(ctx); err != nil {
		return nil, err
	}

	ctx = logging.ContextWithBatchID(ctx, uuid.NewString())
	out := make([]Identifier, count)

	filled := 0
	if g.pooled(length, includeSpiral) {
		for _, id := range g.prepared.popN(count) {
			out[filled] = g.stamp(id, start)
			g.stats.poolDraws.Add(1)
			filled++
		}
		if filled > 0 {
			g.afterPoolDraw()
		}
	}

	if filled < count {
		g.stats.poolMisses.Add(int64(count - filled))

		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(g.fanOut())
		for i := filled; i < count; i++ {
			eg.Go(func() error {
				unitStart := time.Now()
				id, err := workerpool.Do(egctx, g.workers, g.cfg.UnitTimeout, func(uctx context.Context) (Identifier, error) {
					return g.build(uctx, length, includeSpiral, false)
				})
				for attempt := 0; err != nil && pidxerrors.IsRetriable(err) && attempt < inlineAttempts; attempt++ {
					if cerr := egctx.Err(); cerr != nil {
						return cerr
					}
					logging.WithContext(ctx).Debug("batch slot retried inline", "slot", i, "error", err)
					g.stats.batchRetries.Add(1)
					id, err = g.build(egctx, length, includeSpiral, true)
				}
				if err != nil {
					return err
				}
				out[i] = g.stamp(id, unitStart)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	for _, id := range out {
		g.record(ctx, id)
	}

	logging.WithContext(ctx).Debug("batch generated",
		"count", count,
		"from_pool", filled,
		"duration", time.Since(start))
	return out, nil
}

func (g *Generator) fanOut() int {
	if g.workers == nil {
		return 4
	}
	return g.workers.Stats().Workers
}
