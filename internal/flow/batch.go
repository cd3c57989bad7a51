package flow

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the fan-out used when a batch is built with workers < 1.
const DefaultWorkers = 4

// BatchStage is a stage whose Prep yields a list of items. Exec runs once
// per item, each with its own retry budget, and Post receives the results in
// item order.
type BatchStage[I, R any] interface {
	Prep(ctx context.Context, s *Store) ([]I, error)
	Exec(ctx context.Context, item I) (R, error)
	Post(ctx context.Context, s *Store, items []I, results []R) (Action, error)
}

type batch[I, R any] struct {
	name    string
	policy  RetryPolicy
	workers int
	stage   BatchStage[I, R]
}

// Batch wraps a BatchStage as a Step that processes at most workers items
// concurrently. If any item exhausts its attempts the whole stage fails and
// Post is not called.
func Batch[I, R any](name string, policy RetryPolicy, workers int, stage BatchStage[I, R]) Step {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &batch[I, R]{name: name, policy: policy, workers: workers, stage: stage}
}

func (b *batch[I, R]) Name() string { return b.name }

func (b *batch[I, R]) run(ctx context.Context, rc *runContext, index int) (Action, error) {
	items, err := b.stage.Prep(ctx, rc.store)
	if err != nil {
		return "", &StageError{Stage: b.name, Phase: PhasePrep, Err: err}
	}

	results, err := b.fanOut(ctx, rc, index, items)
	if err != nil {
		if IsCancelled(err) {
			return "", err
		}
		return "", &StageError{Stage: b.name, Phase: PhaseExec, Err: err}
	}

	act, err := b.stage.Post(ctx, rc.store, items, results)
	if err != nil {
		return "", &StageError{Stage: b.name, Phase: PhasePost, Err: err}
	}
	return act, nil
}

func (b *batch[I, R]) fanOut(ctx context.Context, rc *runContext, index int, items []I) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	fb, hasFallback := any(b.stage).(Fallback[I, R])

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	var done atomic.Int64
	var stopped error
	for i, item := range items {
		// g.Go blocks while all workers are busy, so this check runs
		// between items rather than only up front.
		if err := checkpoint(gctx, rc.token, b.name); err != nil {
			stopped = err
			break
		}
		g.Go(func() error {
			if err := checkpoint(gctx, rc.token, b.name); err != nil {
				return err
			}
			r, attempts, err := execute(gctx, rc, b.name, b.policy, func(ctx context.Context) (R, error) {
				return b.stage.Exec(ctx, item)
			})
			if err != nil && hasFallback && !IsCancelled(err) {
				rc.logger.Warn("batch item failed, using fallback", "stage", b.name, "item", i, "error", err)
				r, err = fb.ExecFallback(gctx, item, err)
			}
			if err != nil {
				if IsCancelled(err) {
					return err
				}
				return &ItemError{Index: i, Attempts: attempts, Err: err}
			}
			results[i] = r
			rc.reporter.item(index, b.name, int(done.Add(1)), len(items))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if stopped != nil {
		// A failed sibling cancels gctx; report that failure, not a
		// cancellation that never happened.
		return nil, stopped
	}
	return results, nil
}
