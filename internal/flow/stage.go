package flow

import (
	"context"
	"log/slog"
)

// Action selects the successor of a stage. The empty action is Default.
type Action string

const Default Action = "default"

// Stage is a unit of work split into three phases. Prep reads what it needs
// from the store, Exec does the side-effecting work on that payload only
// and may be retried, and Post writes results back.
type Stage[P, R any] interface {
	Prep(ctx context.Context, s *Store) (P, error)
	Exec(ctx context.Context, p P) (R, error)
	Post(ctx context.Context, s *Store, p P, r R) (Action, error)
}

// Fallback is implemented by stages that can degrade instead of failing
// once Exec has exhausted its attempts. It is not consulted on cancellation.
type Fallback[P, R any] interface {
	ExecFallback(ctx context.Context, p P, err error) (R, error)
}

// Step is a stage bound to a name and retry policy, ready to be placed in a
// Pipeline. Build steps with Node or Batch.
type Step interface {
	Name() string
	run(ctx context.Context, rc *runContext, index int) (Action, error)
}

type runContext struct {
	store    *Store
	token    *Token
	reporter *reporter
	logger   *slog.Logger
}

type node[P, R any] struct {
	name   string
	policy RetryPolicy
	stage  Stage[P, R]
}

// Node wraps a Stage as a Step.
func Node[P, R any](name string, policy RetryPolicy, stage Stage[P, R]) Step {
	return &node[P, R]{name: name, policy: policy, stage: stage}
}

func (n *node[P, R]) Name() string { return n.name }

func (n *node[P, R]) run(ctx context.Context, rc *runContext, _ int) (Action, error) {
	p, err := n.stage.Prep(ctx, rc.store)
	if err != nil {
		return "", &StageError{Stage: n.name, Phase: PhasePrep, Err: err}
	}

	r, attempts, err := execute(ctx, rc, n.name, n.policy, func(ctx context.Context) (R, error) {
		return n.stage.Exec(ctx, p)
	})
	if err != nil {
		if IsCancelled(err) {
			return "", err
		}
		fb, ok := any(n.stage).(Fallback[P, R])
		if !ok {
			return "", &StageError{Stage: n.name, Phase: PhaseExec, Attempts: attempts, Err: err}
		}
		rc.logger.Warn("stage failed, using fallback", "stage", n.name, "attempts", attempts, "error", err)
		if r, err = fb.ExecFallback(ctx, p, err); err != nil {
			return "", &StageError{Stage: n.name, Phase: PhaseExec, Attempts: attempts, Err: err}
		}
	}

	act, err := n.stage.Post(ctx, rc.store, p, r)
	if err != nil {
		return "", &StageError{Stage: n.name, Phase: PhasePost, Err: err}
	}
	return act, nil
}
