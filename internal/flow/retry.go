package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often a stage's Exec is attempted.
type RetryPolicy struct {
	// MaxAttempts is the total number of Exec calls, including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int
	// Wait is the fixed pause between attempts.
	Wait time.Duration
	// Timeout caps each attempt. A timed-out attempt counts as a retryable
	// failure. Zero disables the cap.
	Timeout time.Duration
	// BackOff overrides the constant Wait schedule when set.
	BackOff func() backoff.BackOff
}

// Retry returns a constant-wait policy.
func Retry(attempts int, wait time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Wait: wait}
}

// WithTimeout returns a copy of p with a per-attempt timeout.
func (p RetryPolicy) WithTimeout(d time.Duration) RetryPolicy {
	p.Timeout = d
	return p
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) schedule() backoff.BackOff {
	if p.BackOff != nil {
		return p.BackOff()
	}
	return backoff.NewConstantBackOff(p.Wait)
}

// execute runs fn under the policy and reports how many attempts were made.
// Input errors and cancellation end the loop immediately.
func execute[R any](ctx context.Context, rc *runContext, stage string, policy RetryPolicy, fn func(context.Context) (R, error)) (R, int, error) {
	attempts := 0
	maxTries := policy.attempts()

	op := func() (R, error) {
		var zero R
		if attempts > 0 {
			if err := checkpoint(ctx, rc.token, stage); err != nil {
				return zero, backoff.Permanent(err)
			}
		}
		attempts++

		callCtx := ctx
		if policy.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
			defer cancel()
		}

		r, err := safeCall(callCtx, stage, fn)
		if err == nil {
			return r, nil
		}
		if policy.Timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("attempt timed out after %s: %w", policy.Timeout, err)
		}
		if permanent(err) {
			return zero, backoff.Permanent(err)
		}
		if attempts < maxTries {
			rc.logger.Warn("stage attempt failed, retrying",
				"stage", stage, "attempt", attempts, "max_attempts", maxTries, "error", err)
		}
		return zero, err
	}

	r, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy.schedule()),
		backoff.WithMaxTries(uint(maxTries)),
		// Attempts alone bound the loop, however long the waits add up to.
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if !IsCancelled(err) && ctx.Err() != nil {
			err = &CancelledError{Stage: stage, Reason: "context done", Cause: ctx.Err()}
		}
	}
	return r, attempts, err
}

func safeCall[R any](ctx context.Context, stage string, fn func(context.Context) (R, error)) (r R, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Stage: stage, Value: v}
		}
	}()
	return fn(ctx)
}
