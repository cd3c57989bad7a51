package flow

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is a run-scoped cooperative cancellation flag. Setting it never
// interrupts an in-flight Exec; the run stops at the next checkpoint.
// A nil *Token is valid and never cancels.
type Token struct {
	cancelled atomic.Bool
	mu        sync.Mutex
	reason    string
}

func NewToken() *Token {
	return &Token{}
}

// Cancel sets the flag. Only the first reason is kept.
func (t *Token) Cancel(reason string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if !t.cancelled.Load() {
		t.reason = reason
		t.cancelled.Store(true)
	}
	t.mu.Unlock()
}

func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

func (t *Token) Reason() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// checkpoint returns a *CancelledError if the token is set or ctx is done.
func checkpoint(ctx context.Context, t *Token, stage string) error {
	if t.Cancelled() {
		return &CancelledError{Stage: stage, Reason: t.Reason()}
	}
	if err := ctx.Err(); err != nil {
		return &CancelledError{Stage: stage, Reason: "context done", Cause: err}
	}
	return nil
}
