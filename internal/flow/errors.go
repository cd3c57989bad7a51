package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is matched by every error produced when a run stops at a
	// cancellation checkpoint.
	ErrCancelled = errors.New("flow: run cancelled")

	// ErrInvalidInput marks input and content errors. They are never retried.
	ErrInvalidInput = errors.New("flow: invalid input")
)

// Invalid builds an input error. Returning it from Prep or Exec stops the
// run without retry.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Phase identifies which part of a stage failed.
type Phase string

const (
	PhasePrep Phase = "prep"
	PhaseExec Phase = "exec"
	PhasePost Phase = "post"
)

// StageError is returned by Pipeline.Run when a stage fails.
type StageError struct {
	Stage    string
	Phase    Phase
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	if e.Phase == PhaseExec && e.Attempts > 0 {
		return fmt.Sprintf("stage %s: %s failed after %d attempt(s): %v", e.Stage, e.Phase, e.Attempts, e.Err)
	}
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Phase, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ItemError reports which batch item exhausted its retries.
type ItemError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d failed after %d attempt(s): %v", e.Index, e.Attempts, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// CancelledError is returned when a run observes cancellation at a
// checkpoint. Cause is the context error when shutdown triggered it.
type CancelledError struct {
	Stage  string
	Reason string
	Cause  error
}

func (e *CancelledError) Error() string {
	msg := "flow: run cancelled before " + e.Stage
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

func (e *CancelledError) Unwrap() error { return e.Cause }

// PanicError wraps a panic recovered from a stage Exec.
type PanicError struct {
	Stage string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("stage %s panicked: %v", e.Stage, e.Value)
}

// IsCancelled reports whether err came from a cancellation checkpoint.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsInvalidInput reports whether err is an input or content error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func permanent(err error) bool {
	return IsCancelled(err) || IsInvalidInput(err)
}
