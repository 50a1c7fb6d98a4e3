// Package engine holds the control-flow scaffolding shared by the pipeline
// stages: bounded retries, first-success races and cancellable sleeps.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Attempt is called with the 1-based attempt number.
type Attempt[T any] func(ctx context.Context, attempt int) (T, error)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds or the policy is exhausted, sleeping
// Delay between attempts (not after the last one). It returns the last
// error, unwrapped if fn marked it Permanent. A non-positive MaxAttempts
// means a single attempt.
func Retry[T any](ctx context.Context, p Policy, fn Attempt[T]) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if err := Sleep(ctx, p.Delay); err != nil {
			return zero, fmt.Errorf("retry interrupted after attempt %d: %w", attempt, err)
		}
	}
	return zero, lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
