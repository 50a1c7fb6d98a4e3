package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNoBranches is returned by First when called without branches.
var ErrNoBranches = errors.New("engine: no branches to race")

// Branch is one contender of a race. It must return promptly once ctx is done.
type Branch[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// First runs all branches concurrently and returns the first success along
// with the winning branch's name. The losers' context is canceled as soon as
// a winner is known and their results are dropped. If every branch fails, the
// last error is returned.
func First[T any](ctx context.Context, branches ...Branch[T]) (T, string, error) {
	var zero T
	if len(branches) == 0 {
		return zero, "", ErrNoBranches
	}

	type raceResult struct {
		name  string
		value T
		err   error
	}

	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	results := make(chan raceResult, len(branches))
	var wg sync.WaitGroup

	for _, b := range branches {
		wg.Add(1)
		go func(b Branch[T]) {
			defer wg.Done()
			v, err := b.Run(raceCtx)
			if err != nil {
				slog.Debug("race branch failed", "branch", b.Name, "error", err)
			}
			results <- raceResult{name: b.Name, value: v, err: err}
		}(b)
	}

	// Close results channel when all goroutines finish.
	go func() {
		wg.Wait()
		close(results)
	}()

	var lastErr error
	for rr := range results {
		if rr.err != nil {
			lastErr = rr.err
			continue
		}
		// First success wins; cancel the rest.
		raceCancel()
		slog.Debug("race branch won", "branch", rr.name)
		return rr.value, rr.name, nil
	}
	return zero, "", lastErr
}
