// Package retry holds the two retry shapes the engine needs: a bounded
// linear backoff for individual photo downloads, and a deduplicated
// exponential scheduler for provider auth (see scheduler.go). Adapted from
// the teacher's retry.WithRetry helper.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Operation is a function that can be retried.
type Operation func(ctx context.Context) error

// Download retries op up to maxAttempts times with linear backoff
// (1*step, 2*step, 3*step, ...) between attempts: with 3 attempts and a 1s
// step it waits 1s before the second attempt and 2s before the third. Each
// attempt runs under its own 30s timeout; an attempt that times out is
// retried like any other failure, and only cancellation of ctx itself stops
// the retries early.
func Download(ctx context.Context, name string, op Operation, maxAttempts int, step time.Duration) error {
	const attemptTimeout = 30 * time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * step
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxAttempts, lastErr)
}
