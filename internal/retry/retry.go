// Package retry provides the bounded fixed-delay retry policy applied to
// every remote call in callscribe.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes how a fallible operation is retried: at most Attempts
// invocations with a fixed Delay between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Default is the policy applied to all remote calls: 3 attempts total with a
// fixed 2-second delay between them.
func Default() Policy {
	return Policy{Attempts: 3, Delay: 2 * time.Second}
}

// Do runs fn under the policy and returns its result, or the last attempt's
// error once the attempt budget is exhausted. Context cancellation is never
// retried and aborts the delay between attempts.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if attempt == p.Attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, lastErr
}

// DoFunc runs an error-only operation under the policy.
func DoFunc(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
