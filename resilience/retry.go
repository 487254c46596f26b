// Package resilience provides the failure-tolerance wrappers applied to
// every call this core makes to its backing stores: bounded retry with
// exponential backoff, and a circuit breaker that stops hammering a
// degraded dependency while probing for recovery.
//
// Instances carry no package-level state; callers construct and inject
// them so tests can run isolated copies.
package resilience

import (
	"context"
	"time"
)

// Policy tunes Retry. RetryIf decides whether a failure is worth
// retrying; when nil every failure is. Deterministic outcomes such as a
// rejected password can never succeed on retry and should be filtered
// out by RetryIf.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	RetryIf    func(error) bool
}

// Retry invokes op, retrying failed attempts with delay
// BaseDelay * 2^attempt up to MaxRetries extra attempts. The last
// failure is returned once retries are exhausted. Context cancellation
// interrupts the backoff sleep and returns the context error.
func Retry(ctx context.Context, p Policy, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.RetryIf != nil && !p.RetryIf(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return lastErr
		}

		delay := p.BaseDelay << uint(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
