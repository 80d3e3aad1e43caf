// Package retry wraps an operation with configurable attempt count,
// backoff strategy, and retryability predicates.
package retry

import (
	"context"
	"math"
	"time"
)

// Backoff selects the delay schedule between attempts.
type Backoff string

const (
	Fixed       Backoff = "fixed"
	Exponential Backoff = "exponential"
)

// Policy configures a retry loop.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	DelayMS     int // used by Fixed
	BaseDelayMS int // used by Exponential
	MaxDelayMS  int // caps Exponential

	// IsRetryable decides whether an error should be retried.
	IsRetryable func(err error) bool

	// ShouldRetryResult decides whether a successful result should still
	// be retried (e.g. an HTTP response with a retryable status code).
	ShouldRetryResult func(result any) bool

	// OnAttempt is called after every attempt for observability.
	OnAttempt func(attempt int, result any, err error, durationMS float64)
}

// Delay returns the sleep duration after the given 1-indexed attempt fails,
// before the next attempt starts.
func (p Policy) Delay(attempt int) time.Duration {
	switch p.Backoff {
	case Exponential:
		ms := float64(p.BaseDelayMS) * math.Pow(2, float64(attempt-1))
		if p.MaxDelayMS > 0 && ms > float64(p.MaxDelayMS) {
			ms = float64(p.MaxDelayMS)
		}
		return time.Duration(ms) * time.Millisecond
	default:
		return time.Duration(p.DelayMS) * time.Millisecond
	}
}

// Do runs produce up to MaxAttempts times, retrying per the configured
// predicates. Cancellation errors (ctx.Err() != nil) propagate without
// retry. If every attempt fails by error, the last error is returned; if
// every attempt fails by result-retry, the last result is returned with a
// nil error.
func Do(ctx context.Context, p Policy, produce func(ctx context.Context, attempt int) (any, error)) (any, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastResult any
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		result, err := produce(ctx, attempt)
		durationMS := float64(time.Since(start)) / float64(time.Millisecond)

		if p.OnAttempt != nil {
			p.OnAttempt(attempt, result, err, durationMS)
		}

		lastResult, lastErr = result, err

		if ctx.Err() != nil {
			return result, err
		}

		if err != nil {
			retryable := p.IsRetryable != nil && p.IsRetryable(err)
			if !retryable || attempt == maxAttempts {
				return result, err
			}
		} else {
			retryResult := p.ShouldRetryResult != nil && p.ShouldRetryResult(result)
			if !retryResult || attempt == maxAttempts {
				return result, nil
			}
		}

		if err := sleepCancelable(ctx, p.Delay(attempt)); err != nil {
			return lastResult, lastErr
		}
	}

	return lastResult, lastErr
}

func sleepCancelable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
