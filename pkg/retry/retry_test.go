package retry

import (
	"context"
	"errors"
	"testing"
)

func TestDoRunsOnceWithMaxAttemptsOne(t *testing.T) {
	calls := 0
	p := Policy{
		MaxAttempts: 1,
		IsRetryable: func(error) bool { return true },
	}

	_, _ = Do(context.Background(), p, func(ctx context.Context, attempt int) (any, error) {
		calls++
		return nil, errors.New("boom")
	})

	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}

func TestDoRetriesOnRetryableError(t *testing.T) {
	calls := 0
	p := Policy{
		MaxAttempts: 3,
		Backoff:     Fixed,
		DelayMS:     0,
		IsRetryable: func(error) bool { return true },
	}

	result, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (any, error) {
		calls++
		if attempt < 3 {
			return nil, errors.New("not yet")
		}
		return "done", nil
	})

	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if err != nil || result != "done" {
		t.Fatalf("got result=%v err=%v", result, err)
	}
}

func TestDoRetriesOnResultPredicate(t *testing.T) {
	calls := 0
	p := Policy{
		MaxAttempts: 3,
		Backoff:     Fixed,
		ShouldRetryResult: func(r any) bool {
			return r.(int) < 500
		},
	}

	result, _ := Do(context.Background(), p, func(ctx context.Context, attempt int) (any, error) {
		calls++
		return 200, nil
	})

	if calls != 3 {
		t.Fatalf("expected 3 calls (exhausted without reaching retry-stop condition), got %d", calls)
	}
	if result != 200 {
		t.Fatalf("got %v", result)
	}
}

func TestDoStopsWhenNotRetryable(t *testing.T) {
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		IsRetryable: func(error) bool { return false },
	}

	_, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (any, error) {
		calls++
		return nil, errors.New("fatal")
	})

	if calls != 1 {
		t.Fatalf("expected 1 call since error is not retryable, got %d", calls)
	}
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDoPropagatesCancellationWithoutRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		IsRetryable: func(error) bool { return true },
	}

	_, _ = Do(ctx, p, func(ctx context.Context, attempt int) (any, error) {
		calls++
		cancel()
		return nil, errors.New("cancelled mid-flight")
	})

	if calls != 1 {
		t.Fatalf("expected exactly 1 call once context is cancelled, got %d", calls)
	}
}
