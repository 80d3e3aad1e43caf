package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farmanp/windtunnel/pkg/runner"
)

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight int32
	var maxObserved int32

	run := func(ctx context.Context, index int) runner.InstanceResult {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxObserved)
			if cur <= max || atomic.CompareAndSwapInt32(&maxObserved, max, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return runner.InstanceResult{Passed: true}
	}

	e := New(3, run, nil)
	results, stats := e.Run(context.Background(), 10)

	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	if stats.Passed != 10 {
		t.Fatalf("expected 10 passed, got %d", stats.Passed)
	}
	if atomic.LoadInt32(&maxObserved) > 3 {
		t.Fatalf("expected at most 3 concurrent instances, observed %d", maxObserved)
	}
}

func TestRunCancellationResolvesUnscheduledAsCancelled(t *testing.T) {
	run := func(ctx context.Context, index int) runner.InstanceResult {
		return runner.InstanceResult{Passed: true}
	}

	e := New(1, run, nil)
	e.Cancel()

	results, stats := e.Run(context.Background(), 5)

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if stats.Cancelled != 5 {
		t.Fatalf("expected all 5 cancelled, got %d", stats.Cancelled)
	}
}

func TestRunClassifiesOrdinaryFailureSeparatelyFromPanic(t *testing.T) {
	run := func(ctx context.Context, index int) runner.InstanceResult {
		if index == 0 {
			return runner.InstanceResult{Passed: false, Error: "assertion failed"}
		}
		return runner.InstanceResult{Passed: false, Error: "panic: boom", PanicError: true}
	}

	e := New(2, run, nil)
	_, stats := e.Run(context.Background(), 2)

	if stats.Failed != 1 {
		t.Fatalf("expected 1 ordinary failure, got %d", stats.Failed)
	}
	if stats.Errors != 1 {
		t.Fatalf("expected 1 panic-originated error, got %d", stats.Errors)
	}
}

func TestRunProgressCallbackFiresForEveryInstance(t *testing.T) {
	var progressCount int32
	run := func(ctx context.Context, index int) runner.InstanceResult {
		return runner.InstanceResult{Passed: true}
	}
	onProgress := func(completed, total int, result runner.InstanceResult) {
		atomic.AddInt32(&progressCount, 1)
	}

	e := New(2, run, onProgress)
	e.Run(context.Background(), 7)

	if atomic.LoadInt32(&progressCount) != 7 {
		t.Fatalf("expected 7 progress callbacks, got %d", progressCount)
	}
}
