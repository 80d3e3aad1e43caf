// Package executor implements the Parallel Executor: a bounded-concurrency
// driver that runs N scenario instances with at most P in flight at once,
// with cooperative cancellation.
package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/farmanp/windtunnel/pkg/runner"
)

// Stats summarizes the outcomes of one Run call.
type Stats struct {
	Passed    int
	Failed    int
	Errors    int
	Cancelled int
}

// ProgressFunc is called after every instance resolves (completed or
// cancelled), for advisory progress reporting. It must not block.
type ProgressFunc func(completed, total int, result runner.InstanceResult)

// Executor runs N instances of a scenario with bounded parallelism P.
type Executor struct {
	run          InstanceRunner
	parallelism  int64
	cancelled    atomic.Bool
	onProgress   ProgressFunc
}

// InstanceRunner executes one scenario instance; satisfied by
// (*runner.Runner).RunInstance via a thin adapter in the caller.
type InstanceRunner func(ctx context.Context, instanceIndex int) runner.InstanceResult

// New constructs an Executor bounded to parallelism concurrent instances.
func New(parallelism int, run InstanceRunner, onProgress ProgressFunc) *Executor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Executor{run: run, parallelism: int64(parallelism), onProgress: onProgress}
}

// Cancel flags the executor to stop scheduling new instances. In-flight
// instances run to completion; unscheduled instances resolve as
// cancelled rather than being silently dropped, so the result count
// always equals n.
func (e *Executor) Cancel() {
	e.cancelled.Store(true)
}

// Run executes n instances with at most e.parallelism in flight at once.
// The returned slice always has length n: completed instances in their
// original index order, interleaved with cancelled placeholders for any
// instance that was never scheduled.
func (e *Executor) Run(ctx context.Context, n int) ([]runner.InstanceResult, Stats) {
	results := make([]runner.InstanceResult, n)
	sem := semaphore.NewWeighted(e.parallelism)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var stats Stats
	completed := 0

	for i := 0; i < n; i++ {
		if e.cancelled.Load() || ctx.Err() != nil {
			results[i] = runner.InstanceResult{Passed: false, Error: "cancelled before scheduling"}
			mu.Lock()
			stats.Cancelled++
			completed++
			if e.onProgress != nil {
				e.onProgress(completed, n, results[i])
			}
			mu.Unlock()
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = runner.InstanceResult{Passed: false, Error: "cancelled before scheduling"}
			mu.Lock()
			stats.Cancelled++
			completed++
			if e.onProgress != nil {
				e.onProgress(completed, n, results[i])
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer sem.Release(1)

			result := e.run(ctx, index)
			results[index] = result

			mu.Lock()
			defer mu.Unlock()
			completed++
			switch {
			case result.Passed:
				stats.Passed++
			case result.PanicError:
				stats.Errors++
			default:
				stats.Failed++
			}
			if e.onProgress != nil {
				e.onProgress(completed, n, result)
			}
		}(i)
	}

	wg.Wait()
	return results, stats
}
