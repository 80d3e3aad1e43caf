// Package turbulence implements the Turbulence Engine: resolves layered
// fault policies (latency injection, forced timeout, retry storm) and
// applies them around one action execution.
package turbulence

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/farmanp/windtunnel/pkg/scenario"
)

// Engine applies a resolved TurbulencePolicy around action executions for
// one instance.
type Engine struct {
	baseSeed int64
}

// New constructs an Engine for one instance's base seed.
func New(baseSeed int64) *Engine {
	return &Engine{baseSeed: baseSeed}
}

// Execute is the operation being wrapped: run the action once and produce
// its Observation.
type Execute func(ctx context.Context) (*scenario.Observation, error)

// Apply runs policy's attempt loop around execute. It always returns the
// last attempt's Observation, regardless of success, with the turbulence
// attempt log attached. If policy is the zero value, the engine is a
// no-op: execute runs exactly once with no latency or timeout injection,
// and no turbulence field is attached.
func (e *Engine) Apply(ctx context.Context, policy scenario.TurbulencePolicy, instanceID, service, action string, execute Execute) (*scenario.Observation, error) {
	if policy.IsZero() {
		return execute(ctx)
	}

	attempts := 1
	if policy.RetryCount != nil {
		attempts = 1 + *policy.RetryCount
	}

	var lastObs *scenario.Observation
	var lastErr error
	var records []scenario.TurbulenceAttempt

	for attempt := 1; attempt <= attempts; attempt++ {
		var injectedMS float64
		if policy.Latency != nil {
			injectedMS = sampleLatency(e.baseSeed, instanceID, service, action, attempt, policy.Latency.Min, policy.Latency.Max)
			sleep(ctx, time.Duration(injectedMS)*time.Millisecond)
		}

		obs, err := e.runOneAttempt(ctx, policy, execute)
		lastObs, lastErr = obs, err

		record := scenario.TurbulenceAttempt{InjectedLatencyMS: injectedMS}
		if obs != nil {
			record.OK = obs.OK
			record.LatencyMS = obs.LatencyMS
			if obs.StatusCode != nil {
				record.StatusCode = *obs.StatusCode
			}
			record.Errors = obs.Errors
		}
		records = append(records, record)
	}

	if lastObs != nil {
		lastObs.Turbulence = &scenario.TurbulenceOutcome{Attempts: records}
	}
	return lastObs, lastErr
}

func (e *Engine) runOneAttempt(ctx context.Context, policy scenario.TurbulencePolicy, execute Execute) (*scenario.Observation, error) {
	if policy.TimeoutMS == nil {
		return execute(ctx)
	}

	deadline := time.Duration(*policy.TimeoutMS) * time.Millisecond
	attemptCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		obs *scenario.Observation
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		obs, err := execute(attemptCtx)
		done <- outcome{obs, err}
	}()

	select {
	case <-attemptCtx.Done():
		return &scenario.Observation{
			OK:        false,
			LatencyMS: float64(time.Since(start)) / float64(time.Millisecond),
			Errors:    []string{fmt.Sprintf("Injected timeout after %dms", *policy.TimeoutMS)},
		}, nil
	case out := <-done:
		return out.obs, out.err
	}
}

// sampleLatency derives a deterministic injected latency from
// (base_seed, instance_id, service, action, attempt) so the same inputs
// reproduce the same fault across language implementations: SHA-256 of
// the colon-joined UTF-8 string "seed:instance:service:action:attempt",
// first 32 bits divided by 2^32-1 to give a fraction in [0,1], scaled into
// [min,max].
func sampleLatency(baseSeed int64, instanceID, service, action string, attempt, min, max int) float64 {
	if max <= min {
		return float64(min)
	}
	key := fmt.Sprintf("%d:%s:%s:%s:%d", baseSeed, instanceID, service, action, attempt)
	sum := sha256.Sum256([]byte(key))
	frac := float64(binary.BigEndian.Uint32(sum[:4])) / float64(^uint32(0))
	return float64(min) + frac*float64(max-min)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
