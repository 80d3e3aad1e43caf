package turbulence

import (
	"context"
	"testing"

	"github.com/farmanp/windtunnel/pkg/scenario"
)

func TestApplyNoOpWhenPolicyZero(t *testing.T) {
	e := New(1)
	calls := 0
	_, err := e.Apply(context.Background(), scenario.TurbulencePolicy{}, "inst", "svc", "act", func(ctx context.Context) (*scenario.Observation, error) {
		calls++
		return &scenario.Observation{OK: true}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestApplyRetryStormProducesExactlyKPlus1Attempts(t *testing.T) {
	e := New(1)
	k := 2
	policy := scenario.TurbulencePolicy{RetryCount: &k}

	calls := 0
	obs, _ := e.Apply(context.Background(), policy, "inst", "svc", "act", func(ctx context.Context) (*scenario.Observation, error) {
		calls++
		return &scenario.Observation{OK: false}, nil
	})

	if calls != 3 {
		t.Fatalf("expected 3 calls (k+1), got %d", calls)
	}
	if obs.Turbulence == nil || len(obs.Turbulence.Attempts) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %+v", obs.Turbulence)
	}
}

func TestSampleLatencyDeterministic(t *testing.T) {
	a := sampleLatency(42, "inst-1", "svc", "act", 1, 10, 100)
	b := sampleLatency(42, "inst-1", "svc", "act", 1, 10, 100)
	if a != b {
		t.Fatalf("expected deterministic latency, got %v vs %v", a, b)
	}
	if a < 10 || a > 100 {
		t.Fatalf("latency %v out of configured range [10,100]", a)
	}
}

func TestApplyInjectedTimeoutSynthesizesFailure(t *testing.T) {
	e := New(1)
	timeoutMS := 10
	policy := scenario.TurbulencePolicy{TimeoutMS: &timeoutMS}

	obs, err := e.Apply(context.Background(), policy, "inst", "svc", "act", func(ctx context.Context) (*scenario.Observation, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.OK {
		t.Fatalf("expected synthesized failure")
	}
	if len(obs.Errors) == 0 {
		t.Fatalf("expected a timeout error message")
	}
}
