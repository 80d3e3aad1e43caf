package action

import (
	"context"
	"fmt"
	"time"

	"github.com/farmanp/windtunnel/pkg/compare"
	"github.com/farmanp/windtunnel/pkg/config"
	"github.com/farmanp/windtunnel/pkg/extract"
	"github.com/farmanp/windtunnel/pkg/scenario"
)

// WaitRunner polls a service until its Expectation holds or the action
// times out. States: Polling -> (ConditionMet | TimedOut).
type WaitRunner struct {
	client    HTTPDoer
	extractor *extract.Extractor
}

// NewWaitRunner constructs a WaitRunner.
func NewWaitRunner(client HTTPDoer, extractor *extract.Extractor) *WaitRunner {
	return &WaitRunner{client: client, extractor: extractor}
}

// Run polls act.Service/act.Path until act.Expect holds or act.TimeoutMS
// elapses. Unlike the HTTP action runner, Wait does not merge headers
// from the action itself: this asymmetry is intentional per the source
// behavior being preserved.
func (r *WaitRunner) Run(ctx context.Context, act scenario.Action, sut *config.SUTConfig) *scenario.Observation {
	svc, ok := sut.Services[act.Service]
	if !ok {
		return &scenario.Observation{
			OK:         false,
			ActionName: act.Name,
			Service:    act.Service,
			Errors:     []string{fmt.Sprintf("unknown service %q", act.Service)},
		}
	}

	interval := time.Duration(act.IntervalMS) * time.Millisecond
	timeout := time.Duration(act.TimeoutMS) * time.Millisecond

	perPollTimeout := svc.Timeout
	if perPollTimeout <= 0 || perPollTimeout > timeout {
		perPollTimeout = timeout
	}

	start := time.Now()
	var attempts []scenario.AttemptRecord
	var lastStatus int
	var lastBody any

	for attemptNum := 1; ; attemptNum++ {
		elapsed := time.Since(start)
		if elapsed >= timeout {
			return r.timedOut(act, attempts, elapsed, attemptNum-1)
		}

		statusCode, _, body, _, err := r.doRequest(ctx, act, sut, svc, perPollTimeout)
		pollLatencyMS := float64(time.Since(start)-elapsed) / float64(time.Millisecond)

		record := scenario.AttemptRecord{
			AttemptNumber:      attemptNum,
			TimestampFromStart: float64(elapsed) / float64(time.Millisecond),
			LatencyMS:          pollLatencyMS,
			StatusCode:         statusCode,
		}

		conditionMet := false
		if err != nil {
			record.Error = err.Error()
		} else {
			lastStatus, lastBody = statusCode, body
			record.StatusCode = statusCode
			record.Body = body
			conditionMet = r.evaluateCondition(act.Expect, statusCode, body)
			record.ConditionMet = conditionMet
		}
		attempts = append(attempts, record)

		if conditionMet {
			status := lastStatus
			return &scenario.Observation{
				OK:            true,
				ActionName:    act.Name,
				Service:       act.Service,
				StatusCode:    &status,
				Body:          lastBody,
				LatencyMS:     float64(time.Since(start)) / float64(time.Millisecond),
				Attempts:      attempts,
				TotalAttempts: attemptNum,
				TimedOut:      false,
			}
		}

		sleepFor := interval
		if remaining := timeout - time.Since(start); remaining < sleepFor {
			sleepFor = remaining
		}
		if sleepFor <= 0 {
			return r.timedOut(act, attempts, time.Since(start), attemptNum)
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return r.timedOut(act, attempts, time.Since(start), attemptNum)
		case <-timer.C:
		}
	}
}

func (r *WaitRunner) timedOut(act scenario.Action, attempts []scenario.AttemptRecord, elapsed time.Duration, n int) *scenario.Observation {
	return &scenario.Observation{
		OK:            false,
		ActionName:    act.Name,
		Service:       act.Service,
		LatencyMS:     float64(elapsed) / float64(time.Millisecond),
		Attempts:      attempts,
		TotalAttempts: len(attempts),
		TimedOut:      true,
		Errors:        []string{fmt.Sprintf("Timeout after %.1fs (%d attempts)", elapsed.Seconds(), n)},
	}
}

// evaluateCondition applies expect.status_code and expect.jsonpath
// conjunctively; both, when set, must hold.
func (r *WaitRunner) evaluateCondition(expect scenario.Expectation, statusCode int, body any) bool {
	if expect.StatusCode != nil && statusCode != *expect.StatusCode {
		return false
	}
	if expect.JSONPath != "" {
		value, found, err := r.extractor.ResolveFirst(body, expect.JSONPath)
		if err != nil || !found {
			return false
		}
		if expect.Comparator() == "contains" {
			if !compare.Contains(value, expect.Contains) {
				return false
			}
		} else if !compare.Equals(value, expect.Equals) {
			return false
		}
	}
	return true
}

// doRequest polls act.Service/act.Path via the shared request builder,
// but with act.Headers stripped first: Wait actions only ever see
// SUT-default and service-level headers, never action-level ones, so
// the header asymmetry documented on Run is structural rather than a
// matter of scenario authors happening not to set Headers on a wait.
func (r *WaitRunner) doRequest(ctx context.Context, act scenario.Action, sut *config.SUTConfig, svc config.ServiceConfig, timeout time.Duration) (int, map[string]any, any, []string, error) {
	act.Headers = nil
	runner := &HTTPRunner{client: r.client}
	return runner.doRequest(ctx, act, sut, svc, timeout)
}
