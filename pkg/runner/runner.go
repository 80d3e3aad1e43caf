// Package runner implements the Scenario Runner: the per-instance step
// machine that walks a Scenario's flow, threading a WorkflowContext
// through the HTTP, Wait, and Assert action runners and streaming each
// step's Observation to an artifact sink.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/farmanp/windtunnel/pkg/action"
	"github.com/farmanp/windtunnel/pkg/config"
	"github.com/farmanp/windtunnel/pkg/extract"
	"github.com/farmanp/windtunnel/pkg/logging"
	"github.com/farmanp/windtunnel/pkg/scenario"
	"github.com/farmanp/windtunnel/pkg/template"
	"github.com/farmanp/windtunnel/pkg/turbulence"
	"github.com/farmanp/windtunnel/pkg/variation"
)

// Sink receives step-level and assertion-level observations as an instance
// runs, for streaming persistence; implemented by pkg/artifact.Store.
type Sink interface {
	WriteStep(runID string, record StepRecord)
	WriteAssertion(runID string, record AssertionRecord)
}

// StepRecord is one flow step's outcome, ready for JSONL serialization.
type StepRecord struct {
	InstanceID    string                `json:"instance_id"`
	RunID         string                `json:"run_id"`
	CorrelationID string                `json:"correlation_id"`
	StepIndex     int                   `json:"step_index"`
	StepName      string                `json:"step_name"`
	StepType      scenario.ActionKind   `json:"step_type"`
	Timestamp     time.Time             `json:"timestamp"`
	Observation   *scenario.Observation `json:"observation"`
}

// AssertionRecord is one assertion's outcome, ready for JSONL serialization.
type AssertionRecord struct {
	InstanceID    string    `json:"instance_id"`
	RunID         string    `json:"run_id"`
	CorrelationID string    `json:"correlation_id"`
	StepIndex     int       `json:"step_index"`
	AssertionName string    `json:"assertion_name"`
	Passed        bool      `json:"passed"`
	Expected      any       `json:"expected,omitempty"`
	Actual        any       `json:"actual,omitempty"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// InstanceResult is the outcome of running one instance of a scenario to
// completion (or early termination).
type InstanceResult struct {
	InstanceID    string         `json:"instance_id"`
	RunID         string         `json:"run_id"`
	CorrelationID string         `json:"correlation_id"`
	ScenarioID    string         `json:"scenario_id"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at"`
	DurationMS    float64        `json:"duration_ms"`
	Passed        bool           `json:"passed"`
	Error         string         `json:"error,omitempty"`
	EntryData     map[string]any `json:"entry_data,omitempty"`

	StepsExecuted    int `json:"steps_executed"`
	AssertionsRun    int `json:"assertions_run"`
	AssertionsPassed int `json:"assertions_passed"`

	// PanicError marks a result that failed via a recovered panic rather
	// than an ordinary assertion/action failure, so the Parallel Executor
	// can route it to the errors bucket instead of the failed bucket.
	PanicError bool `json:"-"`
}

// Runner drives one instance of a Scenario through its flow and
// post-flow assertions.
type Runner struct {
	httpRunner   *action.HTTPRunner
	waitRunner   *action.WaitRunner
	assertRunner *action.AssertRunner
	log          *logging.Logger
	sink         Sink
}

// New constructs a Runner. client is the HTTP doer shared across
// instances; log and sink may be nil.
func New(client action.HTTPDoer, log *logging.Logger, sink Sink) *Runner {
	extractor := extract.New(log)
	return &Runner{
		httpRunner:   action.NewHTTPRunner(client, extractor),
		waitRunner:   action.NewWaitRunner(client, extractor),
		assertRunner: action.NewAssertRunner(extractor),
		log:          log,
		sink:         sink,
	}
}

// RunInstance executes one instance of s. runID identifies the overall
// run; instanceIndex selects this instance's deterministic variation.
// Turbulence latency is keyed by baseSeed and the instance ID generated
// here. sut must be the run-level SUT config; RunInstance
// clones it so per-instance header mutation does not cross-talk.
func (r *Runner) RunInstance(ctx context.Context, s *scenario.Scenario, runID string, instanceIndex int, baseSeed int64, sut config.SUTConfig) (result InstanceResult) {
	start := time.Now()
	instanceID := uuid.NewString()
	correlationID := fmt.Sprintf("%s-%s", runID, instanceID)

	result = InstanceResult{
		InstanceID:    instanceID,
		RunID:         runID,
		CorrelationID: correlationID,
		ScenarioID:    s.ID,
		StartedAt:     start,
		Passed:        true,
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.Passed = false
			result.Error = fmt.Sprintf("panic: %v", rec)
			result.PanicError = true
		}
		result.CompletedAt = time.Now()
		result.DurationMS = float64(result.CompletedAt.Sub(start)) / float64(time.Millisecond)
	}()

	varEngine := variation.New(s.Variation, baseSeed)
	varMap := varEngine.Generate(instanceIndex)
	turbEngine := turbulence.New(baseSeed)

	instanceSUT := sut.Clone()
	instanceSUT.DefaultHeaders["X-Correlation-ID"] = correlationID

	entry := make(map[string]any, len(s.Entry)+1)
	for k, v := range s.Entry {
		entry[k] = v
	}
	seedData := make(map[string]any)
	if existing, ok := s.Entry["seed_data"].(map[string]any); ok {
		for k, v := range existing {
			seedData[k] = v
		}
	}
	seedData["variation"] = varMap
	entry["seed_data"] = seedData
	result.EntryData = entry

	wfCtx := scenario.NewWorkflowContext(runID, instanceID, correlationID, entry)
	wfCtx.ScenarioPath = s.SourcePath
	if v, ok := varMap["_step_delay_ms"].(int); ok {
		wfCtx.StepDelayMS = v
	}
	if v, ok := varMap["_timing_jitter_ms"].(int); ok {
		wfCtx.TimingJitterMS = v
	}

	for i, act := range s.Flow {
		if i > 0 && (wfCtx.StepDelayMS > 0 || wfCtx.TimingJitterMS > 0) {
			if err := sleepStepDelay(ctx, wfCtx.StepDelayMS, wfCtx.TimingJitterMS); err != nil {
				result.Passed = false
				result.Error = "cancelled during step delay"
				return result
			}
		}

		obs, assertResult := r.runStep(ctx, act, &instanceSUT, wfCtx, turbEngine, s.Turbulence, instanceID)
		result.StepsExecuted++

		r.streamStep(runID, instanceID, correlationID, i, act, obs)
		if assertResult != nil {
			result.AssertionsRun++
			if assertResult.Passed {
				result.AssertionsPassed++
			}
			r.streamAssertion(runID, instanceID, correlationID, i, assertResult)
		}

		if obs != nil && !obs.OK {
			if act.Kind == scenario.ActionAssert && s.StopWhen.AnyAssertionFails {
				result.Passed = false
				result.Error = fmt.Sprintf("assertion %q failed", act.Name)
				return result
			}
			if act.Kind != scenario.ActionAssert && s.StopWhen.AnyActionFails {
				result.Passed = false
				result.Error = fmt.Sprintf("action %q failed", act.Name)
				return result
			}
		}
	}

	postFlowIndex := len(s.Flow)
	for _, expect := range s.Assertions {
		_, assertResult := r.assertRunner.Run(expect, wfCtx)
		result.AssertionsRun++
		if assertResult.Passed {
			result.AssertionsPassed++
		} else if s.StopWhen.AnyAssertionFails {
			result.Passed = false
			result.Error = fmt.Sprintf("post-flow assertion %q failed", expect.Name)
		}
		r.streamAssertion(runID, instanceID, correlationID, postFlowIndex, assertResult)
	}

	return result
}

// runStep renders one Action against wfCtx and dispatches to the
// matching action runner, wrapping HTTP/Wait actions in the turbulence
// policy resolved for (service, action.Name) when the scenario declares one.
func (r *Runner) runStep(ctx context.Context, act scenario.Action, sut *config.SUTConfig, wfCtx *scenario.WorkflowContext, turbEngine *turbulence.Engine, turbCfg *scenario.TurbulenceConfig, instanceID string) (*scenario.Observation, *scenario.AssertionResult) {
	rendered, err := renderAction(act, wfCtx)
	if err != nil {
		return &scenario.Observation{OK: false, ActionName: act.Name, Errors: []string{err.Error()}}, nil
	}

	switch rendered.Kind {
	case scenario.ActionHTTP:
		policy := turbCfg.Resolve(rendered.Service, rendered.Name)
		execute := turbulence.Execute(func(ctx context.Context) (*scenario.Observation, error) {
			return r.httpRunner.Run(ctx, rendered, sut, wfCtx), nil
		})
		obs, _ := turbEngine.Apply(ctx, policy, instanceID, rendered.Service, rendered.Name, execute)
		updateLastResponse(wfCtx, obs)
		return obs, nil

	case scenario.ActionWait:
		policy := turbCfg.Resolve(rendered.Service, rendered.Name)
		execute := turbulence.Execute(func(ctx context.Context) (*scenario.Observation, error) {
			return r.waitRunner.Run(ctx, rendered, sut), nil
		})
		obs, _ := turbEngine.Apply(ctx, policy, instanceID, rendered.Service, rendered.Name, execute)
		updateLastResponse(wfCtx, obs)
		return obs, nil

	case scenario.ActionAssert:
		obs, assertResult := r.assertRunner.Run(rendered.Expect, wfCtx)
		return obs, assertResult

	default:
		return &scenario.Observation{OK: false, ActionName: act.Name, Errors: []string{fmt.Sprintf("unknown action kind %q", rendered.Kind)}}, nil
	}
}

func updateLastResponse(wfCtx *scenario.WorkflowContext, obs *scenario.Observation) {
	if obs == nil || obs.StatusCode == nil {
		return
	}
	wfCtx.LastResponse = &scenario.LastResponse{
		StatusCode: *obs.StatusCode,
		Headers:    obs.Headers,
		Body:       obs.Body,
	}
}

func (r *Runner) streamStep(runID, instanceID, correlationID string, index int, act scenario.Action, obs *scenario.Observation) {
	if r.sink == nil || obs == nil {
		return
	}
	r.sink.WriteStep(runID, StepRecord{
		InstanceID:    instanceID,
		RunID:         runID,
		CorrelationID: correlationID,
		StepIndex:     index,
		StepName:      act.Name,
		StepType:      act.Kind,
		Timestamp:     time.Now(),
		Observation:   obs,
	})
}

func (r *Runner) streamAssertion(runID, instanceID, correlationID string, stepIndex int, result *scenario.AssertionResult) {
	if r.sink == nil || result == nil {
		return
	}
	r.sink.WriteAssertion(runID, AssertionRecord{
		InstanceID:    instanceID,
		RunID:         runID,
		CorrelationID: correlationID,
		StepIndex:     stepIndex,
		AssertionName: result.Name,
		Passed:        result.Passed,
		Expected:      result.Expected,
		Actual:        result.Actual,
		Message:       result.Message,
		Timestamp:     time.Now(),
	})
}

// renderAction applies the Template Renderer to act's Path, Body, Headers
// and Query against wfCtx's entry/values/last_response context. Other
// fields, including the assertion Expectation, are used as written.
func renderAction(act scenario.Action, wfCtx *scenario.WorkflowContext) (scenario.Action, error) {
	ctx := map[string]any{
		"entry":          wfCtx.Entry,
		"run_id":         wfCtx.RunID,
		"instance_id":    wfCtx.InstanceID,
		"correlation_id": wfCtx.CorrelationID,
	}
	// Extracted values are namespaced at the top level for template
	// access (e.g. {{order_id}}), matching contextAsMap's shape.
	for name, value := range wfCtx.Values {
		ctx[name] = value
	}
	if wfCtx.LastResponse != nil {
		ctx["last_response"] = map[string]any{
			"status_code": wfCtx.LastResponse.StatusCode,
			"headers":     wfCtx.LastResponse.Headers,
			"body":        wfCtx.LastResponse.Body,
		}
	}

	out := act

	if act.Path != "" {
		rendered, err := template.Render(act.Path, ctx)
		if err != nil {
			return out, err
		}
		out.Path, _ = rendered.(string)
	}

	if act.Body != nil {
		rendered, err := renderAny(act.Body, ctx)
		if err != nil {
			return out, err
		}
		out.Body = rendered
	}

	if len(act.Headers) > 0 {
		headers := make(map[string]string, len(act.Headers))
		for k, v := range act.Headers {
			rendered, err := template.Render(v, ctx)
			if err != nil {
				return out, err
			}
			headers[k] = stringifyHeader(rendered)
		}
		out.Headers = headers
	}

	if len(act.Query) > 0 {
		query := make(map[string]string, len(act.Query))
		for k, v := range act.Query {
			rendered, err := template.Render(v, ctx)
			if err != nil {
				return out, err
			}
			query[k] = stringifyHeader(rendered)
		}
		out.Query = query
	}

	return out, nil
}

// renderAny converts a YAML-decoded body (map[string]any/[]any/scalars)
// through the Template Renderer; map[any]any nodes are normalized first.
func renderAny(body any, ctx map[string]any) (any, error) {
	return template.Render(normalizeYAML(body), ctx)
}

func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeYAML(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeYAML(elem)
		}
		return out
	default:
		return v
	}
}

func stringifyHeader(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func sleepStepDelay(ctx context.Context, baseMS, jitterMS int) error {
	total := time.Duration(baseMS) * time.Millisecond
	if jitterMS > 0 {
		total += time.Duration(jitterMS) * time.Millisecond
	}
	if total <= 0 {
		return nil
	}
	timer := time.NewTimer(total)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
