// Package scenario defines the declarative data model for a workflow
// scenario: the entry seed data, the ordered flow of actions an instance
// walks through, and the post-flow assertions that judge it.
package scenario

import (
	"fmt"
)

// Scenario is an immutable, shared-read-only definition of one user journey.
// It is loaded once and then driven concurrently by many instances.
type Scenario struct {
	ID         string            `yaml:"id"`
	Entry      map[string]any    `yaml:"entry,omitempty"`
	Flow       []Action          `yaml:"flow"`
	Assertions []Expectation     `yaml:"assertions,omitempty"`
	StopWhen   StopWhen          `yaml:"stop_when,omitempty"`
	Turbulence *TurbulenceConfig `yaml:"turbulence,omitempty"`
	Variation  *VariationConfig  `yaml:"variation,omitempty"`

	// SourcePath is the file this scenario was loaded from; carried into
	// WorkflowContext._scenario_path for $ref resolution. Not part of the YAML.
	SourcePath string `yaml:"-"`
}

// StopWhen controls whether the Scenario Runner aborts the remaining flow.
type StopWhen struct {
	AnyActionFails    bool `yaml:"any_action_fails,omitempty"`
	AnyAssertionFails bool `yaml:"any_assertion_fails,omitempty"`
}

// ActionKind discriminates the Action tagged variant.
type ActionKind string

const (
	ActionHTTP   ActionKind = "http"
	ActionWait   ActionKind = "wait"
	ActionAssert ActionKind = "assert"
)

// Action is a tagged variant over HttpAction, WaitAction, and AssertAction.
// Dispatch by Kind happens in exactly one place: the Scenario Runner.
type Action struct {
	Kind ActionKind `yaml:"kind"`
	Name string     `yaml:"name,omitempty"`

	// HttpAction fields
	Service string            `yaml:"service,omitempty"`
	Method  string            `yaml:"method,omitempty"`
	Path    string            `yaml:"path,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Query   map[string]string `yaml:"query,omitempty"`
	Body    any               `yaml:"body,omitempty"`
	Extract map[string]string `yaml:"extract,omitempty"`
	Retry   *RetryConfig      `yaml:"retry,omitempty"`

	// WaitAction fields (Service/Method/Path shared with HttpAction above)
	IntervalMS int         `yaml:"interval_ms,omitempty"`
	TimeoutMS  int         `yaml:"timeout_ms,omitempty"`
	Expect     Expectation `yaml:"expect,omitempty"`

	// AssertAction reuses Expect above.
}

// Expectation is a disjoint selector over how to evaluate an assertion.
// Exactly one selector field should be set; Validate rejects zero selectors.
type Expectation struct {
	Name string `yaml:"name,omitempty"`

	StatusCode  *int    `yaml:"status_code,omitempty"`
	JSONPath    string  `yaml:"jsonpath,omitempty"`
	ContextPath string  `yaml:"context_path,omitempty"`
	JSONSchema  any     `yaml:"json_schema,omitempty"`
	Expression  string  `yaml:"expression,omitempty"`

	Equals   any  `yaml:"equals,omitempty"`
	Contains any  `yaml:"contains,omitempty"`
}

// Selector identifies which disjoint field of the Expectation is in use.
func (e Expectation) Selector() (string, error) {
	switch {
	case e.StatusCode != nil:
		return "status_code", nil
	case e.JSONPath != "":
		return "jsonpath", nil
	case e.ContextPath != "":
		return "context_path", nil
	case e.JSONSchema != nil:
		return "json_schema", nil
	case e.Expression != "":
		return "expression", nil
	default:
		return "", fmt.Errorf("expectation has no selector (status_code, jsonpath, context_path, json_schema, or expression)")
	}
}

// Comparator returns "equals", "contains", or "" if neither is set.
func (e Expectation) Comparator() string {
	if e.Equals != nil {
		return "equals"
	}
	if e.Contains != nil {
		return "contains"
	}
	return ""
}

// BackoffKind selects the Retry Policy's delay schedule.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// RetryConfig wraps an action execution with bounded attempts and a backoff.
type RetryConfig struct {
	MaxAttempts       int         `yaml:"max_attempts"`
	OnStatus          []int       `yaml:"on_status,omitempty"`
	OnTimeout         bool        `yaml:"on_timeout,omitempty"`
	OnConnectionError bool        `yaml:"on_connection_error,omitempty"`
	Backoff           BackoffKind `yaml:"backoff,omitempty"`
	DelayMS           int         `yaml:"delay_ms,omitempty"`
	BaseDelayMS       int         `yaml:"base_delay_ms,omitempty"`
	MaxDelayMS        int         `yaml:"max_delay_ms,omitempty"`
}

// OnStatusSet returns the configured retryable status codes as a set.
func (r RetryConfig) OnStatusSet() map[int]bool {
	set := make(map[int]bool, len(r.OnStatus))
	for _, code := range r.OnStatus {
		set[code] = true
	}
	return set
}

// LatencyRange is a closed interval in milliseconds.
type LatencyRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// TurbulencePolicy is one layer of fault injection: optional latency
// injection, a forced timeout, and a retry-storm attempt count.
type TurbulencePolicy struct {
	Latency     *LatencyRange `yaml:"latency,omitempty"`
	TimeoutMS   *int          `yaml:"timeout_after_ms,omitempty"`
	RetryCount  *int          `yaml:"retry_count,omitempty"`
}

// merge overlays other on top of p, field by field; fields set in other win.
func (p TurbulencePolicy) merge(other *TurbulencePolicy) TurbulencePolicy {
	if other == nil {
		return p
	}
	merged := p
	if other.Latency != nil {
		merged.Latency = other.Latency
	}
	if other.TimeoutMS != nil {
		merged.TimeoutMS = other.TimeoutMS
	}
	if other.RetryCount != nil {
		merged.RetryCount = other.RetryCount
	}
	return merged
}

// IsZero reports whether no field of the policy is set; a zero policy is a
// no-op for the Turbulence Engine.
func (p TurbulencePolicy) IsZero() bool {
	return p.Latency == nil && p.TimeoutMS == nil && p.RetryCount == nil
}

// TurbulenceConfig holds an optional global policy plus per-service and
// per-action overrides. Resolve merges global -> service -> action.
type TurbulenceConfig struct {
	Global  *TurbulencePolicy            `yaml:"global,omitempty"`
	Service map[string]TurbulencePolicy  `yaml:"service,omitempty"`
	Action  map[string]TurbulencePolicy  `yaml:"action,omitempty"`
}

// Resolve merges the three scopes for a given (service, action) pair.
// Field-level merge, not whole-object replace: a field left unset at a
// narrower scope keeps the broader scope's value.
func (c *TurbulenceConfig) Resolve(service, action string) TurbulencePolicy {
	if c == nil {
		return TurbulencePolicy{}
	}
	var merged TurbulencePolicy
	if c.Global != nil {
		merged = *c.Global
	}
	if svcPolicy, ok := c.Service[service]; ok {
		merged = merged.merge(&svcPolicy)
	}
	if actPolicy, ok := c.Action[action]; ok {
		merged = merged.merge(&actPolicy)
	}
	return merged
}

// VariationParam is one per-instance generated parameter: either a
// discrete choice among Choice, or a numeric Range sampled uniformly.
type VariationParam struct {
	Choice []any     `yaml:"choice,omitempty"`
	Range  []float64 `yaml:"range,omitempty"`
}

// VariationToggle samples a boolean with the given probability of true.
type VariationToggle struct {
	Name        string  `yaml:"name"`
	Probability float64 `yaml:"probability"`
}

// VariationTiming configures jitter/delay sampling consumed internally by
// the Scenario Runner; not part of the public template-facing contract.
type VariationTiming struct {
	JitterMS    *[2]int `yaml:"jitter_ms,omitempty"`
	StepDelayMS *[2]int `yaml:"step_delay_ms,omitempty"`
}

// VariationConfig describes the per-instance deterministic input fuzzing
// the Variation Engine samples from (base_seed, instance_index).
type VariationConfig struct {
	Parameters map[string]VariationParam `yaml:"parameters,omitempty"`
	Toggles    []VariationToggle         `yaml:"toggles,omitempty"`
	Timing     *VariationTiming          `yaml:"timing,omitempty"`
}

// WorkflowContext is the per-instance mutable state threaded through the
// Scenario Runner, the Template Renderer, the Extractor, and the Safe
// Expression Evaluator.
type WorkflowContext struct {
	RunID         string `json:"run_id"`
	InstanceID    string `json:"instance_id"`
	CorrelationID string `json:"correlation_id"`

	// Entry is read-only; it is the scenario's entry block with the
	// variation map added under entry.seed_data.variation.
	Entry map[string]any `json:"entry"`

	// Values holds namespaced extracted values for template access.
	Values map[string]any `json:"values"`

	LastResponse *LastResponse `json:"last_response,omitempty"`

	// ScenarioPath records the scenario's source file for $ref resolution.
	ScenarioPath string `json:"_scenario_path,omitempty"`

	AssertionResults []AssertionResult `json:"-"`
	LastAssertion    *AssertionResult  `json:"-"`

	// StepDelayMS / TimingJitterMS are consumed internally by the
	// Scenario Runner between flow steps; not exposed to scenario authors.
	StepDelayMS    int `json:"-"`
	TimingJitterMS int `json:"-"`
}

// LastResponse is the single-slot projection of the most recent HTTP or
// Wait action's outcome.
type LastResponse struct {
	StatusCode int            `json:"status_code"`
	Headers    map[string]any `json:"headers"`
	Body       any            `json:"body"`
}

// NewWorkflowContext builds the initial context for one instance from the
// scenario's entry plus identifiers; the variation map, if any, is merged
// into Entry by the caller before the flow starts.
func NewWorkflowContext(runID, instanceID, correlationID string, entry map[string]any) *WorkflowContext {
	cloned := make(map[string]any, len(entry))
	for k, v := range entry {
		cloned[k] = v
	}
	return &WorkflowContext{
		RunID:         runID,
		InstanceID:    instanceID,
		CorrelationID: correlationID,
		Entry:         cloned,
		Values:        make(map[string]any),
	}
}

// AttemptRecord is one try within an Observation's attempts list: an HTTP
// retry attempt or a Wait action poll.
type AttemptRecord struct {
	AttemptNumber      int    `json:"attempt_number"`
	TimestampFromStart float64 `json:"timestamp_ms_from_start,omitempty"`
	LatencyMS          float64 `json:"latency_ms"`
	StatusCode         int    `json:"status_code,omitempty"`
	Body               any    `json:"body,omitempty"`
	ConditionMet       bool   `json:"condition_met,omitempty"`
	OK                 bool   `json:"ok,omitempty"`
	Error              string `json:"error,omitempty"`
}

// TurbulenceAttempt records one attempt of a turbulence-wrapped execution.
type TurbulenceAttempt struct {
	OK               bool     `json:"ok"`
	StatusCode       int      `json:"status_code,omitempty"`
	LatencyMS        float64  `json:"latency_ms"`
	InjectedLatencyMS float64 `json:"injected_latency_ms"`
	Errors           []string `json:"errors,omitempty"`
}

// TurbulenceOutcome is attached to an Observation when a policy applied.
type TurbulenceOutcome struct {
	Attempts []TurbulenceAttempt `json:"attempts"`
}

// Observation is the universal result of executing one Action.
type Observation struct {
	OK         bool               `json:"ok"`
	StatusCode *int               `json:"status_code,omitempty"`
	LatencyMS  float64            `json:"latency_ms"`
	Headers    map[string]any     `json:"headers,omitempty"`
	Body       any                `json:"body,omitempty"`
	Errors     []string           `json:"errors,omitempty"`
	ActionName string             `json:"action_name"`
	Service    string             `json:"service,omitempty"`
	Turbulence *TurbulenceOutcome `json:"turbulence,omitempty"`
	Attempts   []AttemptRecord    `json:"attempts,omitempty"`

	// Wait-only fields.
	TotalAttempts int  `json:"total_attempts,omitempty"`
	TimedOut      bool `json:"timed_out,omitempty"`
}

// ComparisonKind tags how an AssertionResult was evaluated.
type ComparisonKind string

const (
	ComparisonEquals     ComparisonKind = "equals"
	ComparisonContains   ComparisonKind = "contains"
	ComparisonStatusCode ComparisonKind = "status_code"
	ComparisonSchema     ComparisonKind = "schema"
	ComparisonExpression ComparisonKind = "expression"
)

// AssertionResult records the outcome of evaluating one Expectation.
type AssertionResult struct {
	Name       string         `json:"name"`
	Passed     bool           `json:"passed"`
	Expected   any            `json:"expected,omitempty"`
	Actual     any            `json:"actual,omitempty"`
	Message    string         `json:"message,omitempty"`
	Path       string         `json:"path,omitempty"`
	Comparison ComparisonKind `json:"comparison,omitempty"`
}
