package validator

import (
	"fmt"
	"strings"

	"github.com/farmanp/windtunnel/pkg/scenario"
)

// Validator validates scenarios before a run starts. Problems are
// accumulated rather than returned on first failure so a single pass can
// report every issue in a scenario document.
type Validator struct {
	Warnings []string
	Errors   []string
}

// New creates a new validator.
func New() *Validator {
	return &Validator{
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}
}

// Validate validates a scenario, returning an error summarizing the count
// of fatal problems found. Use GetReport for the detail.
func (v *Validator) Validate(s *scenario.Scenario) error {
	v.Warnings = make([]string, 0)
	v.Errors = make([]string, 0)

	v.validateIdentity(s)
	v.validateFlow(s)
	v.validateAssertions(s)
	v.validateStopWhen(s)
	v.validateTurbulence(s)
	v.validateVariation(s)

	if len(v.Errors) > 0 {
		return fmt.Errorf("validation failed with %d errors", len(v.Errors))
	}

	return nil
}

// HasWarnings returns true if there are warnings.
func (v *Validator) HasWarnings() bool {
	return len(v.Warnings) > 0
}

// HasErrors returns true if there are errors.
func (v *Validator) HasErrors() bool {
	return len(v.Errors) > 0
}

// GetReport returns a formatted validation report.
func (v *Validator) GetReport() string {
	var sb strings.Builder

	if len(v.Errors) > 0 {
		sb.WriteString("ERRORS:\n")
		for _, err := range v.Errors {
			sb.WriteString(fmt.Sprintf("  - %s\n", err))
		}
	}

	if len(v.Warnings) > 0 {
		sb.WriteString("WARNINGS:\n")
		for _, warn := range v.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

func (v *Validator) validateIdentity(s *scenario.Scenario) {
	if s.ID == "" {
		v.Errors = append(v.Errors, "id is required")
	}
	if len(s.Flow) == 0 {
		v.Errors = append(v.Errors, "flow must have at least one action")
	}
}

func (v *Validator) validateFlow(s *scenario.Scenario) {
	for i, action := range s.Flow {
		prefix := fmt.Sprintf("flow[%d]", i)

		switch action.Kind {
		case scenario.ActionHTTP:
			v.validateHTTPAction(prefix, action)
		case scenario.ActionWait:
			v.validateWaitAction(prefix, action)
		case scenario.ActionAssert:
			v.validateExpectation(prefix+".expect", action.Expect)
		case "":
			v.Errors = append(v.Errors, fmt.Sprintf("%s.kind is required", prefix))
		default:
			v.Errors = append(v.Errors, fmt.Sprintf("%s.kind %q is not one of http, wait, assert", prefix, action.Kind))
		}

		if action.Retry != nil {
			v.validateRetryConfig(prefix+".retry", *action.Retry)
		}
	}
}

func (v *Validator) validateHTTPAction(prefix string, action scenario.Action) {
	if action.Service == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("%s.service is required", prefix))
	}
	if action.Method == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("%s.method is required", prefix))
	}
	if action.Path == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("%s.path is required", prefix))
	}
}

func (v *Validator) validateWaitAction(prefix string, action scenario.Action) {
	if action.Service == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("%s.service is required", prefix))
	}
	if action.IntervalMS <= 0 {
		v.Errors = append(v.Errors, fmt.Sprintf("%s.interval_ms must be positive", prefix))
	}
	if action.TimeoutMS <= 0 {
		v.Errors = append(v.Errors, fmt.Sprintf("%s.timeout_ms must be positive", prefix))
	}
	if action.IntervalMS > 0 && action.TimeoutMS > 0 && action.IntervalMS > action.TimeoutMS {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%s.interval_ms exceeds timeout_ms; only one poll will run", prefix))
	}
	v.validateExpectation(prefix+".expect", action.Expect)
}

func (v *Validator) validateAssertions(s *scenario.Scenario) {
	for i, expect := range s.Assertions {
		v.validateExpectation(fmt.Sprintf("assertions[%d]", i), expect)
	}
}

func (v *Validator) validateExpectation(prefix string, expect scenario.Expectation) {
	if _, err := expect.Selector(); err != nil {
		v.Errors = append(v.Errors, fmt.Sprintf("%s: %v", prefix, err))
		return
	}

	switch {
	case expect.JSONPath != "", expect.ContextPath != "":
		if expect.Comparator() == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("%s requires an equals or contains comparator", prefix))
		}
	}
}

func (v *Validator) validateRetryConfig(prefix string, r scenario.RetryConfig) {
	if r.MaxAttempts < 1 {
		v.Errors = append(v.Errors, fmt.Sprintf("%s.max_attempts must be at least 1", prefix))
	}
	switch r.Backoff {
	case scenario.BackoffFixed, "":
	case scenario.BackoffExponential:
		if r.BaseDelayMS <= 0 {
			v.Errors = append(v.Errors, fmt.Sprintf("%s.base_delay_ms is required for exponential backoff", prefix))
		}
	default:
		v.Errors = append(v.Errors, fmt.Sprintf("%s.backoff %q is not one of fixed, exponential", prefix, r.Backoff))
	}
	if !r.OnTimeout && !r.OnConnectionError && len(r.OnStatus) == 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%s has no retryable condition; it will never retry", prefix))
	}
}

func (v *Validator) validateStopWhen(s *scenario.Scenario) {
	// Zero-value StopWhen is valid: it means "run the whole flow regardless
	// of failures", so there is nothing to check beyond the type system.
	_ = s.StopWhen
}

func (v *Validator) validateTurbulence(s *scenario.Scenario) {
	if s.Turbulence == nil {
		return
	}
	for name, policy := range s.Turbulence.Service {
		v.validateTurbulencePolicy("turbulence.service["+name+"]", policy)
	}
	for name, policy := range s.Turbulence.Action {
		v.validateTurbulencePolicy("turbulence.action["+name+"]", policy)
	}
	if s.Turbulence.Global != nil {
		v.validateTurbulencePolicy("turbulence.global", *s.Turbulence.Global)
	}
}

func (v *Validator) validateTurbulencePolicy(prefix string, p scenario.TurbulencePolicy) {
	if p.Latency != nil && p.Latency.Min > p.Latency.Max {
		v.Errors = append(v.Errors, fmt.Sprintf("%s.latency.min must be <= latency.max", prefix))
	}
	if p.RetryCount != nil && *p.RetryCount < 0 {
		v.Errors = append(v.Errors, fmt.Sprintf("%s.retry_count must be >= 0", prefix))
	}
}

func (v *Validator) validateVariation(s *scenario.Scenario) {
	if s.Variation == nil {
		return
	}
	for name, param := range s.Variation.Parameters {
		hasChoice := len(param.Choice) > 0
		hasRange := len(param.Range) > 0
		if hasChoice == hasRange {
			v.Errors = append(v.Errors, fmt.Sprintf("variation.parameters[%s] must set exactly one of choice, range", name))
			continue
		}
		if hasRange && len(param.Range) != 2 {
			v.Errors = append(v.Errors, fmt.Sprintf("variation.parameters[%s].range must have exactly 2 elements", name))
		}
	}
	for i, toggle := range s.Variation.Toggles {
		if toggle.Name == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("variation.toggles[%d].name is required", i))
		}
		if toggle.Probability < 0 || toggle.Probability > 1 {
			v.Errors = append(v.Errors, fmt.Sprintf("variation.toggles[%d].probability must be in [0,1]", i))
		}
	}
}
