package action

import (
	"fmt"
	"strings"

	"github.com/farmanp/windtunnel/pkg/compare"
	"github.com/farmanp/windtunnel/pkg/expr"
	"github.com/farmanp/windtunnel/pkg/extract"
	"github.com/farmanp/windtunnel/pkg/jsonschema"
	"github.com/farmanp/windtunnel/pkg/scenario"
)

// AssertRunner evaluates an Expectation against an instance's context.
type AssertRunner struct {
	extractor *extract.Extractor
}

// NewAssertRunner constructs an AssertRunner.
func NewAssertRunner(extractor *extract.Extractor) *AssertRunner {
	return &AssertRunner{extractor: extractor}
}

// Run evaluates expect against wfCtx, returning an Observation and an
// AssertionResult; the result is also appended to wfCtx.AssertionResults
// and cached as wfCtx.LastAssertion for durable logging by the Scenario
// Runner.
func (r *AssertRunner) Run(expect scenario.Expectation, wfCtx *scenario.WorkflowContext) (*scenario.Observation, *scenario.AssertionResult) {
	result := r.evaluate(expect, wfCtx)
	wfCtx.AssertionResults = append(wfCtx.AssertionResults, *result)
	wfCtx.LastAssertion = result

	obs := &scenario.Observation{
		OK:         result.Passed,
		ActionName: expect.Name,
	}
	if !result.Passed {
		obs.Errors = []string{result.Message}
	}
	return obs, result
}

// evaluate applies the decision order from the Assert Action Runner: the
// first matching selector on Expectation wins.
func (r *AssertRunner) evaluate(expect scenario.Expectation, wfCtx *scenario.WorkflowContext) *scenario.AssertionResult {
	selector, err := expect.Selector()
	if err != nil {
		return &scenario.AssertionResult{Name: expect.Name, Passed: false, Message: err.Error()}
	}

	switch selector {
	case "status_code":
		return r.evalStatusCode(expect, wfCtx)
	case "jsonpath":
		return r.evalJSONPath(expect, wfCtx)
	case "context_path":
		return r.evalContextPath(expect, wfCtx)
	case "json_schema":
		return r.evalJSONSchema(expect, wfCtx)
	case "expression":
		return r.evalExpression(expect, wfCtx)
	default:
		return &scenario.AssertionResult{Name: expect.Name, Passed: false, Message: fmt.Sprintf("unknown selector %q", selector)}
	}
}

func (r *AssertRunner) evalStatusCode(expect scenario.Expectation, wfCtx *scenario.WorkflowContext) *scenario.AssertionResult {
	var actual int
	if wfCtx.LastResponse != nil {
		actual = wfCtx.LastResponse.StatusCode
	}
	passed := actual == *expect.StatusCode
	return &scenario.AssertionResult{
		Name:       expect.Name,
		Passed:     passed,
		Expected:   float64(*expect.StatusCode),
		Actual:     float64(actual),
		Message:    statusMessage(passed, *expect.StatusCode, actual),
		Comparison: scenario.ComparisonStatusCode,
	}
}

func statusMessage(passed bool, expected, actual int) string {
	if passed {
		return fmt.Sprintf("status_code %d matches", actual)
	}
	return fmt.Sprintf("status_code %d does not match expected %d", actual, expected)
}

func (r *AssertRunner) evalJSONPath(expect scenario.Expectation, wfCtx *scenario.WorkflowContext) *scenario.AssertionResult {
	var body any
	if wfCtx.LastResponse != nil {
		body = wfCtx.LastResponse.Body
	}

	value, found, err := r.extractor.ResolveFirst(body, expect.JSONPath)
	if err != nil {
		return &scenario.AssertionResult{Name: expect.Name, Passed: false, Path: expect.JSONPath, Message: err.Error(), Comparison: comparisonFor(expect)}
	}
	if !found {
		return &scenario.AssertionResult{Name: expect.Name, Passed: false, Path: expect.JSONPath, Message: fmt.Sprintf("jsonpath %q did not match", expect.JSONPath), Comparison: comparisonFor(expect)}
	}

	return compareAgainst(expect, value, expect.JSONPath)
}

func (r *AssertRunner) evalContextPath(expect scenario.Expectation, wfCtx *scenario.WorkflowContext) *scenario.AssertionResult {
	value, found := resolveContextPath(expect.ContextPath, wfCtx)
	if !found {
		return &scenario.AssertionResult{Name: expect.Name, Passed: false, Path: expect.ContextPath, Message: fmt.Sprintf("context path %q is missing", expect.ContextPath), Comparison: comparisonFor(expect)}
	}
	return compareAgainst(expect, value, expect.ContextPath)
}

func (r *AssertRunner) evalJSONSchema(expect scenario.Expectation, wfCtx *scenario.WorkflowContext) *scenario.AssertionResult {
	var body any
	if wfCtx.LastResponse != nil {
		body = wfCtx.LastResponse.Body
	}

	if err := jsonschema.Validate(expect.JSONSchema, body, wfCtx.ScenarioPath); err != nil {
		return &scenario.AssertionResult{Name: expect.Name, Passed: false, Message: err.Error(), Comparison: scenario.ComparisonSchema}
	}
	return &scenario.AssertionResult{Name: expect.Name, Passed: true, Message: "matches schema", Comparison: scenario.ComparisonSchema}
}

func (r *AssertRunner) evalExpression(expect scenario.Expectation, wfCtx *scenario.WorkflowContext) *scenario.AssertionResult {
	var body any
	var headers any
	if wfCtx.LastResponse != nil {
		body = wfCtx.LastResponse.Body
		headers = wfCtx.LastResponse.Headers
	}

	passed, err := expr.EvalBool(expect.Expression, body, headers, contextAsMap(wfCtx), 0)
	if err != nil {
		return &scenario.AssertionResult{Name: expect.Name, Passed: false, Message: err.Error(), Comparison: scenario.ComparisonExpression}
	}
	return &scenario.AssertionResult{Name: expect.Name, Passed: passed, Message: expressionMessage(passed), Comparison: scenario.ComparisonExpression}
}

func expressionMessage(passed bool) string {
	if passed {
		return "expression evaluated truthy"
	}
	return "expression evaluated falsy"
}

func comparisonFor(expect scenario.Expectation) scenario.ComparisonKind {
	if expect.Comparator() == "contains" {
		return scenario.ComparisonContains
	}
	return scenario.ComparisonEquals
}

func compareAgainst(expect scenario.Expectation, actual any, path string) *scenario.AssertionResult {
	comparison := comparisonFor(expect)
	var passed bool
	var expected any
	if comparison == scenario.ComparisonContains {
		expected = expect.Contains
		passed = compare.Contains(actual, expected)
	} else {
		expected = expect.Equals
		passed = compare.Equals(actual, expected)
	}

	message := fmt.Sprintf("%s: actual=%v expected=%v", comparison, actual, expected)
	return &scenario.AssertionResult{
		Name:       expect.Name,
		Passed:     passed,
		Expected:   expected,
		Actual:     actual,
		Path:       path,
		Message:    message,
		Comparison: comparison,
	}
}

// resolveContextPath walks a dotted path against the workflow context,
// distinguishing "missing" from "present but nil".
func resolveContextPath(path string, wfCtx *scenario.WorkflowContext) (any, bool) {
	root := map[string]any{
		"entry":         wfCtx.Entry,
		"run_id":        wfCtx.RunID,
		"instance_id":   wfCtx.InstanceID,
		"correlation_id": wfCtx.CorrelationID,
	}
	for name, value := range wfCtx.Values {
		root[name] = value
	}
	if wfCtx.LastResponse != nil {
		root["last_response"] = map[string]any{
			"status_code": wfCtx.LastResponse.StatusCode,
			"headers":     wfCtx.LastResponse.Headers,
			"body":        wfCtx.LastResponse.Body,
		}
	}

	segments := strings.Split(path, ".")
	var current any = root
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := m[seg]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}

func contextAsMap(wfCtx *scenario.WorkflowContext) map[string]any {
	root := map[string]any{
		"entry":          wfCtx.Entry,
		"run_id":         wfCtx.RunID,
		"instance_id":    wfCtx.InstanceID,
		"correlation_id": wfCtx.CorrelationID,
	}
	for name, value := range wfCtx.Values {
		root[name] = value
	}
	if wfCtx.LastResponse != nil {
		root["last_response"] = map[string]any{
			"status_code": wfCtx.LastResponse.StatusCode,
			"headers":     wfCtx.LastResponse.Headers,
			"body":        wfCtx.LastResponse.Body,
		}
	}
	return root
}
