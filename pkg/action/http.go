// Package action implements the HTTP, Wait, and Assert action runners:
// each produces an Observation from a rendered Action plus an instance
// context.
package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/farmanp/windtunnel/pkg/config"
	"github.com/farmanp/windtunnel/pkg/extract"
	"github.com/farmanp/windtunnel/pkg/retry"
	"github.com/farmanp/windtunnel/pkg/scenario"
)

// HTTPDoer is the subset of *http.Client the HTTP action runner needs,
// satisfied by the stdlib client or any httptest-friendly stand-in.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPRunner executes HttpAction steps against the SUT.
type HTTPRunner struct {
	client    HTTPDoer
	extractor *extract.Extractor
}

// NewHTTPRunner constructs an HTTPRunner.
func NewHTTPRunner(client HTTPDoer, extractor *extract.Extractor) *HTTPRunner {
	return &HTTPRunner{client: client, extractor: extractor}
}

// Run executes one rendered HttpAction. sut must already be cloned
// per-instance by the caller (Scenario Runner) so default header
// mutation does not cross-talk between instances.
func (r *HTTPRunner) Run(ctx context.Context, act scenario.Action, sut *config.SUTConfig, wfCtx *scenario.WorkflowContext) *scenario.Observation {
	svc, ok := sut.Services[act.Service]
	if !ok {
		return &scenario.Observation{
			OK:         false,
			ActionName: act.Name,
			Service:    act.Service,
			Errors:     []string{fmt.Sprintf("unknown service %q", act.Service)},
		}
	}

	timeout := svc.Timeout
	if timeout <= 0 {
		timeout = sut.DefaultTimeout
	}

	var attempts []scenario.AttemptRecord
	totalStart := time.Now()

	doOnce := func(ctx context.Context, attemptNum int) (any, error) {
		attemptStart := time.Now()
		statusCode, respHeaders, body, errs, err := r.doRequest(ctx, act, sut, svc, timeout)
		latencyMS := float64(time.Since(attemptStart)) / float64(time.Millisecond)

		ok := err == nil && statusCode >= 200 && statusCode < 300
		record := scenario.AttemptRecord{
			AttemptNumber: attemptNum,
			LatencyMS:     latencyMS,
			StatusCode:    statusCode,
			Body:          body,
			OK:            ok,
		}
		if err != nil {
			record.Error = err.Error()
		} else if len(errs) > 0 {
			record.Error = strings.Join(errs, "; ")
		}
		attempts = append(attempts, record)

		result := &attemptOutcome{statusCode: statusCode, headers: respHeaders, body: body, errors: errs, connErr: err}
		return result, err
	}

	var final *attemptOutcome
	var finalErr error

	if act.Retry != nil {
		statusSet := act.Retry.OnStatusSet()
		policy := retry.Policy{
			MaxAttempts: act.Retry.MaxAttempts,
			Backoff:     mapBackoff(act.Retry.Backoff),
			DelayMS:     act.Retry.DelayMS,
			BaseDelayMS: act.Retry.BaseDelayMS,
			MaxDelayMS:  act.Retry.MaxDelayMS,
			IsRetryable: func(err error) bool {
				if err == nil {
					return false
				}
				if isTimeoutErr(err) {
					return act.Retry.OnTimeout
				}
				return act.Retry.OnConnectionError
			},
			ShouldRetryResult: func(result any) bool {
				out := result.(*attemptOutcome)
				return statusSet[out.statusCode]
			},
		}
		result, err := retry.Do(ctx, policy, doOnce)
		if result != nil {
			final = result.(*attemptOutcome)
		}
		finalErr = err
	} else {
		result, err := doOnce(ctx, 1)
		final, _ = result.(*attemptOutcome)
		finalErr = err
	}

	totalLatencyMS := float64(time.Since(totalStart)) / float64(time.Millisecond)

	obs := &scenario.Observation{
		ActionName: act.Name,
		Service:    act.Service,
		LatencyMS:  totalLatencyMS,
		Attempts:   attempts,
	}

	if final == nil {
		obs.OK = false
		if finalErr != nil {
			obs.Errors = append(obs.Errors, finalErr.Error())
		}
		return obs
	}

	statusCode := final.statusCode
	obs.StatusCode = &statusCode
	obs.Headers = final.headers
	obs.Body = final.body
	obs.Errors = append(obs.Errors, final.errors...)
	obs.OK = final.connErr == nil && statusCode >= 200 && statusCode < 300
	if final.connErr != nil {
		obs.Errors = append(obs.Errors, final.connErr.Error())
	} else if !obs.OK {
		obs.Errors = append(obs.Errors, fmt.Sprintf("HTTP %d: %s", statusCode, http.StatusText(statusCode)))
	}

	if obs.OK && len(act.Extract) > 0 {
		extracted := r.extractor.Extract(final.body, act.Extract)
		for name, value := range extracted {
			wfCtx.Values[name] = value
		}
		for name := range act.Extract {
			if _, found := extracted[name]; !found {
				obs.Errors = append(obs.Errors, fmt.Sprintf("extraction %q did not match any values", name))
			}
		}
	}

	return obs
}

type attemptOutcome struct {
	statusCode int
	headers    map[string]any
	body       any
	errors     []string
	connErr    error
}

func (r *HTTPRunner) doRequest(ctx context.Context, act scenario.Action, sut *config.SUTConfig, svc config.ServiceConfig, timeout time.Duration) (int, map[string]any, any, []string, error) {
	url := svc.BaseURL + act.Path

	var bodyReader io.Reader
	if act.Body != nil {
		encoded, err := json.Marshal(act.Body)
		if err != nil {
			return 0, nil, nil, nil, fmt.Errorf("Request error: failed to encode body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, act.Method, url, bodyReader)
	if err != nil {
		return 0, nil, nil, nil, fmt.Errorf("Request error: %w", err)
	}

	for k, v := range sut.DefaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range svc.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range act.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && act.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if len(act.Query) > 0 {
		q := req.URL.Query()
		for k, v := range act.Query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, nil, nil, classifyConnError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, nil, nil, fmt.Errorf("Request error: failed to read response body: %w", err)
	}

	headers := make(map[string]any, len(resp.Header))
	for k, values := range resp.Header {
		if len(values) == 1 {
			headers[k] = values[0]
		} else {
			asAny := make([]any, len(values))
			for i, v := range values {
				asAny[i] = v
			}
			headers[k] = asAny
		}
	}

	body := parseResponseBody(resp.Header.Get("Content-Type"), raw)
	return resp.StatusCode, headers, body, nil, nil
}

func parseResponseBody(contentType string, raw []byte) any {
	if strings.Contains(contentType, "json") || looksLikeJSON(raw) {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			return parsed
		}
	}
	return string(raw)
}

func looksLikeJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

func classifyConnError(err error) error {
	if isTimeoutErr(err) {
		return fmt.Errorf("Request timeout: %w", err)
	}
	return fmt.Errorf("Connection error: %w", err)
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "timeout")
}

func mapBackoff(b scenario.BackoffKind) retry.Backoff {
	if b == scenario.BackoffExponential {
		return retry.Exponential
	}
	return retry.Fixed
}
