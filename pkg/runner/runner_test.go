package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/farmanp/windtunnel/pkg/config"
	"github.com/farmanp/windtunnel/pkg/scenario"
)

func testSUT(baseURL string) config.SUTConfig {
	return config.SUTConfig{
		Name:           "test",
		DefaultTimeout: 2 * time.Second,
		DefaultHeaders: map[string]string{},
		Services: map[string]config.ServiceConfig{
			"orders": {BaseURL: baseURL},
		},
	}
}

func TestRunInstanceHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": 42, "status": "created"}`))
	}))
	defer srv.Close()

	s := &scenario.Scenario{
		ID: "order-flow",
		Flow: []scenario.Action{
			{
				Kind:    scenario.ActionHTTP,
				Name:    "create-order",
				Service: "orders",
				Method:  http.MethodPost,
				Path:    "/orders",
				Extract: map[string]string{"order_id": "$.id"},
			},
			{
				Kind: scenario.ActionAssert,
				Name: "status-is-ok",
				Expect: scenario.Expectation{
					StatusCode: intPtr(200),
				},
			},
		},
		StopWhen: scenario.StopWhen{AnyActionFails: true, AnyAssertionFails: true},
	}

	r := New(srv.Client(), nil, nil)
	result := r.RunInstance(context.Background(), s, "run-1", 0, 42, testSUT(srv.URL))

	if !result.Passed {
		t.Fatalf("expected instance to pass, got error: %s", result.Error)
	}
	if result.StepsExecuted != 2 {
		t.Fatalf("expected 2 steps executed, got %d", result.StepsExecuted)
	}
	if result.AssertionsRun != 1 || result.AssertionsPassed != 1 {
		t.Fatalf("expected 1/1 assertions passed, got %d/%d", result.AssertionsPassed, result.AssertionsRun)
	}
}

func TestRunInstanceStopsOnActionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := &scenario.Scenario{
		ID: "failing-flow",
		Flow: []scenario.Action{
			{Kind: scenario.ActionHTTP, Name: "call", Service: "orders", Method: http.MethodGet, Path: "/x"},
			{Kind: scenario.ActionAssert, Name: "never-reached", Expect: scenario.Expectation{StatusCode: intPtr(200)}},
		},
		StopWhen: scenario.StopWhen{AnyActionFails: true},
	}

	r := New(srv.Client(), nil, nil)
	result := r.RunInstance(context.Background(), s, "run-2", 0, 42, testSUT(srv.URL))

	if result.Passed {
		t.Fatalf("expected instance to fail")
	}
	if result.StepsExecuted != 1 {
		t.Fatalf("expected early termination after 1 step, got %d", result.StepsExecuted)
	}
}

func TestRunInstanceTemplateRendersPathFromEntry(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := &scenario.Scenario{
		ID:    "templated",
		Entry: map[string]any{"account_id": "acct-7"},
		Flow: []scenario.Action{
			{Kind: scenario.ActionHTTP, Name: "fetch", Service: "orders", Method: http.MethodGet, Path: "/accounts/{{entry.account_id}}"},
		},
	}

	r := New(srv.Client(), nil, nil)
	r.RunInstance(context.Background(), s, "run-3", 0, 1, testSUT(srv.URL))

	if gotPath != "/accounts/acct-7" {
		t.Fatalf("expected rendered path /accounts/acct-7, got %s", gotPath)
	}
}

func intPtr(v int) *int { return &v }
