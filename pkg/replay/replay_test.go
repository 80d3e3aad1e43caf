package replay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/farmanp/windtunnel/pkg/artifact"
	"github.com/farmanp/windtunnel/pkg/config"
	"github.com/farmanp/windtunnel/pkg/runner"
	"github.com/farmanp/windtunnel/pkg/scenario"
)

func TestReplayReturnsInstanceNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := artifact.Open(dir, "run-1", artifact.Manifest{RunID: "run-1", Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	store.Finalize(artifact.Summary{RunID: "run-1"})

	e := New(http.DefaultClient, func(id string) (*scenario.Scenario, error) { return nil, nil })
	_, err = e.Replay(context.Background(), store.Dir(), "missing-instance", config.SUTConfig{})

	var notFound *InstanceNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected InstanceNotFoundError, got %T: %v", err, err)
	}
}

func TestReplayDiffsStepsAgainstOriginal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := artifact.Open(dir, "run-2", artifact.Manifest{RunID: "run-2", Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}

	store.WriteInstance(runner.InstanceResult{InstanceID: "inst-1", ScenarioID: "scn-1", CorrelationID: "corr-1", Passed: true})
	status := 200
	store.WriteStep("run-2", runner.StepRecord{
		RunID: "run-2", InstanceID: "inst-1", StepIndex: 0, StepName: "call", StepType: scenario.ActionHTTP,
		Observation: &scenario.Observation{OK: true, StatusCode: &status},
	})
	store.Finalize(artifact.Summary{RunID: "run-2"})

	s := &scenario.Scenario{
		ID: "scn-1",
		Flow: []scenario.Action{
			{Kind: scenario.ActionHTTP, Name: "call", Service: "svc", Method: http.MethodGet, Path: "/ping"},
		},
	}
	loader := func(id string) (*scenario.Scenario, error) {
		if id == "scn-1" {
			return s, nil
		}
		return nil, nil
	}

	sut := config.SUTConfig{
		DefaultHeaders: map[string]string{},
		Services:       map[string]config.ServiceConfig{"svc": {BaseURL: srv.URL}},
	}

	e := New(srv.Client(), loader)
	result, err := e.Replay(context.Background(), store.Dir(), "inst-1", sut)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected replay to match original, diffs: %+v", result.Steps)
	}
	if len(result.Steps) != 1 || !result.Steps[0].Matches {
		t.Fatalf("expected 1 matching step diff, got %+v", result.Steps)
	}
}
