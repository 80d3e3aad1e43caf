package runctl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/farmanp/windtunnel/pkg/config"
)

func writeScenario(t *testing.T, dir, baseURL string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	content := `
id: smoke-test
flow:
  - kind: http
    name: ping
    service: svc
    method: GET
    path: /ping
assertions:
  - name: status-ok
    status_code: 200
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, outputDir, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SUT.Name = "test-sut"
	cfg.SUT.Services = map[string]config.ServiceConfig{
		"svc": {BaseURL: baseURL},
	}
	cfg.Reporting.OutputDir = outputDir
	cfg.Emergency.StopFile = filepath.Join(outputDir, "stop")
	return cfg
}

func TestExecuteHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	scenarioPath := writeScenario(t, dir, srv.URL)
	cfg := testConfig(t, filepath.Join(dir, "runs"), srv.URL)

	c := New(cfg, nil)
	result, err := c.Execute(context.Background(), RunOptions{
		ScenarioPaths: []string{scenarioPath},
		Instances:     3,
		Parallelism:   2,
		BaseSeed:      42,
		RunID:         "test-run",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.State != StateCompleted {
		t.Fatalf("expected StateCompleted, got %s", result.State)
	}
	if result.Summary.TotalInstances != 3 {
		t.Fatalf("expected 3 total instances, got %d", result.Summary.TotalInstances)
	}
	if result.Summary.PassCount != 3 {
		t.Fatalf("expected all 3 instances to pass, got %d", result.Summary.PassCount)
	}
	if result.Summary.PassRate != 100.0 {
		t.Fatalf("expected pass_rate 100.0, got %v", result.Summary.PassRate)
	}
}

func TestExecuteFailsOnMissingScenario(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, filepath.Join(dir, "runs"), "http://example.invalid")

	c := New(cfg, nil)
	result, err := c.Execute(context.Background(), RunOptions{
		ScenarioPaths: []string{filepath.Join(dir, "does-not-exist.yaml")},
		Instances:     1,
		Parallelism:   1,
		RunID:         "test-run-missing",
	})
	if err == nil {
		t.Fatal("expected an error for a missing scenario file")
	}
	if result.State != StateFailed {
		t.Fatalf("expected StateFailed, got %s", result.State)
	}
}

func TestExecuteGeneratesRunIDWhenUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	scenarioPath := writeScenario(t, dir, srv.URL)
	cfg := testConfig(t, filepath.Join(dir, "runs"), srv.URL)

	c := New(cfg, nil)
	result, err := c.Execute(context.Background(), RunOptions{
		ScenarioPaths: []string{scenarioPath},
		Instances:     1,
		Parallelism:   1,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("expected a generated run ID")
	}
}
