package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/farmanp/windtunnel/pkg/artifact"
	"github.com/farmanp/windtunnel/pkg/runner"
)

func seedRun(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store, err := artifact.Open(dir, "run-1", artifact.Manifest{
		RunID:       "run-1",
		Timestamp:   time.Now(),
		ScenarioIDs: []string{"scn-1"},
		Config:      artifact.ManifestConfig{Concurrency: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	store.WriteInstance(runner.InstanceResult{InstanceID: "inst-1", Passed: true, StepsExecuted: 2, AssertionsRun: 1, AssertionsPassed: 1})
	store.WriteInstance(runner.InstanceResult{InstanceID: "inst-2", Passed: false, Error: "boom", StepsExecuted: 1})
	if err := store.Finalize(artifact.Summary{
		RunID:            "run-1",
		CompletedAt:      time.Now(),
		TotalInstances:   2,
		PassCount:        1,
		FailCount:        1,
		PassRate:         50.0,
		TotalAssertions:  1,
		AssertionsPassed: 1,
	}); err != nil {
		t.Fatal(err)
	}
	return store.Dir()
}

func TestLoadReadsManifestSummaryAndInstances(t *testing.T) {
	dir := seedRun(t)

	r, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r.Manifest.RunID != "run-1" {
		t.Fatalf("expected manifest run id run-1, got %s", r.Manifest.RunID)
	}
	if r.Summary.TotalInstances != 2 {
		t.Fatalf("expected 2 total instances in summary, got %d", r.Summary.TotalInstances)
	}
	if len(r.Instances) != 2 {
		t.Fatalf("expected 2 instance records, got %d", len(r.Instances))
	}
}

func TestRenderTextProducesNonEmptyFile(t *testing.T) {
	dir := seedRun(t)
	r, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "report.txt")
	if err := Render(r, FormatText, outPath); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty text report")
	}
}

func TestRenderHTMLProducesNonEmptyFile(t *testing.T) {
	dir := seedRun(t)
	r, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "report.html")
	if err := Render(r, FormatHTML, outPath); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty HTML report")
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	dir := seedRun(t)
	r, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := Render(r, Format("yaml"), filepath.Join(dir, "report.yaml")); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}
