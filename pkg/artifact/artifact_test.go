package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/farmanp/windtunnel/pkg/runner"
)

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir, "run-1", Manifest{RunID: "run-1", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	s1.WriteInstance(runner.InstanceResult{InstanceID: "a", Passed: true})
	if err := s1.Finalize(Summary{RunID: "run-1"}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	s2, err := Open(dir, "run-1", Manifest{RunID: "run-1", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	s2.WriteInstance(runner.InstanceResult{InstanceID: "b", Passed: false, Error: "boom"})
	if err := s2.Finalize(Summary{RunID: "run-1"}); err != nil {
		t.Fatalf("second Finalize failed: %v", err)
	}

	results, err := ReadInstances(filepath.Join(dir, "run-1"))
	if err != nil {
		t.Fatalf("ReadInstances failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 appended instance records, got %d", len(results))
	}
}

func TestReadInstancesToleratesTrailingPartialLine(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "run-2")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}

	content := `{"instance_id":"a","passed":true}` + "\n" + `{"instance_id":"b","pass`
	if err := os.WriteFile(filepath.Join(runDir, instancesFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	results, err := ReadInstances(runDir)
	if err != nil {
		t.Fatalf("ReadInstances failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 valid record (partial line skipped), got %d", len(results))
	}
	if results[0].InstanceID != "a" {
		t.Fatalf("expected instance a, got %s", results[0].InstanceID)
	}
}

func TestWriteInstanceArtifactCreatesSideFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "run-3", Manifest{RunID: "run-3", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Finalize(Summary{RunID: "run-3"})

	if err := s.WriteInstanceArtifact("inst-1", "response.json", []byte(`{"big":true}`)); err != nil {
		t.Fatalf("WriteInstanceArtifact failed: %v", err)
	}

	path := filepath.Join(dir, "run-3", "artifacts", "inst-1", "response.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected side file at %s: %v", path, err)
	}
}
