// Package artifact implements the Artifact Store: an append-only JSONL
// sink for per-instance, per-step, and per-assertion records, plus a
// manifest and a final summary written at run finalization.
package artifact

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/farmanp/windtunnel/pkg/runner"
)

const (
	instancesFile  = "instances.jsonl"
	stepsFile      = "steps.jsonl"
	assertionsFile = "assertions.jsonl"
	manifestFile   = "manifest.json"
	summaryFile    = "summary.json"
)

// ManifestVersion tags the shape of manifest.json/summary.json/the JSONL
// streams, so a future incompatible change can be detected by a reader.
const ManifestVersion = "1"

// Manifest describes a run's identity, written once at initialization.
type Manifest struct {
	RunID       string         `json:"run_id"`
	Timestamp   time.Time      `json:"timestamp"`
	SUTName     string         `json:"sut_name"`
	ScenarioIDs []string       `json:"scenario_ids"`
	Seed        int64          `json:"seed"`
	Config      ManifestConfig `json:"config"`
	Version     string         `json:"version"`
}

// ManifestConfig records the execution parameters a run was started with.
type ManifestConfig struct {
	Seed           int64   `json:"seed"`
	Concurrency    int     `json:"concurrency"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// Summary is written once at Finalize, aggregating the run's outcome.
type Summary struct {
	RunID            string    `json:"run_id"`
	CompletedAt      time.Time `json:"completed_at"`
	DurationMS       float64   `json:"duration_ms"`
	TotalInstances   int       `json:"total_instances"`
	PassCount        int       `json:"pass_count"`
	FailCount        int       `json:"fail_count"`
	ErrorCount       int       `json:"error_count"`
	CancelledCount   int       `json:"cancelled_count"`
	PassRate         float64   `json:"pass_rate"`
	TotalSteps       int       `json:"total_steps"`
	TotalAssertions  int       `json:"total_assertions"`
	AssertionsPassed int       `json:"assertions_passed"`
	AssertionsFailed int       `json:"assertions_failed"`
}

// Store is a per-file-mutex-serialized append-only JSONL sink rooted at
// one run directory: <output_dir>/<run_id>/.
type Store struct {
	dir string

	instanceMu  sync.Mutex
	stepMu      sync.Mutex
	assertionMu sync.Mutex

	instanceFile  *os.File
	stepFile      *os.File
	assertionFile *os.File
}

// Open initializes (idempotently) the run directory under outputDir and
// opens its three JSONL files for append, plus writes manifest.json.
func Open(outputDir, runID string, manifest Manifest) (*Store, error) {
	dir := filepath.Join(outputDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	manifestPath := filepath.Join(dir, manifestFile)
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal manifest: %w", err)
		}
		if err := os.WriteFile(manifestPath, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write manifest: %w", err)
		}
	}

	instanceFile, err := openAppend(filepath.Join(dir, instancesFile))
	if err != nil {
		return nil, err
	}
	stepFile, err := openAppend(filepath.Join(dir, stepsFile))
	if err != nil {
		instanceFile.Close()
		return nil, err
	}
	assertionFile, err := openAppend(filepath.Join(dir, assertionsFile))
	if err != nil {
		instanceFile.Close()
		stepFile.Close()
		return nil, err
	}

	return &Store{
		dir:           dir,
		instanceFile:  instanceFile,
		stepFile:      stepFile,
		assertionFile: assertionFile,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// WriteInstance appends one instance result as a JSON line, flushed
// immediately.
func (s *Store) WriteInstance(result runner.InstanceResult) {
	s.instanceMu.Lock()
	defer s.instanceMu.Unlock()
	appendJSONLine(s.instanceFile, result)
}

// WriteStep implements runner.Sink.
func (s *Store) WriteStep(runID string, record runner.StepRecord) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	appendJSONLine(s.stepFile, record)
}

// WriteAssertion implements runner.Sink.
func (s *Store) WriteAssertion(runID string, record runner.AssertionRecord) {
	s.assertionMu.Lock()
	defer s.assertionMu.Unlock()
	appendJSONLine(s.assertionFile, record)
}

// WriteInstanceArtifact persists an arbitrary side file for one instance
// under artifacts/<instance_id>/<filename>, e.g. a captured response body
// too large for the JSONL stream.
func (s *Store) WriteInstanceArtifact(instanceID, filename string, data []byte) error {
	dir := filepath.Join(s.dir, "artifacts", instanceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, filename), data, 0644)
}

func appendJSONLine(f *os.File, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')
	f.Write(data)
	f.Sync()
}

// Finalize closes the append-only files and writes summary.json.
func (s *Store) Finalize(summary Summary) error {
	s.instanceMu.Lock()
	s.instanceFile.Close()
	s.instanceMu.Unlock()

	s.stepMu.Lock()
	s.stepFile.Close()
	s.stepMu.Unlock()

	s.assertionMu.Lock()
	s.assertionFile.Close()
	s.assertionMu.Unlock()

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	tmp := filepath.Join(s.dir, summaryFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.dir, summaryFile))
}

// Dir returns the run's artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// ReadInstances reads instances.jsonl, tolerating a malformed trailing
// partial line (e.g. from a process killed mid-write).
func ReadInstances(dir string) ([]runner.InstanceResult, error) {
	var out []runner.InstanceResult
	err := readJSONLines(filepath.Join(dir, instancesFile), func(line []byte) {
		var r runner.InstanceResult
		if json.Unmarshal(line, &r) == nil {
			out = append(out, r)
		}
	})
	return out, err
}

// ReadSteps reads steps.jsonl for one run directory.
func ReadSteps(dir string) ([]runner.StepRecord, error) {
	var out []runner.StepRecord
	err := readJSONLines(filepath.Join(dir, stepsFile), func(line []byte) {
		var r runner.StepRecord
		if json.Unmarshal(line, &r) == nil {
			out = append(out, r)
		}
	})
	return out, err
}

func readJSONLines(path string, handle func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		handle(cp)
	}
	return nil
}
