// Package replay implements the Replay Engine: re-executes a previously
// recorded instance's flow (with turbulence and variation disabled) and
// diffs the fresh observations against the stored originals.
package replay

import (
	"context"
	"fmt"

	"github.com/farmanp/windtunnel/pkg/action"
	"github.com/farmanp/windtunnel/pkg/artifact"
	"github.com/farmanp/windtunnel/pkg/config"
	"github.com/farmanp/windtunnel/pkg/extract"
	"github.com/farmanp/windtunnel/pkg/runner"
	"github.com/farmanp/windtunnel/pkg/scenario"
)

// InstanceNotFoundError is returned when the target instance does not
// appear in the run's instances.jsonl.
type InstanceNotFoundError struct {
	InstanceID string
}

func (e *InstanceNotFoundError) Error() string {
	return fmt.Sprintf("instance %q not found", e.InstanceID)
}

// ScenarioNotFoundError is returned when the instance's scenario cannot
// be located by the caller-supplied loader.
type ScenarioNotFoundError struct {
	ScenarioID string
}

func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q not found", e.ScenarioID)
}

// ScenarioLoader resolves a scenario by ID, e.g. from a directory of
// scenario files keyed by their `id` field.
type ScenarioLoader func(id string) (*scenario.Scenario, error)

// StepDiff compares one step's replayed Observation against the
// originally recorded one.
type StepDiff struct {
	StepIndex       int    `json:"step_index"`
	ActionName      string `json:"action_name"`
	OriginalOK      bool   `json:"original_ok"`
	ReplayedOK      bool   `json:"replayed_ok"`
	OriginalStatus  int    `json:"original_status,omitempty"`
	ReplayedStatus  int    `json:"replayed_status,omitempty"`
	Matches         bool   `json:"matches"`
}

// Result is the outcome of replaying one instance.
type Result struct {
	InstanceID string     `json:"instance_id"`
	ScenarioID string     `json:"scenario_id"`
	Steps      []StepDiff `json:"steps"`
	Success    bool       `json:"success"`
}

// Engine replays recorded instances from a run's artifact directory.
type Engine struct {
	client       action.HTTPDoer
	loadScenario ScenarioLoader
}

// New constructs a replay Engine. client issues the re-executed HTTP
// calls; loadScenario resolves a scenario definition by ID.
func New(client action.HTTPDoer, loadScenario ScenarioLoader) *Engine {
	return &Engine{client: client, loadScenario: loadScenario}
}

// Replay locates instanceID within runDir's instances.jsonl and steps.jsonl,
// loads its scenario, re-executes the flow (no turbulence, no variation)
// against sut, and diffs each step against the original recording.
func (e *Engine) Replay(ctx context.Context, runDir, instanceID string, sut config.SUTConfig) (*Result, error) {
	instances, err := artifact.ReadInstances(runDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}

	var original *scenarioInstance
	for _, inst := range instances {
		if inst.InstanceID == instanceID {
			original = &scenarioInstance{RunID: inst.RunID, ScenarioID: inst.ScenarioID, CorrelationID: inst.CorrelationID}
			break
		}
	}
	if original == nil {
		return nil, &InstanceNotFoundError{InstanceID: instanceID}
	}

	s, err := e.loadScenario(original.ScenarioID)
	if err != nil || s == nil {
		return nil, &ScenarioNotFoundError{ScenarioID: original.ScenarioID}
	}

	allSteps, err := artifact.ReadSteps(runDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read steps: %w", err)
	}
	var originalSteps []runner.StepRecord
	for _, step := range allSteps {
		if step.InstanceID == instanceID {
			originalSteps = append(originalSteps, step)
		}
	}

	instanceSUT := sut.Clone()
	instanceSUT.DefaultHeaders["X-Correlation-ID"] = original.CorrelationID

	entry := make(map[string]any, len(s.Entry))
	for k, v := range s.Entry {
		entry[k] = v
	}
	wfCtx := scenario.NewWorkflowContext(original.RunID, instanceID, original.CorrelationID, entry)
	wfCtx.ScenarioPath = s.SourcePath

	extractor := extract.New(nil)
	httpRunner := action.NewHTTPRunner(e.client, extractor)
	waitRunner := action.NewWaitRunner(e.client, extractor)
	assertRunner := action.NewAssertRunner(extractor)

	result := &Result{InstanceID: instanceID, ScenarioID: s.ID, Success: true}

	for i, act := range s.Flow {
		var obs *scenario.Observation
		switch act.Kind {
		case scenario.ActionHTTP:
			obs = httpRunner.Run(ctx, act, &instanceSUT, wfCtx)
		case scenario.ActionWait:
			obs = waitRunner.Run(ctx, act, &instanceSUT)
		case scenario.ActionAssert:
			obs, _ = assertRunner.Run(act.Expect, wfCtx)
		}
		if obs != nil && obs.StatusCode != nil {
			wfCtx.LastResponse = &scenario.LastResponse{StatusCode: *obs.StatusCode, Headers: obs.Headers, Body: obs.Body}
		}

		diff := StepDiff{StepIndex: i, ActionName: act.Name}
		if obs != nil {
			diff.ReplayedOK = obs.OK
			if obs.StatusCode != nil {
				diff.ReplayedStatus = *obs.StatusCode
			}
		}
		if orig := findOriginalStep(originalSteps, i); orig != nil && orig.Observation != nil {
			diff.OriginalOK = orig.Observation.OK
			if orig.Observation.StatusCode != nil {
				diff.OriginalStatus = *orig.Observation.StatusCode
			}
		}
		diff.Matches = diff.OriginalOK == diff.ReplayedOK && diff.OriginalStatus == diff.ReplayedStatus
		if !diff.Matches {
			result.Success = false
		}
		result.Steps = append(result.Steps, diff)
	}

	return result, nil
}

type scenarioInstance struct {
	RunID         string
	ScenarioID    string
	CorrelationID string
}

func findOriginalStep(steps []runner.StepRecord, index int) *runner.StepRecord {
	for _, s := range steps {
		if s.StepIndex == index {
			return &s
		}
	}
	return nil
}
