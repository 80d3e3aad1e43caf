// Package runctl implements the Run Controller: the top-level lifecycle
// state machine that loads a scenario, prepares the executor, drives the
// Parallel Executor across N instances, and finalizes artifacts.
package runctl

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/farmanp/windtunnel/pkg/artifact"
	"github.com/farmanp/windtunnel/pkg/config"
	"github.com/farmanp/windtunnel/pkg/emergency"
	"github.com/farmanp/windtunnel/pkg/executor"
	"github.com/farmanp/windtunnel/pkg/logging"
	"github.com/farmanp/windtunnel/pkg/runner"
	"github.com/farmanp/windtunnel/pkg/scenario"
	"github.com/farmanp/windtunnel/pkg/scenario/parser"
	"github.com/farmanp/windtunnel/pkg/scenario/validator"
	"github.com/farmanp/windtunnel/pkg/variation"
)

// State names one stage of a run's lifecycle.
type State int

const (
	StateLoad State = iota
	StatePrepare
	StateExecute
	StateFinalize
	StateReport
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoad:
		return "LOAD"
	case StatePrepare:
		return "PREPARE"
	case StateExecute:
		return "EXECUTE"
	case StateFinalize:
		return "FINALIZE"
	case StateReport:
		return "REPORT"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// RunOptions parameterizes one run.
type RunOptions struct {
	// ScenarioPaths is one or more scenario YAML files. When more than
	// one is given, each instance's scenario is chosen deterministically
	// by SelectScenarioIndex(BaseSeed, instanceIndex, len(ScenarioPaths)).
	ScenarioPaths []string
	Instances     int
	Parallelism   int
	BaseSeed      int64
	RunID         string
	// Overrides holds --set key=value overrides, applied to every parsed
	// scenario before validation.
	Overrides map[string]string
}

// RunResult is the top-level outcome of one controller run.
type RunResult struct {
	RunID   string
	State   State
	Stats   executor.Stats
	Summary artifact.Summary
}

// Controller drives one run's lifecycle.
type Controller struct {
	cfg          *config.Config
	log          *logging.Logger
	currentState State
	emergencyCtl *emergency.Controller

	parser    *parser.Parser
	validator *validator.Validator
	client    *http.Client
}

// New constructs a Controller from a loaded Config.
func New(cfg *config.Config, log *logging.Logger) *Controller {
	return &Controller{
		cfg:          cfg,
		log:          log,
		currentState: StateLoad,
		parser:       parser.New(nil),
		validator:    validator.New(),
		client:       &http.Client{},
	}
}

// Execute runs the complete lifecycle: load -> prepare -> execute ->
// finalize -> report. Panics within instance execution are recovered by
// the Scenario Runner per instance; this method's own deferred recover
// turns a controller-level panic into a StateFailed result and an error,
// and a separate defer stops the emergency controller.
func (c *Controller) Execute(ctx context.Context, opts RunOptions) (result RunResult, err error) {
	startedAt := time.Now()
	if opts.RunID == "" {
		opts.RunID = fmt.Sprintf("run-%d", startedAt.UnixNano())
	}
	result.RunID = opts.RunID

	c.emergencyCtl = emergency.New(emergency.Config{
		StopFile:             c.cfg.Emergency.StopFile,
		PollInterval:         1 * time.Second,
		EnableSignalHandlers: true,
		Log:                  c.log,
	})
	emergencyCtx, emergencyCancel := context.WithCancel(ctx)
	defer emergencyCancel()
	c.emergencyCtl.Start(emergencyCtx)

	defer func() {
		if rec := recover(); rec != nil {
			c.transition(StateFailed)
			result.State = StateFailed
			err = fmt.Errorf("panic during run: %v", rec)
		}
	}()

	c.transition(StateLoad)
	scenarios, err := c.executeLoad(opts.ScenarioPaths, opts.Overrides)
	if err != nil {
		return c.fail(result, err)
	}

	c.transition(StatePrepare)
	store, exec, instanceRunner, err := c.executePrepare(scenarios, opts)
	if err != nil {
		return c.fail(result, err)
	}
	c.emergencyCtl.OnStop(exec.Cancel)

	c.transition(StateExecute)
	results, stats := exec.Run(ctx, opts.Instances)
	for _, r := range results {
		store.WriteInstance(r)
	}
	result.Stats = stats

	c.transition(StateFinalize)
	summary := summarize(opts.RunID, startedAt, results, stats)
	if err := store.Finalize(summary); err != nil {
		return c.fail(result, err)
	}
	result.Summary = summary

	c.transition(StateReport)
	_ = instanceRunner // retained for readability; reporting reads artifacts from disk

	c.transition(StateCompleted)
	result.State = StateCompleted
	return result, nil
}

func (c *Controller) executeLoad(scenarioPaths []string, overrides map[string]string) ([]*scenario.Scenario, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SUT configuration: %w", err)
	}
	scenarios := make([]*scenario.Scenario, 0, len(scenarioPaths))
	for _, path := range scenarioPaths {
		s, err := c.parser.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
		}
		if len(overrides) > 0 {
			if err := parser.ApplyOverrides(s, overrides); err != nil {
				return nil, fmt.Errorf("failed to apply overrides to %s: %w", path, err)
			}
		}
		if err := c.validator.Validate(s); err != nil {
			return nil, fmt.Errorf("scenario validation failed for %s: %w", path, err)
		}
		if c.validator.HasWarnings() && c.log != nil {
			for _, w := range c.validator.Warnings {
				c.log.Warn("scenario validation warning", "scenario", path, "warning", w)
			}
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func (c *Controller) executePrepare(scenarios []*scenario.Scenario, opts RunOptions) (*artifact.Store, *executor.Executor, *runner.Runner, error) {
	scenarioIDs := make([]string, len(scenarios))
	for i, s := range scenarios {
		scenarioIDs[i] = s.ID
	}

	store, err := artifact.Open(c.cfg.Reporting.OutputDir, opts.RunID, artifact.Manifest{
		RunID:       opts.RunID,
		Timestamp:   time.Now(),
		SUTName:     c.cfg.SUT.Name,
		ScenarioIDs: scenarioIDs,
		Seed:        opts.BaseSeed,
		Config: artifact.ManifestConfig{
			Seed:           opts.BaseSeed,
			Concurrency:    opts.Parallelism,
			TimeoutSeconds: c.cfg.SUT.DefaultTimeout.Seconds(),
		},
		Version: artifact.ManifestVersion,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	instRunner := runner.New(c.client, c.log, store)

	run := func(ctx context.Context, index int) runner.InstanceResult {
		s := scenarios[SelectScenarioIndex(opts.BaseSeed, index, len(scenarios))]
		return instRunner.RunInstance(ctx, s, opts.RunID, index, opts.BaseSeed, c.cfg.SUT)
	}

	onProgress := func(completed, total int, res runner.InstanceResult) {
		if c.log != nil {
			c.log.Info("instance completed", "completed", completed, "total", total, "instance_id", res.InstanceID, "passed", res.Passed)
		}
	}

	exec := executor.New(opts.Parallelism, run, onProgress)
	return store, exec, instRunner, nil
}

func (c *Controller) transition(newState State) {
	if c.log != nil {
		c.log.Info("state transition", "from", c.currentState.String(), "to", newState.String())
	}
	c.currentState = newState
}

func (c *Controller) fail(result RunResult, err error) (RunResult, error) {
	c.transition(StateFailed)
	result.State = StateFailed
	return result, err
}

func summarize(runID string, startedAt time.Time, results []runner.InstanceResult, stats executor.Stats) artifact.Summary {
	finishedAt := time.Now()
	total := len(results)
	var passRate float64
	if total > 0 {
		passRate = float64(stats.Passed) / float64(total) * 100
	}
	summary := artifact.Summary{
		RunID:          runID,
		CompletedAt:    finishedAt,
		DurationMS:     float64(finishedAt.Sub(startedAt)) / float64(time.Millisecond),
		TotalInstances: total,
		PassCount:      stats.Passed,
		FailCount:      stats.Failed,
		ErrorCount:     stats.Errors,
		CancelledCount: stats.Cancelled,
		PassRate:       passRate,
	}
	for _, r := range results {
		summary.TotalSteps += r.StepsExecuted
		summary.TotalAssertions += r.AssertionsRun
		summary.AssertionsPassed += r.AssertionsPassed
		summary.AssertionsFailed += r.AssertionsRun - r.AssertionsPassed
	}
	return summary
}

// SelectScenarioIndex exposes the Variation Engine's deterministic
// scenario-selection helper for multi-scenario runs (the `run` CLI
// command applies it when given more than one scenario file).
func SelectScenarioIndex(baseSeed int64, instanceIndex, n int) int {
	return variation.SelectScenario(baseSeed, instanceIndex, n)
}
