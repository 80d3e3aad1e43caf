// Package variation implements the Variation Engine: per-instance
// deterministic choice/range/toggle/timing sampling seeded by
// (base_seed, instance_index).
package variation

import (
	"math/rand"
	"sort"

	"github.com/farmanp/windtunnel/pkg/scenario"
)

// Engine samples a deterministic variation map for one instance.
type Engine struct {
	cfg      *scenario.VariationConfig
	baseSeed int64
}

// New constructs an Engine for a scenario's optional variation config. A
// nil cfg produces an engine whose Generate always returns an empty map.
func New(cfg *scenario.VariationConfig, baseSeed int64) *Engine {
	return &Engine{cfg: cfg, baseSeed: baseSeed}
}

// Generate produces the deterministic variation map for instanceIndex. For
// a fixed (base_seed, variation_config, instance_index) the result is
// bit-identical across runs: the source RNG is math/rand seeded
// deterministically, and values are drawn in a fixed order (parameters by
// sorted name, then toggles in declared order) so map iteration and
// goroutine scheduling cannot perturb the sequence.
func (e *Engine) Generate(instanceIndex int) map[string]any {
	out := make(map[string]any)
	if e.cfg == nil {
		return out
	}

	rng := rand.New(rand.NewSource(e.baseSeed + int64(instanceIndex)))

	for _, name := range sortedKeys(e.cfg.Parameters) {
		param := e.cfg.Parameters[name]
		switch {
		case len(param.Choice) > 0:
			out[name] = param.Choice[rng.Intn(len(param.Choice))]
		case len(param.Range) == 2:
			min, max := param.Range[0], param.Range[1]
			out[name] = min + rng.Float64()*(max-min)
		}
	}

	for _, toggle := range e.cfg.Toggles {
		out[toggle.Name] = rng.Float64() < toggle.Probability
	}

	if e.cfg.Timing != nil {
		if e.cfg.Timing.StepDelayMS != nil {
			lo, hi := e.cfg.Timing.StepDelayMS[0], e.cfg.Timing.StepDelayMS[1]
			out["_step_delay_ms"] = lo + rng.Intn(hi-lo+1)
		}
		if e.cfg.Timing.JitterMS != nil {
			lo, hi := e.cfg.Timing.JitterMS[0], e.cfg.Timing.JitterMS[1]
			out["_timing_jitter_ms"] = lo + rng.Intn(hi-lo+1)
		}
	}

	return out
}

// SelectScenario picks one scenario index uniformly from n scenarios,
// seeded the same way as Generate, for reproducible per-instance scenario
// assignment when a run spans more than one scenario.
func SelectScenario(baseSeed int64, instanceIndex, n int) int {
	if n <= 1 {
		return 0
	}
	rng := rand.New(rand.NewSource(baseSeed + int64(instanceIndex)))
	return rng.Intn(n)
}

// sortedKeys fixes the sampling order independent of Go's randomized map
// iteration, since parameter draws must be bit-identical across runs.
func sortedKeys(m map[string]scenario.VariationParam) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
