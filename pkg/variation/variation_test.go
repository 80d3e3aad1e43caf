package variation

import (
	"reflect"
	"testing"

	"github.com/farmanp/windtunnel/pkg/scenario"
)

func TestGenerateIsDeterministicAcrossRuns(t *testing.T) {
	cfg := &scenario.VariationConfig{
		Parameters: map[string]scenario.VariationParam{
			"user_id": {Choice: []any{"u1", "u2", "u3"}},
		},
	}

	first := make(map[int]any)
	for i := 0; i < 5; i++ {
		first[i] = New(cfg, 12345).Generate(i)["user_id"]
	}

	second := make(map[int]any)
	for i := 0; i < 5; i++ {
		second[i] = New(cfg, 12345).Generate(i)["user_id"]
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("variation map not reproducible across runs: %v vs %v", first, second)
	}
}

func TestGenerateEmptyConfigProducesEmptyMap(t *testing.T) {
	e := New(&scenario.VariationConfig{}, 1)
	got := e.Generate(0)
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestGenerateNilConfigProducesEmptyMap(t *testing.T) {
	e := New(nil, 1)
	got := e.Generate(0)
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestSelectScenarioDeterministic(t *testing.T) {
	a := SelectScenario(42, 3, 5)
	b := SelectScenario(42, 3, 5)
	if a != b {
		t.Fatalf("expected deterministic scenario selection, got %d vs %d", a, b)
	}
}
