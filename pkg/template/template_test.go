package template

import (
	"reflect"
	"testing"
)

func TestRenderSoleVariablePreservesType(t *testing.T) {
	ctx := map[string]any{
		"amount": 100,
		"ok":     true,
		"list":   []any{1, 2, 3},
	}

	cases := []struct {
		name string
		tmpl string
		want any
	}{
		{"int", "{{amount}}", 100},
		{"bool", "{{ok}}", true},
		{"list", "{{list}}", []any{1, 2, 3}},
		{"whitespace", "  {{amount}}  ", 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Render(tc.tmpl, ctx)
			if err != nil {
				t.Fatalf("Render(%q) returned error: %v", tc.tmpl, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Render(%q) = %#v, want %#v", tc.tmpl, got, tc.want)
			}
		})
	}
}

func TestRenderStringInterpolation(t *testing.T) {
	ctx := map[string]any{"name": "alice", "amount": 100}

	got, err := Render("hello {{name}}, you owe {{amount}}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello alice, you owe 100" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderIdempotentWhenNoTemplates(t *testing.T) {
	x := map[string]any{"a": 1, "b": []any{"x", "y"}}
	if HasTemplates(x) {
		t.Fatalf("expected no templates")
	}
	got, err := Render(x, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, x) {
		t.Fatalf("Render changed value with no templates: %#v", got)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	_, err := Render("{{missing.field}}", map[string]any{})
	if err == nil {
		t.Fatalf("expected MissingVariableError")
	}
	var missingErr *MissingVariableError
	if !asMissingVariableError(err, &missingErr) {
		t.Fatalf("expected *MissingVariableError, got %T: %v", err, err)
	}
	if missingErr.Variable != "missing.field" {
		t.Fatalf("got variable %q", missingErr.Variable)
	}
}

func asMissingVariableError(err error, target **MissingVariableError) bool {
	me, ok := err.(*MissingVariableError)
	if !ok {
		return false
	}
	*target = me
	return true
}

func TestRenderRecursesIntoMapsAndLists(t *testing.T) {
	ctx := map[string]any{"customer": "acme"}
	input := map[string]any{
		"entry": map[string]any{"name": "{{customer}}"},
		"tags":  []any{"{{customer}}", "static"},
	}

	got, err := Render(input, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{
		"entry": map[string]any{"name": "acme"},
		"tags":  []any{"acme", "static"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestHasTemplates(t *testing.T) {
	if HasTemplates("plain string") {
		t.Fatalf("expected false for plain string")
	}
	if !HasTemplates("{{x}}") {
		t.Fatalf("expected true for template string")
	}
	if !HasTemplates(map[string]any{"a": []any{"{{x}}"}}) {
		t.Fatalf("expected true for nested template")
	}
}
