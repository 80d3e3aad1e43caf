package expr

import (
	"testing"
	"time"
)

func mustEval(t *testing.T, src string, body, headers, context any) any {
	t.Helper()
	v, err := Eval(src, body, headers, context, 0)
	if err != nil {
		t.Fatalf("Eval(%q) returned error: %v", src, err)
	}
	return v
}

func TestEvalLiterals(t *testing.T) {
	if v := mustEval(t, "True", nil, nil, nil); v != true {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, "False", nil, nil, nil); v != false {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, "1+2", nil, nil, nil); v != 3.0 {
		t.Fatalf("got %v", v)
	}
}

func TestEvalBodyHeadersContext(t *testing.T) {
	body := map[string]any{"status": "ok", "count": 3.0}
	headers := map[string]any{"content-type": "application/json"}
	context := map[string]any{"user_id": "u1"}

	if v := mustEval(t, `body["status"] == "ok"`, body, headers, context); v != true {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, `body["status"].startswith("o")`, body, headers, context); v != true {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, `headers["content-type"].endswith("json")`, body, headers, context); v != true {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, `context["user_id"] == "u1"`, body, headers, context); v != true {
		t.Fatalf("got %v", v)
	}
}

func TestEvalBooleanAndTernary(t *testing.T) {
	if v := mustEval(t, `1 < 2 and 3 > 2`, nil, nil, nil); v != true {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, `"yes" if 1 == 1 else "no"`, nil, nil, nil); v != "yes" {
		t.Fatalf("got %v", v)
	}
}

func TestEvalAggregators(t *testing.T) {
	body := map[string]any{"values": []any{1.0, 2.0, 3.0}}
	if v := mustEval(t, `sum(body["values"]) == 6`, body, nil, nil); v != true {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, `len(body["values"]) == 3`, body, nil, nil); v != true {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, `max(body["values"]) == 3`, body, nil, nil); v != true {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, `any([x > 2 for x in body["values"]])`, body, nil, nil); v != true {
		t.Fatalf("got %v", v)
	}
	if v := mustEval(t, `all([x > 0 for x in body["values"]])`, body, nil, nil); v != true {
		t.Fatalf("got %v", v)
	}
}

func TestEvalComprehension(t *testing.T) {
	body := map[string]any{"values": []any{1.0, 2.0, 3.0, 4.0}}
	got := mustEval(t, `[x for x in body["values"] if x > 2]`, body, nil, nil)
	list, ok := got.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("got %#v", got)
	}
}

func TestEvalRejectsUnknownName(t *testing.T) {
	_, err := Eval("secret_var == 1", nil, nil, nil, 0)
	if err == nil {
		t.Fatalf("expected SecurityError")
	}
	if _, ok := err.(*SecurityError); !ok {
		t.Fatalf("expected *SecurityError, got %T: %v", err, err)
	}
}

func TestEvalRejectsDangerousConstructs(t *testing.T) {
	for _, src := range []string{
		"__import__('os')",
		"lambda x: x",
		"open('/etc/passwd')",
		"body.__class__",
	} {
		_, err := Eval(src, nil, nil, nil, 0)
		if err == nil {
			t.Fatalf("expected SecurityError for %q", src)
		}
		if _, ok := err.(*SecurityError); !ok {
			t.Fatalf("expected *SecurityError for %q, got %T: %v", src, err, err)
		}
	}
}

func TestEvalRejectsUnwhitelistedAttribute(t *testing.T) {
	_, err := Eval(`body.__dict__`, map[string]any{}, nil, nil, 0)
	if err == nil {
		t.Fatalf("expected SecurityError")
	}
}

func TestEvalTimeout(t *testing.T) {
	body := map[string]any{"values": rangeSlice(1000)}
	_, err := Eval(`sum([x for x in body["values"]])`, body, nil, nil, 1*time.Nanosecond)
	if err == nil {
		t.Fatalf("expected TimeoutError")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected *TimeoutError, got %T: %v", err, err)
	}
}

func rangeSlice(n int) []any {
	out := make([]any, n)
	for i := 0; i < n; i++ {
		out[i] = float64(i)
	}
	return out
}
