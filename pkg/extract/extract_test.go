package extract

import "testing"

func TestExtractFirstMatch(t *testing.T) {
	body := map[string]any{
		"order": map[string]any{
			"id":    "ord_1",
			"items": []any{map[string]any{"sku": "a"}, map[string]any{"sku": "b"}},
		},
	}

	e := New(nil)
	got := e.Extract(body, map[string]string{
		"order_id":  "$.order.id",
		"first_sku": "$.order.items[0].sku",
	})

	if got["order_id"] != "ord_1" {
		t.Fatalf("order_id = %v", got["order_id"])
	}
	if got["first_sku"] != "a" {
		t.Fatalf("first_sku = %v", got["first_sku"])
	}
}

func TestExtractSkipsNoMatch(t *testing.T) {
	e := New(nil)
	got := e.Extract(map[string]any{"a": 1}, map[string]string{"missing": "$.b.c"})
	if _, found := got["missing"]; found {
		t.Fatalf("expected no binding for an unmatched path")
	}
}

func TestExtractSkipsInvalidSyntax(t *testing.T) {
	e := New(nil)
	got := e.Extract(map[string]any{"a": 1}, map[string]string{"bad": "$.["})
	if _, found := got["bad"]; found {
		t.Fatalf("expected no binding for a syntactically invalid path")
	}
}
