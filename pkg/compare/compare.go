// Package compare implements the engine's Value Comparison semantics:
// deep structural equality with no type coercion, and the `contains`
// predicate used by jsonpath/context_path expectations.
package compare

import (
	"fmt"
	"strings"
)

// Equals reports deep structural equality using the host's natural
// semantics: numbers by value, maps unordered, lists ordered. No type
// coercion: 100 != "100". nil compares equal only to itself.
func Equals(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, exists := bv[k]
			if !exists || !Equals(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equals(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Contains implements `contains` semantics:
//   - list/tuple (represented as []any): membership.
//   - string: substring, stringifying the expected value.
//   - map: membership in values.
//   - otherwise: false.
func Contains(actual, expected any) bool {
	switch av := actual.(type) {
	case []any:
		for _, elem := range av {
			if Equals(elem, expected) {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(av, stringify(expected))
	case map[string]any:
		for _, v := range av {
			if Equals(v, expected) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
