package expr

import (
	"fmt"
	"strings"
)

func callBuiltin(name string, args []any, env *environment) (any, error) {
	switch name {
	case "len":
		if len(args) != 1 {
			return nil, &Error{Expression: env.src, Reason: "len() takes exactly one argument"}
		}
		return lengthOf(args[0], env.src)

	case "sum":
		list, err := asList(args, env.src)
		if err != nil {
			return nil, err
		}
		var total float64
		for _, v := range list {
			if err := env.checkDeadline(); err != nil {
				return nil, err
			}
			n, ok := v.(float64)
			if !ok {
				return nil, &Error{Expression: env.src, Reason: "sum() requires a list of numbers"}
			}
			total += n
		}
		return total, nil

	case "min", "max":
		list, err := asList(args, env.src)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, &Error{Expression: env.src, Reason: fmt.Sprintf("%s() of empty sequence", name)}
		}
		best := list[0]
		for _, v := range list[1:] {
			if err := env.checkDeadline(); err != nil {
				return nil, err
			}
			wantOp := "<"
			if name == "max" {
				wantOp = ">"
			}
			better, err := compareValues(wantOp, v, best, env.src)
			if err != nil {
				return nil, err
			}
			if better {
				best = v
			}
		}
		return best, nil

	case "any":
		list, err := asList(args, env.src)
		if err != nil {
			return nil, err
		}
		for _, v := range list {
			if err := env.checkDeadline(); err != nil {
				return nil, err
			}
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil

	case "all":
		list, err := asList(args, env.src)
		if err != nil {
			return nil, err
		}
		for _, v := range list {
			if err := env.checkDeadline(); err != nil {
				return nil, err
			}
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil

	case "range":
		return buildRange(args, env)

	default:
		return nil, &SecurityError{Expression: env.src, Reason: fmt.Sprintf("%q is not a whitelisted function", name)}
	}
}

func lengthOf(v any, src string) (any, error) {
	switch val := v.(type) {
	case string:
		return float64(len(val)), nil
	case []any:
		return float64(len(val)), nil
	case map[string]any:
		return float64(len(val)), nil
	default:
		return nil, &Error{Expression: src, Reason: "len() requires a string, list, or map"}
	}
}

func asList(args []any, src string) ([]any, error) {
	if len(args) != 1 {
		return nil, &Error{Expression: src, Reason: "expected exactly one list argument"}
	}
	list, ok := args[0].([]any)
	if !ok {
		return nil, &Error{Expression: src, Reason: "argument must be a list"}
	}
	return list, nil
}

func buildRange(args []any, env *environment) (any, error) {
	var start, stop float64
	switch len(args) {
	case 1:
		n, ok := args[0].(float64)
		if !ok {
			return nil, &Error{Expression: env.src, Reason: "range() requires numeric arguments"}
		}
		stop = n
	case 2:
		a, ok1 := args[0].(float64)
		b, ok2 := args[1].(float64)
		if !ok1 || !ok2 {
			return nil, &Error{Expression: env.src, Reason: "range() requires numeric arguments"}
		}
		start, stop = a, b
	default:
		return nil, &Error{Expression: env.src, Reason: "range() takes one or two arguments"}
	}

	out := make([]any, 0, int(stop-start))
	for i := start; i < stop; i++ {
		if err := env.checkDeadline(); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

func callMethod(attr string, receiver any, args []any, src string) (any, error) {
	switch attr {
	case "startswith":
		s, prefix, err := twoStrings(receiver, args, src, "startswith")
		if err != nil {
			return nil, err
		}
		return strings.HasPrefix(s, prefix), nil

	case "endswith":
		s, suffix, err := twoStrings(receiver, args, src, "endswith")
		if err != nil {
			return nil, err
		}
		return strings.HasSuffix(s, suffix), nil

	case "lower":
		s, err := oneString(receiver, src, "lower")
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil

	case "upper":
		s, err := oneString(receiver, src, "upper")
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s), nil

	case "strip":
		s, err := oneString(receiver, src, "strip")
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(s), nil

	case "split":
		s, err := oneString(receiver, src, "split")
		if err != nil {
			return nil, err
		}
		sep := " "
		if len(args) == 1 {
			sepArg, ok := args[0].(string)
			if !ok {
				return nil, &Error{Expression: src, Reason: "split() separator must be a string"}
			}
			sep = sepArg
		}
		parts := strings.Split(s, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil

	case "get":
		m, ok := receiver.(map[string]any)
		if !ok {
			return nil, &Error{Expression: src, Reason: "get() requires a map receiver"}
		}
		if len(args) < 1 || len(args) > 2 {
			return nil, &Error{Expression: src, Reason: "get() takes one or two arguments"}
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, &Error{Expression: src, Reason: "get() key must be a string"}
		}
		if v, exists := m[key]; exists {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, nil

	default:
		return nil, &SecurityError{Expression: src, Reason: fmt.Sprintf("attribute %q is not whitelisted", attr)}
	}
}

func oneString(receiver any, src, method string) (string, error) {
	s, ok := receiver.(string)
	if !ok {
		return "", &Error{Expression: src, Reason: fmt.Sprintf("%s() requires a string receiver", method)}
	}
	return s, nil
}

func twoStrings(receiver any, args []any, src, method string) (string, string, error) {
	s, err := oneString(receiver, src, method)
	if err != nil {
		return "", "", err
	}
	if len(args) != 1 {
		return "", "", &Error{Expression: src, Reason: fmt.Sprintf("%s() takes exactly one argument", method)}
	}
	arg, ok := args[0].(string)
	if !ok {
		return "", "", &Error{Expression: src, Reason: fmt.Sprintf("%s() argument must be a string", method)}
	}
	return s, arg, nil
}

func compareValues(op string, left, right any, src string) (bool, error) {
	switch op {
	case "==":
		return deepEqual(left, right), nil
	case "!=":
		return !deepEqual(left, right), nil
	case "in", "not in":
		found, err := membership(left, right, src)
		if err != nil {
			return false, err
		}
		if op == "not in" {
			return !found, nil
		}
		return found, nil
	}

	ln, lok := left.(float64)
	rn, rok := right.(float64)
	if lok && rok {
		switch op {
		case "<":
			return ln < rn, nil
		case ">":
			return ln > rn, nil
		case "<=":
			return ln <= rn, nil
		case ">=":
			return ln >= rn, nil
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs, nil
		case ">":
			return ls > rs, nil
		case "<=":
			return ls <= rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}

	return false, &Error{Expression: src, Reason: fmt.Sprintf("operator %q requires comparable numeric or string operands", op)}
}

// membership implements the whitelisted 'in'/'not in' operators: list
// element membership by deepEqual, substring containment, or map key
// presence, mirroring ast.In/ast.NotIn in the original sandbox.
func membership(left, right any, src string) (bool, error) {
	switch container := right.(type) {
	case []any:
		for _, v := range container {
			if deepEqual(left, v) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := left.(string)
		if !ok {
			return false, &Error{Expression: src, Reason: "'in' on a string requires a string left operand"}
		}
		return strings.Contains(container, s), nil
	case map[string]any:
		key, ok := left.(string)
		if !ok {
			return false, &Error{Expression: src, Reason: "'in' on a map requires a string key"}
		}
		_, exists := container[key]
		return exists, nil
	default:
		return false, &Error{Expression: src, Reason: "'in' requires a list, string, or map right operand"}
	}
}

func deepEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, exists := bv[k]
			if !exists || !deepEqual(v, bvv) {
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
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
