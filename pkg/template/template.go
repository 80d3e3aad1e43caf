// Package template renders {{path}} variable references against a context
// map. Two modes: sole-variable mode preserves the resolved value's
// original type; string-interpolation mode stringifies into surrounding
// text.
package template

import (
	"fmt"
	"strconv"
	"strings"
)

// MissingVariableError is returned when a template references a path that
// does not resolve against the context.
type MissingVariableError struct {
	Template string
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("variable %q not found in context (template: %q)", e.Variable, e.Template)
}

// HasTemplates reports whether value contains any {{...}} reference,
// recursively through maps and lists. Used to short-circuit unchanged
// config trees.
func HasTemplates(value any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, "{{") && strings.Contains(v, "}}")
	case map[string]any:
		for _, elem := range v {
			if HasTemplates(elem) {
				return true
			}
		}
		return false
	case []any:
		for _, elem := range v {
			if HasTemplates(elem) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Render renders value against ctx, applied recursively to maps and lists.
// A string that is, once trimmed, exactly one {{path}} reference is
// resolved in sole-variable mode (the original type is preserved); any
// other string is rendered via string interpolation.
func Render(value any, ctx map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return renderString(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			rendered, err := Render(elem, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			rendered, err := Render(elem, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return value, nil
	}
}

func renderString(s string, ctx map[string]any) (any, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	if path, ok := soleVariablePath(s); ok {
		resolved, found := resolvePath(path, ctx)
		if !found {
			return nil, &MissingVariableError{Template: s, Variable: path}
		}
		return resolved, nil
	}

	var sb strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			sb.WriteString(rest)
			break
		}
		end += start

		sb.WriteString(rest[:start])
		path := strings.TrimSpace(rest[start+2 : end])
		resolved, found := resolvePath(path, ctx)
		if !found {
			return nil, &MissingVariableError{Template: s, Variable: path}
		}
		sb.WriteString(stringify(resolved))
		rest = rest[end+2:]
	}

	return sb.String(), nil
}

// soleVariablePath returns the bare path if the trimmed input is exactly
// one {{path}} reference, e.g. "{{entry.seed_data.amount}}".
func soleVariablePath(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return "", false
	}
	inner := trimmed[2 : len(trimmed)-2]
	if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// resolvePath walks a dotted path (and [n] indices) against ctx.
func resolvePath(path string, ctx map[string]any) (any, bool) {
	segments := splitPath(path)
	var current any = ctx
	for _, seg := range segments {
		if idx, isIndex := seg.index, seg.isIndex; isIndex {
			list, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(list) {
				return nil, false
			}
			current = list[idx]
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := m[seg.field]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}

type pathSegment struct {
	field   string
	index   int
	isIndex bool
}

func splitPath(path string) []pathSegment {
	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open == -1 {
				segments = append(segments, pathSegment{field: part})
				part = ""
				break
			}
			if open > 0 {
				segments = append(segments, pathSegment{field: part[:open]})
			}
			close := strings.IndexByte(part, ']')
			if close == -1 || close < open {
				segments = append(segments, pathSegment{field: part})
				break
			}
			idx, err := strconv.Atoi(part[open+1 : close])
			if err == nil {
				segments = append(segments, pathSegment{index: idx, isIndex: true})
			}
			part = part[close+1:]
		}
	}
	return segments
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
