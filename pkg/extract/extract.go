// Package extract implements the Extractor: queries a structured body with
// a JSON path language and binds named values into an instance context.
package extract

import (
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/farmanp/windtunnel/pkg/logging"
)

// Extractor resolves {name: path} maps against a response body. Paths use
// the Goessner/PaesslerAG jsonpath dialect ($, .field, [*], [n], ..field).
type Extractor struct {
	log *logging.Logger
}

// New creates an Extractor. log may be nil, in which case syntax-error
// warnings are silently dropped.
func New(log *logging.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract evaluates every path in paths against body, returning the bound
// values. A path that matches nothing is skipped (not an error at
// extraction time). A syntactically invalid path is skipped and logged as
// a warning.
func (e *Extractor) Extract(body any, paths map[string]string) map[string]any {
	result := make(map[string]any, len(paths))
	for name, path := range paths {
		value, found, err := e.ResolveFirst(body, path)
		if err != nil {
			if e.log != nil {
				e.log.Warn("invalid extraction path", "name", name, "path", path, "error", err.Error())
			}
			continue
		}
		if !found {
			continue
		}
		result[name] = value
	}
	return result
}

// ResolveFirst evaluates one path against body and returns the first
// matching value. found is false when the path is syntactically valid but
// matches nothing.
func (e *Extractor) ResolveFirst(body any, path string) (value any, found bool, err error) {
	result, err := jsonpath.Get(path, body)
	if err != nil {
		if isNoMatchError(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("invalid jsonpath %q: %w", path, err)
	}

	switch v := result.(type) {
	case []any:
		if len(v) == 0 {
			return nil, false, nil
		}
		if isMultiMatchPath(path) {
			return v[0], true, nil
		}
		// A single-node match whose value happens to be a list: bind the
		// whole list, not its first element.
		return v, true, nil
	case nil:
		return nil, false, nil
	default:
		return v, true, nil
	}
}

// isMultiMatchPath reports whether path can bind more than one node in the
// Goessner/PaesslerAG dialect: wildcards, recursive descent, filters, and
// slices all fan out to multiple matches, which PaesslerAG/jsonpath
// flattens into the same []any shape as "one node whose value is a list".
// A plain field/index path binds exactly one node.
func isMultiMatchPath(path string) bool {
	return strings.ContainsAny(path, "*?:") || strings.Contains(path, "..")
}

// isNoMatchError distinguishes "path matched nothing" from a genuine
// syntax error; PaesslerAG/jsonpath reports both as plain errors, so the
// distinction is made on message shape.
func isNoMatchError(err error) bool {
	msg := err.Error()
	for _, sub := range []string{"unknown key", "index out of range", "not found"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
