// Package jsonschema wraps santhosh-tekuri/jsonschema/v6 for the
// json_schema Expectation selector, resolving $ref relative to a
// scenario's source file when one is known.
package jsonschema

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validate compiles schemaDoc (a decoded JSON Schema document, as produced
// by YAML/JSON unmarshalling into map[string]any) and validates instance
// against it. scenarioPath, if non-empty, anchors $ref resolution to the
// scenario's directory.
func Validate(schemaDoc any, instance any, scenarioPath string) error {
	compiler := jsonschema.NewCompiler()

	resourceName := "inline.json"
	if scenarioPath != "" {
		resourceName = filepath.Join(filepath.Dir(scenarioPath), "schema.json")
	}

	if err := compiler.AddResource(resourceName, schemaDoc); err != nil {
		return fmt.Errorf("failed to load json schema: %w", err)
	}

	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("failed to compile json schema: %w", err)
	}

	normalized, err := normalizeForValidation(instance)
	if err != nil {
		return fmt.Errorf("failed to normalize instance for schema validation: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		return err
	}
	return nil
}

// normalizeForValidation round-trips instance through encoding/json so
// that Go values produced elsewhere in the engine (e.g. int or other
// numeric types the schema library doesn't expect) take the shapes
// jsonschema/v6 requires. Values encoding/json cannot marshal, such as
// map[any]any, make it return an error.
func normalizeForValidation(instance any) (any, error) {
	data, err := json.Marshal(instance)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}
