// Package parser loads scenario YAML documents: variable substitution,
// parsing, required-field checks, and CLI override application.
package parser

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/farmanp/windtunnel/pkg/scenario"
)

// Parser parses scenario YAML documents with ${VAR}/$VAR substitution.
type Parser struct {
	// Variables take precedence over the environment during substitution.
	Variables map[string]string
}

// New creates a new parser with optional variables.
func New(variables map[string]string) *Parser {
	if variables == nil {
		variables = make(map[string]string)
	}
	return &Parser{Variables: variables}
}

// ParseFile parses a scenario from a YAML file.
func (p *Parser) ParseFile(path string) (*scenario.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := p.Parse(data)
	if err != nil {
		return nil, err
	}
	s.SourcePath = path
	return s, nil
}

// Parse parses a scenario from YAML bytes.
func (p *Parser) Parse(data []byte) (*scenario.Scenario, error) {
	substituted := p.substituteVariables(string(data))

	var s scenario.Scenario
	if err := yaml.Unmarshal([]byte(substituted), &s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := p.validateRequiredFields(&s); err != nil {
		return nil, err
	}

	return &s, nil
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteVariables replaces ${VAR} and $VAR with values from parser
// variables, falling back to the environment, leaving unmatched names as-is.
func (p *Parser) substituteVariables(content string) string {
	return varPattern.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if val, ok := p.Variables[varName]; ok {
			return val
		}
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}

// SetVariable sets a variable for substitution.
func (p *Parser) SetVariable(key, value string) {
	p.Variables[key] = value
}

// SetVariables sets multiple variables.
func (p *Parser) SetVariables(vars map[string]string) {
	for k, v := range vars {
		p.Variables[k] = v
	}
}

// ParseOverrides parses CLI override strings (--set key=value). Supports
// dotted paths like "stop_when.any_action_fails=true".
func ParseOverrides(overrides []string) (map[string]string, error) {
	result := make(map[string]string)

	for _, override := range overrides {
		parts := strings.SplitN(override, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid override format: %s (expected key=value)", override)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if key == "" {
			return nil, fmt.Errorf("empty key in override: %s", override)
		}

		result[key] = value
	}

	return result, nil
}

// ApplyOverrides applies CLI overrides to a scenario. This is a simple
// implementation that handles the common top-level keys.
func ApplyOverrides(s *scenario.Scenario, overrides map[string]string) error {
	for key, value := range overrides {
		switch key {
		case "id":
			s.ID = value

		case "stop_when.any_action_fails":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid stop_when.any_action_fails override: %w", err)
			}
			s.StopWhen.AnyActionFails = b

		case "stop_when.any_assertion_fails":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid stop_when.any_assertion_fails override: %w", err)
			}
			s.StopWhen.AnyAssertionFails = b

		default:
			return fmt.Errorf("unsupported override key: %s", key)
		}
	}

	return nil
}

// validateRequiredFields validates that required fields are present.
func (p *Parser) validateRequiredFields(s *scenario.Scenario) error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow is required and must have at least one action")
	}

	for i, action := range s.Flow {
		if action.Kind == "" {
			return fmt.Errorf("flow[%d].kind is required", i)
		}
	}

	return nil
}
