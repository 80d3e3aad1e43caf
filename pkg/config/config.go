// Package config loads the system-under-test definition: services, base
// URLs, default headers, and per-service timeouts, plus framework-level
// settings (logging, reporting, execution defaults).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level run configuration.
type Config struct {
	Framework FrameworkConfig          `yaml:"framework"`
	SUT       SUTConfig                `yaml:"sut"`
	Reporting ReportingConfig          `yaml:"reporting"`
	Emergency EmergencyConfig          `yaml:"emergency"`
	Execution ExecutionConfig          `yaml:"execution"`
}

// FrameworkConfig contains general framework settings.
type FrameworkConfig struct {
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// SUTConfig describes the system under test: a named set of services.
type SUTConfig struct {
	Name            string                   `yaml:"name"`
	DefaultHeaders  map[string]string        `yaml:"default_headers,omitempty"`
	DefaultTimeout  time.Duration            `yaml:"default_timeout"`
	Services        map[string]ServiceConfig `yaml:"services"`
}

// ServiceConfig describes one addressable service within the SUT.
type ServiceConfig struct {
	BaseURL string            `yaml:"base_url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// Clone returns a deep copy of the SUT config, for per-instance isolation
// (each instance sets its own X-Correlation-ID default header without
// cross-talk with other instances).
func (c SUTConfig) Clone() SUTConfig {
	cloned := SUTConfig{
		Name:           c.Name,
		DefaultTimeout: c.DefaultTimeout,
		DefaultHeaders: make(map[string]string, len(c.DefaultHeaders)),
		Services:       make(map[string]ServiceConfig, len(c.Services)),
	}
	for k, v := range c.DefaultHeaders {
		cloned.DefaultHeaders[k] = v
	}
	for name, svc := range c.Services {
		headers := make(map[string]string, len(svc.Headers))
		for k, v := range svc.Headers {
			headers[k] = v
		}
		svc.Headers = headers
		cloned.Services[name] = svc
	}
	return cloned
}

// ReportingConfig contains reporting and output settings.
type ReportingConfig struct {
	OutputDir string   `yaml:"output_dir"`
	KeepLastN int      `yaml:"keep_last_n"`
	Formats   []string `yaml:"formats"`
}

// EmergencyConfig contains emergency stop settings.
type EmergencyConfig struct {
	StopFile           string        `yaml:"stop_file"`
	AutoCleanupTimeout time.Duration `yaml:"auto_cleanup_timeout"`
}

// ExecutionConfig contains run execution defaults.
type ExecutionConfig struct {
	DefaultParallelism int `yaml:"default_parallelism"`
	DefaultInstances   int `yaml:"default_instances"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			Version:   "v1",
			LogLevel:  "info",
			LogFormat: "text",
		},
		SUT: SUTConfig{
			DefaultTimeout: 30 * time.Second,
			Services:       make(map[string]ServiceConfig),
		},
		Reporting: ReportingConfig{
			OutputDir: "./runs",
			KeepLastN: 50,
			Formats:   []string{"json", "html"},
		},
		Emergency: EmergencyConfig{
			StopFile:           "/tmp/windtunnel-emergency-stop",
			AutoCleanupTimeout: 5 * time.Minute,
		},
		Execution: ExecutionConfig{
			DefaultParallelism: 10,
			DefaultInstances:   1,
		},
	}
}

// Load loads configuration from a YAML file. If path does not exist, the
// default configuration is returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "sut.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(expandedData, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.SUT.Name == "" {
		return fmt.Errorf("sut.name is required")
	}

	if len(c.SUT.Services) == 0 {
		return fmt.Errorf("sut.services must declare at least one service")
	}

	for name, svc := range c.SUT.Services {
		if svc.BaseURL == "" {
			return fmt.Errorf("sut.services[%s].base_url is required", name)
		}
	}

	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}

	if c.Execution.DefaultParallelism < 1 {
		return fmt.Errorf("execution.default_parallelism must be at least 1")
	}

	return nil
}
