// Package config loads and validates Conveyor's pipeline configuration.
//
// Configuration lives in a conveyor.yaml at the invocation target (or a
// path given explicitly). Absent file or absent keys fall back to the
// defaults in Default; the merged result is checked with struct
// validation before anything runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up at the target.
const DefaultFileName = "conveyor.yaml"

// Duration wraps time.Duration for YAML decoding of strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root pipeline configuration.
type Config struct {
	// Project is a display name for reports.
	Project string `yaml:"project"`

	// Parallelism caps concurrent tasks; 0 means unbounded within a layer.
	Parallelism int `yaml:"parallelism" validate:"gte=0"`

	// Steps overrides per-step commands and execution settings, keyed by
	// step name (sync, configure, analyze, repair, fix, test, comment,
	// deploy, components.configure, components.sync, database.sync).
	Steps map[string]StepConfig `yaml:"steps" validate:"dive"`

	// Deploy configures the deployment step.
	Deploy DeployConfig `yaml:"deploy"`

	// Database configures the component database sync.
	Database DatabaseConfig `yaml:"database"`

	// Components lists the component names passed to component steps.
	Components []string `yaml:"components"`

	// Watch configures continuous mode.
	Watch WatchConfig `yaml:"watch"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StepConfig tunes a single pipeline step.
type StepConfig struct {
	// Command is the argv invoked for this step.
	Command []string `yaml:"command"`

	// Required marks the step's failure fatal to its run even in
	// best-effort modes. Nil keeps the mode's default.
	Required *bool `yaml:"required"`

	// Retries is the number of extra attempts after a failure.
	Retries int `yaml:"retries" validate:"gte=0"`

	// Timeout bounds each attempt.
	Timeout Duration `yaml:"timeout"`
}

// DeployConfig configures deployment.
type DeployConfig struct {
	// Enabled gates the deploy step in full mode.
	Enabled bool `yaml:"enabled"`

	// Environment names the deployment target environment.
	Environment string `yaml:"environment"`
}

// DatabaseConfig configures the component database sync step.
type DatabaseConfig struct {
	// SyncEnabled gates the database sync step in components mode.
	SyncEnabled bool `yaml:"sync_enabled"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Interval is the fixed re-invocation period.
	Interval Duration `yaml:"interval"`

	// Paths are filesystem paths (relative to the target) whose changes
	// trigger an immediate cycle. Empty means interval-only.
	Paths []string `yaml:"paths"`

	// Debounce coalesces filesystem events before triggering.
	Debounce Duration `yaml:"debounce"`
}

// TelemetryConfig configures observability.
type TelemetryConfig struct {
	// LogLevel sets the minimum log level.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`

	// LogFormat selects console or json output.
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=console json"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig configures Prometheus exposition.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on.
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the HTTP listen address for /metrics.
	ListenAddress string `yaml:"listen_address"`
}

// TracingConfig configures trace export.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled"`

	// Exporter selects the span exporter.
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `yaml:"endpoint"`

	// SamplingRate is the trace sampling ratio.
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Parallelism: 4,
		Steps: map[string]StepConfig{
			"sync":                 {Command: []string{"git", "pull", "--ff-only"}},
			"configure":            {Command: []string{"make", "configure"}},
			"analyze":              {Command: []string{"go", "vet", "./..."}},
			"repair":               {Command: []string{"gofmt", "-l", "-w", "."}},
			"fix":                  {Command: []string{"golangci-lint", "run", "--fix"}},
			"test":                 {Command: []string{"go", "test", "./..."}},
			"comment":              {Command: []string{"make", "comment"}},
			"deploy":               {Command: []string{"make", "deploy"}},
			"components.configure": {Command: []string{"make", "components-configure"}},
			"components.sync":      {Command: []string{"make", "components-sync"}},
			"database.sync":        {Command: []string{"make", "db-sync"}},
		},
		Deploy:   DeployConfig{Environment: "staging"},
		Database: DatabaseConfig{},
		Watch: WatchConfig{
			Interval: Duration(30 * time.Second),
			Debounce: Duration(500 * time.Millisecond),
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "console",
			Metrics:   MetricsConfig{ListenAddress: ":9464"},
			Tracing:   TracingConfig{Exporter: "stdout", SamplingRate: 1.0},
		},
	}
}

// Step returns the merged settings for the named step.
func (c *Config) Step(name string) StepConfig {
	if sc, ok := c.Steps[name]; ok {
		return sc
	}
	return StepConfig{}
}

// Validate checks the configuration's structural constraints.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("invalid configuration: watch interval must be positive")
	}
	return nil
}

// Load reads and validates the configuration file at path. Defaults are
// applied first, so a partial file only overrides what it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	mergeStepDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeStepDefaults fills fields a partial step override leaves unset
// back in from the defaults. yaml replaces map entries wholesale, so a
// file naming only `retries` for a step would otherwise wipe its
// default command.
func mergeStepDefaults(cfg *Config) {
	defaults := Default().Steps
	for name, sc := range cfg.Steps {
		base, ok := defaults[name]
		if !ok {
			continue
		}
		if sc.Command == nil {
			sc.Command = base.Command
		}
		if sc.Timeout == 0 {
			sc.Timeout = base.Timeout
		}
		if sc.Required == nil {
			sc.Required = base.Required
		}
		cfg.Steps[name] = sc
	}
}

// LoadFromTarget looks for conveyor.yaml at the target path and loads it,
// falling back to defaults when no file exists.
func LoadFromTarget(target string) (*Config, error) {
	path := filepath.Join(target, DefaultFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}
