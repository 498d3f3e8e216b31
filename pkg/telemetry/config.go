package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for Conveyor.
type Config struct {
	// ServiceName identifies the service in traces and metrics.
	ServiceName string

	// ServiceVersion is the running version.
	ServiceVersion string

	// Environment names the deployment environment (dev, ci, prod).
	Environment string

	// Logging configures structured logging.
	Logging LoggingConfig

	// Tracing configures span export.
	Tracing TracingConfig

	// Metrics configures Prometheus exposition.
	Metrics MetricsConfig

	// Events configures the in-process event stream.
	Events EventsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format specifies the log format (console, json).
	Format string

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter selects the span exporter (otlp, stdout, none).
	Exporter string

	// Endpoint is the OTLP collector endpoint.
	Endpoint string

	// SamplingRate is the trace sampling ratio (0.0 to 1.0).
	SamplingRate float64

	// ExportTimeout bounds span export.
	ExportTimeout time.Duration

	// Insecure disables TLS for the exporter connection.
	Insecure bool
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// ListenAddress is the address for the metrics HTTP endpoint.
	ListenAddress string

	// Path is the HTTP path for metrics.
	Path string

	// Namespace is the metrics namespace prefix.
	Namespace string
}

// EventsConfig configures the event stream.
type EventsConfig struct {
	// Enabled controls whether events are delivered.
	Enabled bool
}

// DefaultConfig returns a configuration suitable for CLI use.
func DefaultConfig(serviceName, version string) *Config {
	return &Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:      "stdout",
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			ListenAddress: ":9464",
			Path:          "/metrics",
			Namespace:     "conveyor",
		},
		Events: EventsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("telemetry: service name is required")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("telemetry: unsupported log format: %s", c.Logging.Format)
	}
	switch c.Tracing.Exporter {
	case "", "otlp", "stdout", "none":
	default:
		return fmt.Errorf("telemetry: unsupported trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("telemetry: sampling rate must be in [0,1], got %f", c.Tracing.SamplingRate)
	}
	return nil
}
