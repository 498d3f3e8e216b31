package telemetry

import (
	"context"

	"github.com/rs/zerolog"
)

// Telemetry bundles Conveyor's observability concerns.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
}

// New builds all telemetry components from configuration.
func New(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  NewEventPublisher(cfg.Events),
	}, nil
}

// Shutdown flushes and stops the components that buffer data.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.Tracer != nil {
		return t.Tracer.Shutdown(ctx)
	}
	return nil
}
