// Package telemetry provides Conveyor's observability layer: structured
// logging (zerolog), Prometheus metrics, OpenTelemetry tracing, and an
// in-process event stream for run and step lifecycle notifications.
//
// Each concern is independently configurable and defaults to off (metrics,
// tracing) or console output (logging), so library consumers pay only for
// what they enable.
package telemetry
