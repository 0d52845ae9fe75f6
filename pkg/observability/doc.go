// Package observability provides structured logging, Prometheus metrics,
// health probes, OpenTelemetry wiring and graceful-shutdown helpers.
package observability
