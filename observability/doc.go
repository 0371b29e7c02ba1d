// Package observability provides OpenTelemetry metrics for jobrunner.
//
// [MetricsExtension] implements the ext lifecycle hooks and records
// system-wide counters for job creation, submission, execution outcome,
// finalization and sweeps, plus the number of jobs currently running.
// [NewPrometheus] builds a MeterProvider whose readings are served in the
// Prometheus text format.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
