package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobrunner/job"
)

// meterName is the instrumentation scope name for jobrunner metrics.
const meterName = "github.com/xraph/jobrunner"

// Metrics returns middleware that records per-task execution metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - jobrunner.task.duration (Float64Histogram): execution time in seconds,
//     with attributes: task, status ("ok" or "error")
//   - jobrunner.task.executions (Int64Counter): total executions,
//     with attributes: task, status ("ok" or "error")
//   - jobrunner.task.wait (Float64Histogram): seconds between submit and
//     execution start, with attribute: task
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"jobrunner.task.duration",
		metric.WithDescription("Duration of task execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"jobrunner.task.executions",
		metric.WithDescription("Total number of task executions"),
		metric.WithUnit("{execution}"),
	)
	wait, _ := meter.Float64Histogram(
		"jobrunner.task.wait",
		metric.WithDescription("Time a job spent queued before its task started"),
		metric.WithUnit("s"),
	)

	return func(ctx context.Context, inv *job.Invocation, next Handler) error {
		start := time.Now()
		if !inv.EnqueuedAt.IsZero() {
			wait.Record(ctx, start.Sub(inv.EnqueuedAt).Seconds(),
				metric.WithAttributes(attribute.String("task", inv.Task)))
		}

		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("task", inv.Task),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
