package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobrunner/job"
)

// tracerName is the instrumentation scope name for jobrunner tracing.
const tracerName = "github.com/xraph/jobrunner"

// Tracing returns middleware that wraps task execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through.
//
// Span attributes: jobrunner.job.id, jobrunner.task, jobrunner.args.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *job.Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "jobrunner.task.execute",
			trace.WithAttributes(
				attribute.String("jobrunner.job.id", inv.JobID.String()),
				attribute.String("jobrunner.task", inv.Task),
				attribute.Int("jobrunner.args", inv.Args.Len()),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
