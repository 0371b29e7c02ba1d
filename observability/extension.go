package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobrunner/ext"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.JobCreated     = (*MetricsExtension)(nil)
	_ ext.JobSubmitted   = (*MetricsExtension)(nil)
	_ ext.JobStarted     = (*MetricsExtension)(nil)
	_ ext.JobFinished    = (*MetricsExtension)(nil)
	_ ext.JobFailed      = (*MetricsExtension)(nil)
	_ ext.JobFinalized   = (*MetricsExtension)(nil)
	_ ext.SweepCompleted = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics. Register it as
// an extension to track creation and submission rates, outcome counts,
// evictions and saturation.
type MetricsExtension struct {
	JobsCreated   metric.Int64Counter
	JobsSubmitted metric.Int64Counter
	JobsFinished  metric.Int64Counter
	JobsFailed    metric.Int64Counter
	JobsFinalized metric.Int64Counter
	JobsActive    metric.Int64UpDownCounter
	JobDuration   metric.Float64Histogram
	Sweeps        metric.Int64Counter
	SweepEvicted  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension whose instruments come
// from meter.
func NewMetricsExtension(meter metric.Meter) (*MetricsExtension, error) {
	m := &MetricsExtension{}
	var err error

	if m.JobsCreated, err = meter.Int64Counter("jobrunner.jobs.created",
		metric.WithDescription("Total number of jobs created"),
	); err != nil {
		return nil, err
	}
	if m.JobsSubmitted, err = meter.Int64Counter("jobrunner.jobs.submitted",
		metric.WithDescription("Total number of invocations pushed onto the queue"),
	); err != nil {
		return nil, err
	}
	if m.JobsFinished, err = meter.Int64Counter("jobrunner.jobs.finished",
		metric.WithDescription("Total number of jobs that finished successfully"),
	); err != nil {
		return nil, err
	}
	if m.JobsFailed, err = meter.Int64Counter("jobrunner.jobs.failed",
		metric.WithDescription("Total number of jobs that failed"),
	); err != nil {
		return nil, err
	}
	if m.JobsFinalized, err = meter.Int64Counter("jobrunner.jobs.finalized",
		metric.WithDescription("Total number of jobs removed, by reason"),
	); err != nil {
		return nil, err
	}
	if m.JobsActive, err = meter.Int64UpDownCounter("jobrunner.jobs.active",
		metric.WithDescription("Number of jobs currently running (saturation)"),
	); err != nil {
		return nil, err
	}
	if m.JobDuration, err = meter.Float64Histogram("jobrunner.job.duration",
		metric.WithDescription("Task execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800),
	); err != nil {
		return nil, err
	}
	if m.Sweeps, err = meter.Int64Counter("jobrunner.sweeps",
		metric.WithDescription("Total number of cleanup passes"),
	); err != nil {
		return nil, err
	}
	if m.SweepEvicted, err = meter.Int64Counter("jobrunner.sweep.evicted",
		metric.WithDescription("Total number of jobs evicted by cleanup passes"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, r *job.Record) error {
	m.JobsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", r.Kind)))
	return nil
}

// OnJobSubmitted implements ext.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(ctx context.Context, inv *job.Invocation) error {
	m.JobsSubmitted.Add(ctx, 1, taskAttr(inv))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, inv *job.Invocation) error {
	m.JobsActive.Add(ctx, 1, taskAttr(inv))
	return nil
}

// OnJobFinished implements ext.JobFinished.
func (m *MetricsExtension) OnJobFinished(ctx context.Context, inv *job.Invocation, elapsed time.Duration) error {
	m.JobsFinished.Add(ctx, 1, taskAttr(inv))
	m.JobsActive.Add(ctx, -1, taskAttr(inv))
	m.JobDuration.Record(ctx, elapsed.Seconds(), taskAttr(inv))
	return nil
}

// OnJobFailed implements ext.JobFailed. Every failure is preceded by
// OnJobStarted, so the active gauge stays balanced.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, inv *job.Invocation, _ error) error {
	m.JobsFailed.Add(ctx, 1, taskAttr(inv))
	m.JobsActive.Add(ctx, -1, taskAttr(inv))
	return nil
}

// OnJobFinalized implements ext.JobFinalized.
func (m *MetricsExtension) OnJobFinalized(ctx context.Context, _ id.JobID, reason string) error {
	m.JobsFinalized.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return nil
}

// ── Other hooks ─────────────────────────────────────

// OnSweepCompleted implements ext.SweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(ctx context.Context, evicted int, _ time.Duration) error {
	m.Sweeps.Add(ctx, 1)
	m.SweepEvicted.Add(ctx, int64(evicted))
	return nil
}

func taskAttr(inv *job.Invocation) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("task", inv.Task))
}
