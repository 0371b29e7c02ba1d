package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobrunner/ext"
	"github.com/xraph/jobrunner/job"
	mw "github.com/xraph/jobrunner/middleware"
	"github.com/xraph/jobrunner/queue"
	"github.com/xraph/jobrunner/store"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithRegistry sets the task registry. Every process sharing a broker must
// register the same task names.
func WithRegistry(r *job.Registry) Option {
	return func(eng *Engine) { eng.registry = r }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExts = append(eng.pendingExts, e) }
}

// WithMiddleware adds middleware to the execution chain, after the
// built-in tracing, metrics and logging middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithStore injects a state store and skips backend selection. Unless
// WithQueue is also given, invocations use an in-process queue.
func WithStore(s store.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithQueue injects the job queue. Only honoured together with
// WithStore.
func WithQueue(q queue.Queue) Option {
	return func(eng *Engine) { eng.queue = q }
}

// WithWorkers forces the local worker pool on or off. By default the pool
// runs in local mode only; worker processes enable it in distributed mode.
func WithWorkers(enabled bool) Option {
	return func(eng *Engine) { eng.workers = &enabled }
}

// WithSweeper turns the cleanup sweeper on or off. Enabled by default.
func WithSweeper(enabled bool) Option {
	return func(eng *Engine) { eng.sweep = enabled }
}

// WithTracerProvider sets a custom OTel TracerProvider. If not set, the
// global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. If not set, the
// global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// WithClock overrides the time source used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) { eng.now = now }
}
