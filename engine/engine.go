package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/ext"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
	mw "github.com/xraph/jobrunner/middleware"
	"github.com/xraph/jobrunner/observability"
	"github.com/xraph/jobrunner/queue"
	"github.com/xraph/jobrunner/store"
	"github.com/xraph/jobrunner/sweeper"
	"github.com/xraph/jobrunner/workdir"
	"github.com/xraph/jobrunner/worker"
)

const instrumentationName = "github.com/xraph/jobrunner"

// Engine owns the job lifecycle: it creates jobs and their directories,
// dispatches invocations, answers status queries and evicts expired jobs.
type Engine struct {
	cfg        jobrunner.Config
	logger     *slog.Logger
	registry   *job.Registry
	extensions *ext.Registry
	workdirs   *workdir.Allocator
	now        func() time.Time

	mode   Mode
	store  store.Store
	queue  queue.Queue
	client *goredis.Client

	executor *worker.Executor
	pool     *worker.Pool
	sweeper  *sweeper.Sweeper

	pendingExts    []ext.Extension
	mws            []mw.Middleware
	workers        *bool
	sweep          bool
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	stopOnce sync.Once
	stopErr  error
}

// New validates cfg, selects the backend and builds the engine. It does not
// start any goroutines; call Start for that.
func New(cfg jobrunner.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eng := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		sweep:  true,
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.registry == nil {
		eng.registry = job.NewRegistry()
	}

	eng.extensions = ext.NewRegistry(eng.logger)
	eng.registerMetricsExtension()
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	workdirs, err := workdir.New(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jobrunner.ErrInvalidConfig, err)
	}
	eng.workdirs = workdirs

	if err := eng.selectBackend(context.Background()); err != nil {
		return nil, err
	}

	eng.executor = worker.NewExecutor(eng.registry, eng.extensions, eng.store, eng.logger,
		worker.WithClock(eng.now),
		worker.WithMiddleware(eng.middleware()...),
	)

	if eng.runWorkers() {
		eng.pool = worker.NewPool(eng.queue, eng.executor, eng.logger,
			worker.WithPoolConcurrency(cfg.MaxConcurrent),
		)
	}

	if eng.sweep {
		sw, err := sweeper.New(eng.CleanupExpired, cfg.SweepInterval, eng.logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", jobrunner.ErrInvalidConfig, err)
		}
		eng.sweeper = sw
	}

	eng.logger.Info("engine configured",
		slog.String("mode", string(eng.mode)),
		slog.Int("max_concurrent", cfg.MaxConcurrent),
		slog.Bool("workers", eng.pool != nil),
		slog.String("base_dir", workdirs.Base()),
	)
	return eng, nil
}

func (eng *Engine) runWorkers() bool {
	if eng.workers != nil {
		return *eng.workers
	}
	return eng.mode == ModeLocal
}

// middleware builds the execution chain: tracing, metrics, logging, task
// limits, then caller middleware. The executor adds panic recovery
// outermost.
func (eng *Engine) middleware() []mw.Middleware {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	mws := []mw.Middleware{tracingMw, metricsMw, mw.Logging(eng.logger)}
	if len(eng.cfg.TaskLimits) > 0 {
		mws = append(mws, mw.Limit(queue.NewLimiter(eng.cfg.TaskLimits...)))
	}
	return append(mws, eng.mws...)
}

func (eng *Engine) registerMetricsExtension() {
	mp := eng.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	obsExt, err := observability.NewMetricsExtension(mp.Meter(instrumentationName + "/observability"))
	if err != nil {
		eng.logger.Warn("metrics extension disabled", slog.String("error", err.Error()))
		return
	}
	eng.extensions.Register(obsExt)
}

// ──────────────────────────────────────────────────
// Job operations
// ──────────────────────────────────────────────────

// CreateJob allocates a work directory and records a new queued job. When
// the record cannot be stored the directory is removed again.
func (eng *Engine) CreateJob(ctx context.Context, kind string) (*job.Record, error) {
	dir, err := eng.workdirs.Allocate(kind)
	if err != nil {
		return nil, fmt.Errorf("jobrunner/engine: create job: %w", err)
	}

	rec := job.NewRecord(id.NewJobID(), kind, dir, eng.now())
	if err := eng.store.CreateJob(ctx, rec); err != nil {
		if rmErr := eng.workdirs.Remove(dir); rmErr != nil {
			eng.logger.Warn("failed to remove work dir of unregistered job",
				slog.String("work_dir", dir),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, fmt.Errorf("jobrunner/engine: create job: %w", err)
	}

	eng.extensions.EmitJobCreated(ctx, rec)
	eng.logger.Info("job created",
		slog.String("job_id", rec.ID.String()),
		slog.String("kind", kind),
	)
	return rec.Clone(), nil
}

// Submit schedules task to run with args for the given queued job. It
// returns once the invocation is queued and never waits for execution.
func (eng *Engine) Submit(ctx context.Context, jobID, task string, args ...any) error {
	if !eng.registry.Has(task) {
		return fmt.Errorf("%w: %s", jobrunner.ErrTaskNotRegistered, task)
	}

	parsed, err := id.Parse(jobID)
	if err != nil {
		return fmt.Errorf("%w: %q", jobrunner.ErrJobNotFound, jobID)
	}
	rec, err := eng.store.GetJob(ctx, parsed)
	if err != nil {
		return fmt.Errorf("jobrunner/engine: submit: %w", err)
	}
	if rec.Status != job.StatusQueued {
		return fmt.Errorf("%w: job %s is %s", jobrunner.ErrInvalidState, jobID, rec.Status)
	}

	encoded, err := job.EncodeArgs(args...)
	if err != nil {
		return fmt.Errorf("jobrunner/engine: submit: %w", err)
	}
	inv := &job.Invocation{
		JobID:      parsed,
		Task:       task,
		Args:       encoded,
		EnqueuedAt: eng.now().UTC(),
	}
	if err := eng.queue.Push(ctx, inv); err != nil {
		return fmt.Errorf("jobrunner/engine: submit: %w", err)
	}

	eng.extensions.EmitJobSubmitted(ctx, inv)
	eng.logger.Debug("job submitted",
		slog.String("job_id", jobID),
		slog.String("task", task),
	)
	return nil
}

// GetJob returns the full record. Unknown, malformed or unreadable ids are
// reported as absent.
func (eng *Engine) GetJob(ctx context.Context, jobID string) (*job.Record, bool) {
	parsed, err := id.Parse(jobID)
	if err != nil {
		return nil, false
	}
	rec, err := eng.store.GetJob(ctx, parsed)
	if err != nil {
		if !errors.Is(err, jobrunner.ErrJobNotFound) {
			eng.logger.Error("failed to read job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	return rec, true
}

// GetPublicStatus returns the externally visible view of a job.
func (eng *Engine) GetPublicStatus(ctx context.Context, jobID string) (*job.PublicStatus, bool) {
	rec, ok := eng.GetJob(ctx, jobID)
	if !ok {
		return nil, false
	}
	return rec.Public(), true
}

// FinalizeJob removes the job's record and then its directory. It reports
// true only to the call that removed an existing record.
func (eng *Engine) FinalizeJob(ctx context.Context, jobID string) bool {
	parsed, err := id.Parse(jobID)
	if err != nil {
		return false
	}
	removed, err := eng.finalize(ctx, parsed, ext.ReasonFinalized)
	if err != nil {
		eng.logger.Error("failed to finalize job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
	return removed
}

// finalize deletes the record first so pollers stop seeing the job before
// its directory disappears.
func (eng *Engine) finalize(ctx context.Context, jobID id.JobID, reason string) (bool, error) {
	rec, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobrunner.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	existed, err := eng.store.DeleteJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}

	if err := eng.workdirs.Remove(rec.WorkDir); err != nil {
		eng.logger.Warn("failed to remove work dir",
			slog.String("job_id", jobID.String()),
			slog.String("work_dir", rec.WorkDir),
			slog.String("error", err.Error()),
		)
	}

	eng.extensions.EmitJobFinalized(ctx, jobID, reason)
	eng.logger.Info("job finalized",
		slog.String("job_id", jobID.String()),
		slog.String("reason", reason),
	)
	return true, nil
}

// CleanupExpired finalizes every job created more than JobTTL ago,
// whatever its status, and drops index entries whose record is gone. It
// returns the number of evicted jobs and the per-job errors, if any.
func (eng *Engine) CleanupExpired(ctx context.Context) (int, error) {
	start := eng.now()
	ids, err := eng.store.ListJobIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobrunner/engine: cleanup: %w", err)
	}

	var (
		merr    *multierror.Error
		evicted int
	)
	for _, jobID := range ids {
		if err := ctx.Err(); err != nil {
			merr = multierror.Append(merr, err)
			break
		}

		rec, err := eng.store.GetJob(ctx, jobID)
		if errors.Is(err, jobrunner.ErrJobNotFound) {
			if _, err := eng.store.DeleteJob(ctx, jobID); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("prune %s: %w", jobID, err))
			}
			continue
		}
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("read %s: %w", jobID, err))
			continue
		}
		if !rec.Expired(start, eng.cfg.JobTTL) {
			continue
		}

		removed, err := eng.finalize(ctx, jobID, ext.ReasonExpired)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("evict %s: %w", jobID, err))
			continue
		}
		if removed {
			evicted++
		}
	}

	eng.extensions.EmitSweepCompleted(ctx, evicted, eng.now().Sub(start))
	if evicted > 0 {
		eng.logger.Info("expired jobs evicted", slog.Int("evicted", evicted))
	}
	return evicted, merr.ErrorOrNil()
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the worker pool, when this engine runs one, and the
// cleanup sweeper.
func (eng *Engine) Start(ctx context.Context) error {
	if eng.pool != nil {
		if err := eng.pool.Start(ctx); err != nil {
			return fmt.Errorf("jobrunner/engine: start workers: %w", err)
		}
	}
	if eng.sweeper != nil {
		if err := eng.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("jobrunner/engine: start sweeper: %w", err)
		}
	}
	return nil
}

// Stop waits for in-flight tasks up to Config.ShutdownTimeout (or ctx's
// deadline, whichever is sooner), then releases the backend. Tasks still
// running after the pool's stop grace are abandoned and Stop returns the
// deadline error. Only the first call has an effect.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.stopOnce.Do(func() { eng.stopErr = eng.stop(ctx) })
	return eng.stopErr
}

func (eng *Engine) stop(ctx context.Context) error {
	if eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	var merr *multierror.Error
	if eng.pool != nil {
		if err := eng.pool.Stop(ctx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if eng.sweeper != nil {
		if err := eng.sweeper.Stop(ctx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	eng.extensions.EmitShutdown(ctx)

	if err := eng.queue.Close(); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("close queue: %w", err))
	}
	if err := eng.store.Close(); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("close store: %w", err))
	}
	if eng.client != nil {
		if err := eng.client.Close(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("close broker: %w", err))
		}
	}
	return merr.ErrorOrNil()
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Mode returns the backend the engine selected.
func (eng *Engine) Mode() Mode { return eng.mode }

// Config returns the engine's configuration.
func (eng *Engine) Config() jobrunner.Config { return eng.cfg }

// Registry returns the task registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Store returns the state store.
func (eng *Engine) Store() store.Store { return eng.store }

// Ping checks that the state store is reachable.
func (eng *Engine) Ping(ctx context.Context) error { return eng.store.Ping(ctx) }
