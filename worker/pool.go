package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/backoff"
	"github.com/xraph/jobrunner/queue"
)

// Pool runs a fixed number of goroutines that pop invocations from a queue
// and hand them to the Executor. Invocations beyond the pool's concurrency
// wait in the queue in arrival order.
type Pool struct {
	queue       queue.Queue
	executor    *Executor
	concurrency int
	backoff     backoff.Strategy
	stopGrace   time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	stopPop context.CancelFunc
	wg      sync.WaitGroup

	activeMu   sync.Mutex
	nextRun    uint64
	activeJobs map[uint64]activeRun
}

// activeRun is one execution in flight. Runs are keyed by a per-run token
// because a duplicate delivery may run alongside the original.
type activeRun struct {
	jobID  string
	cancel context.CancelFunc
}

// DefaultStopGrace is how long Stop waits for cancelled tasks to return.
const DefaultStopGrace = time.Second

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithBackoff sets the delay strategy used after queue errors.
func WithBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.backoff = s }
}

// WithStopGrace sets how long Stop waits for tasks after cancelling them.
func WithStopGrace(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d >= 0 {
			p.stopGrace = d
		}
	}
}

// NewPool creates a worker pool over q.
func NewPool(q queue.Queue, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		queue:       q,
		executor:    executor,
		concurrency: 1,
		backoff:     backoff.DefaultStrategy(),
		stopGrace:   DefaultStopGrace,
		logger:      logger,
		activeJobs:  make(map[uint64]activeRun),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Concurrency returns the number of worker goroutines.
func (p *Pool) Concurrency() int { return p.concurrency }

// Start launches the worker goroutines. It returns immediately; calling
// Start on a running pool is a no-op.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	popCtx, cancel := context.WithCancel(context.Background())
	p.stopPop = cancel

	p.logger.Info("worker pool starting", slog.Int("concurrency", p.concurrency))

	for range p.concurrency {
		p.wg.Add(1)
		go p.loop(popCtx)
	}
	return nil
}

// Stop stops taking new invocations and waits for in-flight tasks. When ctx
// ends first, the contexts of running tasks are cancelled and Stop waits at
// most the stop grace for them. Tasks still running after that are left
// detached and Stop returns ctx's error.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stopPop()
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active tasks")
		p.cancelActiveJobs()
		grace := time.NewTimer(p.stopGrace)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			p.logger.Error("worker pool abandoned tasks that ignored cancellation",
				slog.Int("active", p.ActiveCount()),
			)
			return fmt.Errorf("jobrunner/worker: stop: %w", ctx.Err())
		}
	}
	return nil
}

// ActiveCount returns the number of tasks currently executing.
func (p *Pool) ActiveCount() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.activeJobs)
}

func (p *Pool) loop(popCtx context.Context) {
	defer p.wg.Done()

	failures := 0
	for {
		inv, err := p.queue.Pop(popCtx)
		if err != nil {
			if popCtx.Err() != nil || errors.Is(err, jobrunner.ErrQueueClosed) {
				return
			}
			failures++
			p.logger.Error("queue pop failed",
				slog.Int("attempt", failures),
				slog.String("error", err.Error()),
			)
			if !p.sleep(popCtx, failures) {
				return
			}
			continue
		}
		failures = 0

		p.run(inv.JobID.String(), func(ctx context.Context) error {
			return p.executor.Execute(ctx, inv)
		})
	}
}

// run executes fn under a context that outlives the pool's pop context so
// Stop can let in-flight tasks finish.
func (p *Pool) run(jobID string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token := p.trackJob(jobID, cancel)
	defer p.untrackJob(token)

	if err := fn(ctx); err != nil {
		p.logger.Error("job execution error",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) sleep(ctx context.Context, attempt int) bool {
	select {
	case <-time.After(p.backoff.Delay(attempt)):
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) uint64 {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	p.nextRun++
	p.activeJobs[p.nextRun] = activeRun{jobID: jobID, cancel: cancel}
	return p.nextRun
}

func (p *Pool) untrackJob(token uint64) {
	p.activeMu.Lock()
	delete(p.activeJobs, token)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for _, run := range p.activeJobs {
		p.logger.Warn("cancelling active task", slog.String("job_id", run.jobID))
		run.cancel()
	}
}
