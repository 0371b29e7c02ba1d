// Package sweeper evicts expired jobs on a fixed schedule.
//
// A Sweeper owns a robfig/cron scheduler with a single "@every <interval>"
// entry. Each run calls the cleanup function supplied by the engine; errors
// are logged and the schedule continues. Runs never overlap: a run that is
// still in progress when the next one is due causes that one to be skipped.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// CleanupFunc evicts expired jobs and reports how many were removed.
type CleanupFunc func(ctx context.Context) (int, error)

// Sweeper periodically calls a CleanupFunc.
type Sweeper struct {
	cleanup  CleanupFunc
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cronlib.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New creates a Sweeper that runs cleanup every interval.
func New(cleanup CleanupFunc, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if cleanup == nil {
		return nil, errors.New("jobrunner/sweeper: nil cleanup func")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("jobrunner/sweeper: interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{cleanup: cleanup, interval: interval, logger: logger}, nil
}

// Interval returns the time between runs.
func (s *Sweeper) Interval() time.Duration { return s.interval }

// Start schedules the sweep. The first run happens one interval after
// Start. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	logger := cronLogger{s.logger}
	c := cronlib.New(
		cronlib.WithLogger(logger),
		cronlib.WithChain(cronlib.Recover(logger), cronlib.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc("@every "+s.interval.String(), s.run); err != nil {
		return fmt.Errorf("jobrunner/sweeper: schedule: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.running = true
	c.Start()

	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	return nil
}

// Stop removes the schedule and waits for a run in progress. When ctx ends
// first, the run's context is cancelled and Stop returns ctx's error.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	done := c.Stop().Done()
	select {
	case <-done:
		cancel()
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		cancel()
		return fmt.Errorf("jobrunner/sweeper: stop: %w", ctx.Err())
	}
}

// RunOnce performs a single sweep outside the schedule.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.cleanup(ctx)
}

func (s *Sweeper) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	evicted, err := s.cleanup(ctx)
	if err != nil {
		s.logger.Error("sweep failed",
			slog.Int("evicted", evicted),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("sweep completed",
		slog.Int("evicted", evicted),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// cronLogger adapts slog to cron.Logger. Scheduler chatter goes to debug.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}
