package queue

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/jobrunner"
)

// taskState tracks runtime state for a single task name.
type taskState struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

// Limiter controls per-task rate limiting and concurrency.
// It is safe for concurrent use. A nil *Limiter admits everything.
type Limiter struct {
	mu    sync.Mutex
	tasks map[string]*taskState
}

// NewLimiter creates a Limiter with the given task limits.
// Tasks not listed here have no limits.
func NewLimiter(limits ...jobrunner.TaskLimit) *Limiter {
	l := &Limiter{tasks: make(map[string]*taskState, len(limits))}
	for _, cfg := range limits {
		l.tasks[cfg.Task] = newTaskState(cfg)
	}
	return l
}

func newTaskState(cfg jobrunner.TaskLimit) *taskState {
	ts := &taskState{}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.MaxConcurrency > 0 {
		ts.slots = make(chan struct{}, cfg.MaxConcurrency)
	}
	return ts
}

func noop() {}

// Acquire blocks until task may run: a concurrency slot is free and a rate
// token is available. The caller MUST call the returned release when the
// invocation completes. An error is returned only when ctx ends first.
func (l *Limiter) Acquire(ctx context.Context, task string) (release func(), err error) {
	if l == nil {
		return noop, nil
	}
	l.mu.Lock()
	ts := l.tasks[task]
	l.mu.Unlock()
	if ts == nil {
		return noop, nil
	}

	release = noop
	if ts.slots != nil {
		select {
		case ts.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		var once sync.Once
		release = func() { once.Do(func() { <-ts.slots }) }
	}

	if ts.limiter != nil {
		if err := ts.limiter.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}

// ActiveCount returns the number of running invocations of task that hold
// a concurrency slot.
func (l *Limiter) ActiveCount(task string) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts := l.tasks[task]; ts != nil && ts.slots != nil {
		return len(ts.slots)
	}
	return 0
}
