package queue

import (
	"context"
	"sync"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/job"
)

// Queue is a FIFO of invocations shared by submitters and workers.
type Queue interface {
	// Push appends inv. It does not wait for a consumer.
	Push(ctx context.Context, inv *job.Invocation) error

	// Pop blocks until an invocation is available, ctx is done or the
	// queue is closed, in which case it returns jobrunner.ErrQueueClosed.
	Pop(ctx context.Context) (*job.Invocation, error)

	// Close wakes every blocked Pop. Further pushes fail.
	Close() error
}

// Compile-time interface check.
var _ Queue = (*Memory)(nil)

// Memory is an unbounded in-process FIFO queue. It is safe for concurrent
// use by any number of producers and consumers.
type Memory struct {
	mu     sync.Mutex
	items  []*job.Invocation
	closed bool
	signal chan struct{}
	done   chan struct{}
}

// NewMemory returns an empty Memory queue.
func NewMemory() *Memory {
	return &Memory{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends inv to the tail of the queue.
func (m *Memory) Push(_ context.Context, inv *job.Invocation) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return jobrunner.ErrQueueClosed
	}
	m.items = append(m.items, inv)
	m.mu.Unlock()

	m.notify()
	return nil
}

// Pop removes and returns the head of the queue.
func (m *Memory) Pop(ctx context.Context) (*job.Invocation, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, jobrunner.ErrQueueClosed
		}
		if len(m.items) > 0 {
			inv := m.items[0]
			m.items[0] = nil
			m.items = m.items[1:]
			more := len(m.items) > 0
			m.mu.Unlock()
			if more {
				// Pass the wakeup on to the next waiting consumer.
				m.notify()
			}
			return inv, nil
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-m.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of waiting invocations.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close discards waiting invocations and wakes every consumer.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.items = nil
	close(m.done)
	return nil
}

func (m *Memory) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}
