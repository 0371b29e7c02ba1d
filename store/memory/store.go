// Package memory provides an in-process job record store.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Records do not survive a restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Record
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Record),
	}
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// CreateJob persists a new record.
func (m *Store) CreateJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.jobs[key]; exists {
		return jobrunner.ErrJobAlreadyExists
	}
	m.jobs[key] = r.Clone()
	return nil
}

// GetJob retrieves a record by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, jobrunner.ErrJobNotFound
	}
	return r.Clone(), nil
}

// UpdateJob applies u under the write lock when the transition is legal.
func (m *Store) UpdateJob(_ context.Context, jobID id.JobID, u job.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return jobrunner.ErrJobNotFound
	}
	if !r.Status.CanTransition(u.Status) {
		return jobrunner.ErrInvalidState
	}
	if u.Result != nil {
		u.Result = append([]byte(nil), u.Result...)
	}
	r.Apply(u)
	return nil
}

// DeleteJob removes a record by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return false, nil
	}
	delete(m.jobs, key)
	return true, nil
}

// ListJobIDs returns the ids of all records.
func (m *Store) ListJobIDs(_ context.Context) ([]id.JobID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]id.JobID, 0, len(m.jobs))
	for _, r := range m.jobs {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
