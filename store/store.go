// Package store defines the persistence interface shared by every job
// record backend.
package store

import (
	"context"

	"github.com/xraph/jobrunner/job"
)

// Store is a job.Store with connection lifecycle. Backends: memory,
// sqlite and redis.
type Store interface {
	job.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
