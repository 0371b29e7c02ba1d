package job

import (
	"context"

	"github.com/xraph/jobrunner/id"
)

// Store defines the persistence contract for job records.
//
// Implementations return jobrunner.ErrJobNotFound for unknown ids,
// jobrunner.ErrJobAlreadyExists on duplicate creation and
// jobrunner.ErrInvalidState when an update does not follow the lifecycle.
type Store interface {
	// CreateJob persists a new record.
	CreateJob(ctx context.Context, r *Record) error

	// GetJob retrieves a record by ID. The returned value is a copy.
	GetJob(ctx context.Context, jobID id.JobID) (*Record, error)

	// UpdateJob atomically applies u to the record, provided the record's
	// current status is the predecessor of u.Status. Readers never observe
	// a partially applied update.
	UpdateJob(ctx context.Context, jobID id.JobID, u Update) error

	// DeleteJob removes a record and reports whether it existed.
	DeleteJob(ctx context.Context, jobID id.JobID) (bool, error)

	// ListJobIDs returns the ids of all known records.
	ListJobIDs(ctx context.Context) ([]id.JobID, error)
}
