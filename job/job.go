package job

import (
	"encoding/json"
	"time"

	"github.com/xraph/jobrunner/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job exists and is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusRunning means a worker is currently executing the job's task.
	StatusRunning Status = "running"
	// StatusFinished means the task returned successfully.
	StatusFinished Status = "finished"
	// StatusFailed means the task returned an error or panicked.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusFinished, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions can occur from s.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Predecessor returns the only status from which s may be entered.
// The initial status has no predecessor.
func (s Status) Predecessor() (Status, bool) {
	switch s {
	case StatusRunning:
		return StatusQueued, true
	case StatusFinished, StatusFailed:
		return StatusRunning, true
	}
	return "", false
}

// CanTransition reports whether a job in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	prev, ok := next.Predecessor()
	return ok && prev == s
}

// Record is the persistent state of a single job.
type Record struct {
	ID        id.JobID        `json:"id"`
	Kind      string          `json:"kind"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_ts"`
	UpdatedAt time.Time       `json:"updated_ts"`
	WorkDir   string          `json:"work_dir"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// NewRecord returns the initial record for a freshly created job.
func NewRecord(jobID id.JobID, kind, workDir string, now time.Time) *Record {
	now = now.UTC()
	return &Record{
		ID:        jobID,
		Kind:      kind,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		WorkDir:   workDir,
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := *r
	if r.Result != nil {
		cp.Result = append(json.RawMessage(nil), r.Result...)
	}
	return &cp
}

// Age returns how long ago the job was created relative to now.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Expired reports whether the job is older than ttl.
func (r *Record) Expired(now time.Time, ttl time.Duration) bool {
	return r.Age(now) > ttl
}

// Apply mutates the record with u. Callers must have checked the
// transition with CanTransition first. UpdatedAt never moves backwards.
func (r *Record) Apply(u Update) {
	r.Status = u.Status
	at := u.At.UTC()
	if at.After(r.UpdatedAt) {
		r.UpdatedAt = at
	}
	switch u.Status {
	case StatusFinished:
		r.Result = u.Result
		r.Error = ""
	case StatusFailed:
		r.Error = u.Error
		r.Result = nil
	}
}

// Public returns the restricted view handed to pollers.
func (r *Record) Public() *PublicStatus {
	ps := &PublicStatus{
		JobID:  r.ID.String(),
		Status: r.Status,
		Result: r.Result,
	}
	if r.Error != "" {
		msg := r.Error
		ps.Error = &msg
	}
	return ps
}

// Update is an atomic state transition written by the worker that owns
// the job. Result is honoured only for StatusFinished and Error only for
// StatusFailed.
type Update struct {
	Status Status
	Result json.RawMessage
	Error  string
	At     time.Time
}

// PublicStatus is the externally visible view of a job. Internal fields
// such as the work directory are omitted.
type PublicStatus struct {
	JobID  string          `json:"job_id"`
	Status Status          `json:"status"`
	Error  *string         `json:"error"`
	Result json.RawMessage `json:"result"`
}
