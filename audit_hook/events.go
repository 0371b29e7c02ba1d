package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobCreated     = "job.created"
	ActionJobSubmitted   = "job.submitted"
	ActionJobStarted     = "job.started"
	ActionJobFinished    = "job.finished"
	ActionJobFailed      = "job.failed"
	ActionJobFinalized   = "job.finalized"
	ActionSweepCompleted = "sweep.completed"
)

// Audit event categories group related actions.
const (
	CategoryJob   = "jobrunner.job"
	CategorySweep = "jobrunner.sweep"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob   = "job"
	ResourceSweep = "sweeper"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionJobSubmitted,
		ActionJobStarted,
		ActionJobFinished,
		ActionJobFailed,
		ActionJobFinalized,
		ActionSweepCompleted,
	}
}
