// Package audithook is a jobrunner extension that turns job lifecycle
// events into audit records.
//
// Every hook the engine emits (created, submitted, started, finished,
// failed, finalized, sweep completed) becomes an [AuditEvent] handed to a
// [Recorder]. Severity is info for normal operations and critical for job
// failures. Metadata carries the task, kind, elapsed time and error.
//
// # Logging recorder
//
//	eng, err := engine.New(cfg,
//	    engine.WithExtension(audithook.New(audithook.NewLogRecorder(logger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobFinalized,
//	    ),
//	)
package audithook
