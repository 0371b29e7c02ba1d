// Package job defines the job record, its status machine, the invocation
// placed on a queue, the task registry and the store interface.
//
// # Job Record
//
// A [Record] holds a job's identity, caller-supplied kind, status,
// timestamps, scratch directory and, once terminal, either a result or an
// error message. Status only moves forward:
//
//	queued → running → finished
//	queued → running → failed
//
// Removal (finalize or TTL sweep) is a side exit from any state and is not
// modelled as a status.
//
// # Tasks
//
// Tasks are referenced by a stable name so the same submission works
// in-process and across a broker. Register them at startup:
//
//	reg := job.NewRegistry()
//	reg.Register(job.NewDefinition("word.count",
//	    func(ctx context.Context, args job.Args) (any, error) {
//	        text, err := args.String(0)
//	        if err != nil {
//	            return nil, err
//	        }
//	        return len(strings.Fields(text)), nil
//	    },
//	))
//
// [Typed] wraps a function with one decoded argument. A running task finds
// its work directory with [WorkDirFrom].
package job
