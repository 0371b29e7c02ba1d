// Package store defines the composite persistence interface for job records.
//
// [Store] embeds job.Store and adds connection lifecycle:
//
//	type Store interface {
//	    job.Store
//
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory: records live in process memory and vanish on restart
//   - store/sqlite: single-node durable records using modernc.org/sqlite
//   - store/redis: shared records for a fleet of workers using go-redis/v9
//
// The engine picks a backend once at construction: a reachable broker
// selects redis, otherwise sqlite when a state path is configured and
// memory when it is not.
//
// # Conditional updates
//
// Every backend applies job.Update only when the record's current status is
// the predecessor of the target status. This is what lets a worker detect
// that a job was finalized, or already claimed by another worker, before it
// starts running the task.
//
// Package store/storetest holds the behaviour every backend must share.
package store
