// Package queue defines how invocations travel from Submit to a worker.
//
// A [Queue] carries *job.Invocation values in FIFO order. [Memory] is the
// in-process implementation used in local mode; queue/redis provides the
// broker used when workers run in separate processes. Neither rejects a
// push for lack of capacity: waiting in the queue is the backpressure.
//
// # Codecs
//
// Broker queues serialize invocations with a [Codec]. [JSONCodec] is the
// default; [MsgpackCodec] produces smaller messages. Every process sharing
// a broker must use the same codec.
//
// # Task limits
//
// [Limiter] enforces per-task rate and concurrency caps inside a worker
// pool. It uses a token-bucket rate limiter (golang.org/x/time/rate) and
// a slot channel for concurrency:
//
//	l := queue.NewLimiter(jobrunner.TaskLimit{Task: "report.render", MaxConcurrency: 1})
//	release, err := l.Acquire(ctx, inv.Task)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
// Tasks without a limit pass straight through.
package queue
