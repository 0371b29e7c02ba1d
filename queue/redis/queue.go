// Package redis implements queue.Queue on a Redis list so that submitters
// and workers in different processes share one FIFO.
//
// Producers LPUSH encoded invocations onto {prefix}queue and consumers
// BRPOP from it, which hands each message to exactly one consumer. A
// message popped by a worker that then crashes is lost; its record stays
// queued until the sweeper evicts it.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/queue"
)

// Compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

// DefaultKeyPrefix matches the store's default so one prefix names a
// whole deployment.
const DefaultKeyPrefix = "jobrunner:"

// defaultPollTimeout bounds each BRPOP so Pop notices cancellation and
// Close promptly.
const defaultPollTimeout = time.Second

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithKeyPrefix namespaces the list key.
func WithKeyPrefix(prefix string) Option {
	return func(q *Queue) { q.key = prefix + "queue" }
}

// WithCodec sets the message codec. Defaults to JSON.
func WithCodec(c queue.Codec) Option {
	return func(q *Queue) { q.codec = c }
}

// WithPollTimeout sets the BRPOP timeout.
func WithPollTimeout(d time.Duration) Option {
	return func(q *Queue) { q.pollTimeout = d }
}

// Queue is a broker queue backed by a Redis list.
type Queue struct {
	client      goredis.UniversalClient
	key         string
	codec       queue.Codec
	pollTimeout time.Duration
	logger      *slog.Logger
	closed      atomic.Bool
}

// New creates a Redis-backed queue. The caller owns the client lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Queue {
	q := &Queue{
		client:      client,
		key:         DefaultKeyPrefix + "queue",
		codec:       &queue.JSONCodec{},
		pollTimeout: defaultPollTimeout,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Key returns the Redis list key.
func (q *Queue) Key() string { return q.key }

// Push encodes inv and appends it to the list.
func (q *Queue) Push(ctx context.Context, inv *job.Invocation) error {
	if q.closed.Load() {
		return jobrunner.ErrQueueClosed
	}
	data, err := q.codec.Encode(inv)
	if err != nil {
		return fmt.Errorf("jobrunner/redis: encode invocation: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("jobrunner/redis: push: %w", err)
	}
	return nil
}

// Pop blocks until a message arrives. Messages that fail to decode are
// logged and discarded.
func (q *Queue) Pop(ctx context.Context) (*job.Invocation, error) {
	for {
		if q.closed.Load() {
			return nil, jobrunner.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("jobrunner/redis: pop: %w", err)
		}

		// res is [key, value].
		if len(res) != 2 {
			continue
		}
		inv, err := q.codec.Decode([]byte(res[1]))
		if err != nil {
			q.logger.Error("jobrunner/redis: discarding undecodable message",
				slog.String("codec", q.codec.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		return inv, nil
	}
}

// Len returns the number of waiting messages.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("jobrunner/redis: len: %w", err)
	}
	return n, nil
}

// Close stops further pushes and makes blocked Pops return within one
// poll timeout. Messages already in Redis are left for other consumers.
func (q *Queue) Close() error {
	q.closed.Store(true)
	return nil
}
