package engine

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/queue"
	redisqueue "github.com/xraph/jobrunner/queue/redis"
	"github.com/xraph/jobrunner/store/memory"
	redisstore "github.com/xraph/jobrunner/store/redis"
	"github.com/xraph/jobrunner/store/sqlite"
)

// Mode identifies the backend an engine runs on.
type Mode string

const (
	// ModeLocal keeps state in this process (or a local SQLite file) and
	// executes tasks on an in-process worker pool.
	ModeLocal Mode = "local"
	// ModeDistributed keeps state in Redis and dispatches invocations to
	// worker processes through a Redis list.
	ModeDistributed Mode = "distributed"
)

// selectBackend sets the store and queue from the configuration. It only
// fails when a local backend cannot be opened.
func (eng *Engine) selectBackend(ctx context.Context) error {
	if eng.store != nil {
		eng.mode = ModeLocal
		if eng.queue == nil {
			eng.queue = queue.NewMemory()
		}
		return nil
	}

	if eng.cfg.BrokerURL != "" {
		client, err := dialBroker(ctx, eng.cfg)
		if err == nil {
			eng.useRedis(client)
			return nil
		}
		eng.logger.Warn("broker unavailable, falling back to local mode",
			slog.String("error", err.Error()),
		)
	}

	eng.mode = ModeLocal
	eng.queue = queue.NewMemory()
	if eng.cfg.StatePath != "" {
		s, err := sqlite.Open(ctx, eng.cfg.StatePath)
		if err != nil {
			return fmt.Errorf("jobrunner/engine: open state: %w", err)
		}
		eng.store = s
		return nil
	}
	eng.store = memory.New()
	return nil
}

func (eng *Engine) useRedis(client *goredis.Client) {
	eng.mode = ModeDistributed
	eng.client = client
	eng.store = redisstore.New(client,
		redisstore.WithKeyPrefix(eng.cfg.KeyPrefix),
		redisstore.WithLogger(eng.logger),
	)
	eng.queue = redisqueue.New(client,
		redisqueue.WithKeyPrefix(eng.cfg.KeyPrefix),
		redisqueue.WithCodec(queue.GetCodec(eng.cfg.Codec)),
		redisqueue.WithLogger(eng.logger),
	)
}

// dialBroker parses the broker URL and pings the server. The returned
// client is closed on failure.
func dialBroker(ctx context.Context, cfg jobrunner.Config) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %w", jobrunner.ErrBrokerUnavailable, cfg.BrokerURL, err)
	}
	opts.ContextTimeoutEnabled = true
	if cfg.BrokerDialTimeout > 0 {
		opts.DialTimeout = cfg.BrokerDialTimeout
	}

	client := goredis.NewClient(opts)

	pingCtx := ctx
	if cfg.BrokerDialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.BrokerDialTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", jobrunner.ErrBrokerUnavailable, opts.Addr, err)
	}
	return client, nil
}
