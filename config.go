package jobrunner

import (
	"fmt"
	"os"
	"time"
)

// Codec names accepted by Config.Codec.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Config holds configuration for an engine.
type Config struct {
	// MaxConcurrent is the number of tasks executed at once by the local
	// worker pool. Jobs beyond this wait in FIFO order.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gt=0"`

	// JobTTL is how long after creation a job becomes eligible for eviction.
	JobTTL time.Duration `mapstructure:"job_ttl" validate:"gt=0"`

	// SweepInterval is how often expired jobs are evicted. A job is removed
	// at most one interval after it exceeds JobTTL. The schedule has
	// one-second resolution, so it must be a whole number of seconds.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=1s"`

	// BaseDir is the root under which per-job scratch directories are created.
	BaseDir string `mapstructure:"base_dir" validate:"required"`

	// BrokerURL enables distributed mode when set and reachable
	// (e.g. "redis://localhost:6379/0").
	BrokerURL string `mapstructure:"broker_url"`

	// BrokerDialTimeout bounds the reachability check performed at startup.
	BrokerDialTimeout time.Duration `mapstructure:"broker_dial_timeout" validate:"gte=0"`

	// KeyPrefix namespaces every Redis key written by the engine.
	KeyPrefix string `mapstructure:"key_prefix"`

	// Codec selects the broker message encoding: "json" or "msgpack".
	Codec string `mapstructure:"codec" validate:"omitempty,oneof=json msgpack"`

	// StatePath, when set in local mode, persists job records in a SQLite
	// database at this path instead of process memory.
	StatePath string `mapstructure:"state_path"`

	// ShutdownTimeout is the maximum time Stop waits for in-flight tasks.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`

	// LogLevel is used by the binary: debug, info, warn or error.
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// HTTPAddr is the listen address of the status API in the binary.
	HTTPAddr string `mapstructure:"http_addr"`

	// TaskLimits caps the rate and concurrency of individual tasks inside
	// a worker pool. Tasks without an entry are limited only by the pool.
	TaskLimits []TaskLimit `mapstructure:"task_limits" validate:"dive"`
}

// TaskLimit throttles one task name within a worker pool.
type TaskLimit struct {
	// Task is the registered task name.
	Task string `mapstructure:"task" validate:"required"`

	// MaxConcurrency limits how many invocations of Task run at once.
	// Zero means no task-specific limit.
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"gte=0"`

	// RateLimit is the sustained invocations per second. Zero disables
	// rate limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit
	// is set.
	RateBurst int `mapstructure:"rate_burst" validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     2,
		JobTTL:            24 * time.Hour,
		SweepInterval:     30 * time.Minute,
		BaseDir:           os.TempDir(),
		BrokerDialTimeout: 2 * time.Second,
		KeyPrefix:         "jobrunner:",
		Codec:             CodecJSON,
		ShutdownTimeout:   30 * time.Second,
		LogLevel:          "info",
		HTTPAddr:          ":8080",
	}
}

// Validate reports whether the configuration can start an engine.
// Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrent <= 0:
		return fmt.Errorf("%w: max_concurrent must be positive, got %d", ErrInvalidConfig, c.MaxConcurrent)
	case c.JobTTL <= 0:
		return fmt.Errorf("%w: job_ttl must be positive, got %s", ErrInvalidConfig, c.JobTTL)
	case c.SweepInterval < time.Second || c.SweepInterval%time.Second != 0:
		return fmt.Errorf("%w: sweep_interval must be a whole number of seconds >= 1s, got %s", ErrInvalidConfig, c.SweepInterval)
	case c.BaseDir == "":
		return fmt.Errorf("%w: base_dir is required", ErrInvalidConfig)
	case c.Codec != "" && c.Codec != CodecJSON && c.Codec != CodecMsgpack:
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, c.Codec)
	}
	for _, l := range c.TaskLimits {
		if l.Task == "" || l.MaxConcurrency < 0 || l.RateLimit < 0 || l.RateBurst < 0 {
			return fmt.Errorf("%w: invalid task limit %+v", ErrInvalidConfig, l)
		}
	}
	return nil
}
