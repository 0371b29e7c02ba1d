// Package config loads a jobrunner.Config from an optional YAML file and
// JOBRUNNER_* environment variables.
//
// Precedence, highest first: environment, file, jobrunner.DefaultConfig().
// Keys match the mapstructure tags of jobrunner.Config, so max_concurrent in
// the file becomes JOBRUNNER_MAX_CONCURRENT in the environment. Durations
// accept Go duration strings such as "30m" or "24h". Task limits can only
// be set in the file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/xraph/jobrunner"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "JOBRUNNER"

// Load reads configuration from path (skipped when empty) and the
// environment, then validates it. Validation failures wrap
// jobrunner.ErrInvalidConfig.
func Load(path string) (jobrunner.Config, error) {
	v := viper.New()
	setDefaults(v, jobrunner.DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return jobrunner.Config{}, fmt.Errorf("jobrunner/config: read %s: %w", path, err)
		}
	}

	var cfg jobrunner.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return jobrunner.Config{}, fmt.Errorf("%w: decode: %w", jobrunner.ErrInvalidConfig, err)
	}

	if err := Validate(cfg); err != nil {
		return jobrunner.Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and then the semantic rules of cfg.
func Validate(cfg jobrunner.Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", jobrunner.ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", jobrunner.ErrInvalidConfig, err)
	}
	return cfg.Validate()
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d jobrunner.Config) {
	v.SetDefault("max_concurrent", d.MaxConcurrent)
	v.SetDefault("job_ttl", d.JobTTL)
	v.SetDefault("sweep_interval", d.SweepInterval)
	v.SetDefault("base_dir", d.BaseDir)
	v.SetDefault("broker_url", d.BrokerURL)
	v.SetDefault("broker_dial_timeout", d.BrokerDialTimeout)
	v.SetDefault("key_prefix", d.KeyPrefix)
	v.SetDefault("codec", d.Codec)
	v.SetDefault("state_path", d.StatePath)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("http_addr", d.HTTPAddr)
}
