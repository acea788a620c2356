// Package config handles the daemon configuration file and environment
// overrides.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/prefstore/prefstore/internal/logger"
)

// DB configures the persisted key-value backend.
type DB struct {
	// Path of the sqlite database file; ":memory:" for ephemeral runs.
	Path string `mapstructure:"path"`
	// SyncQuota bounds the sync area, in bytes. Zero disables the limit.
	SyncQuota int64 `mapstructure:"syncQuota"`
}

// Schema configures the setting-definition document.
type Schema struct {
	Path     string        `mapstructure:"path"`
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
}

// Store configures the settings store timings.
type Store struct {
	Area       string        `mapstructure:"area"`
	Debounce   time.Duration `mapstructure:"debounce"`
	RetryDelay time.Duration `mapstructure:"retryDelay"`
}

// Cron configures the background jobs.
type Cron struct {
	// SafetyFlush is the cron spec for the periodic force-save of any
	// pending batch. Empty disables the job.
	SafetyFlush string `mapstructure:"safetyFlush"`
}

// Config is the overall daemon configuration.
type Config struct {
	Listen string        `mapstructure:"listen"`
	DB     DB            `mapstructure:"db"`
	Schema Schema        `mapstructure:"schema"`
	Store  Store         `mapstructure:"store"`
	Cron   Cron          `mapstructure:"cron"`
	Log    logger.Config `mapstructure:"log"`
}

// Read loads the configuration file at path (or the defaults when path
// is empty) with PREFSTORE_* environment overrides.
func Read(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("listen", "127.0.0.1:8093")
	v.SetDefault("db.path", "prefstore.db")
	v.SetDefault("db.syncQuota", 100*1024)
	v.SetDefault("schema.path", "etc/schema.json")
	v.SetDefault("schema.cacheTTL", 5*time.Minute)
	v.SetDefault("store.area", "local")
	v.SetDefault("store.debounce", 500*time.Millisecond)
	v.SetDefault("store.retryDelay", 2*time.Second)
	v.SetDefault("cron.safetyFlush", "@every 5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.serviceName", "prefstore")
	v.SetDefault("log.console.enabled", true)

	v.SetEnvPrefix("PREFSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "failed to read config file")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}

	return c, validate(c)
}

func validate(c Config) error {
	invalidErrMessage := "invalid config"

	if c.Listen == "" {
		return errors.Wrap(ErrListenEmpty, invalidErrMessage)
	}

	if c.DB.Path == "" {
		return errors.Wrap(ErrDBPathEmpty, invalidErrMessage)
	}

	if c.Store.Area != "local" && c.Store.Area != "sync" {
		return errors.Wrap(ErrUnknownArea, invalidErrMessage)
	}

	if c.Store.Debounce <= 0 || c.Store.RetryDelay <= 0 {
		return errors.Wrap(ErrTimingNotPositive, invalidErrMessage)
	}

	return nil
}
