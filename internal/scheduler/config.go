package scheduler

import (
	"time"

	"github.com/smallbiznis/entitlepool/internal/config"
)

// Config controls how often subscriptions are refreshed and in what batches.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	LockTTL     time.Duration
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 15 * time.Minute,
		BatchSize:   50,
		LockTTL:     5 * time.Minute,
		JobTimeout:  5 * time.Minute,
	}
}

// ProvideConfig maps application config; a zero RunInterval leaves the
// scheduler stopped.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Refresh.Interval,
		BatchSize:   cfg.Refresh.BatchSize,
		LockTTL:     cfg.Refresh.LockTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
