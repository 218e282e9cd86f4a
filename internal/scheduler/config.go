package scheduler

import (
	"time"
)

// Config controls the import job. The tick interval itself comes from the
// hot-reloaded import config so an operator can change it without a restart.
type Config struct {
	// RunTimeout bounds one pipeline run. Zero means the current interval.
	RunTimeout time.Duration
	// LockTTLFactor multiplies the interval to get the run lock lease.
	LockTTLFactor int
	// InitialDelay postpones the first tick after startup.
	InitialDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		LockTTLFactor: 2,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.LockTTLFactor <= 0 {
		c.LockTTLFactor = defaults.LockTTLFactor
	}
	if c.RunTimeout < 0 {
		c.RunTimeout = 0
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	return c
}
