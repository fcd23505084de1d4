package scheduler

import (
	"fmt"
	"runtime"
	"time"
)

// Config configures the worker pool.
type Config struct {
	// Workers is the number of jobs processed concurrently, including the
	// time spent fetching.
	Workers int `mapstructure:"workers"`
	// Slots bounds concurrent normalize and inference work.
	Slots int `mapstructure:"slots"`
	// MaxQueueDepth is the backlog past which submissions are rejected.
	// Zero disables the check.
	MaxQueueDepth int `mapstructure:"max_queue_depth"`
	// RetryAfter is the hint returned to rejected clients.
	RetryAfter time.Duration `mapstructure:"retry_after"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Slots <= 0 {
		c.Slots = max(1, runtime.NumCPU()/2)
	}
	if c.Workers <= 0 {
		c.Workers = c.Slots * 4
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = 100
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = 30 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Workers < c.Slots {
		return fmt.Errorf("scheduler: workers (%d) must be at least slots (%d)", c.Workers, c.Slots)
	}
	if c.MaxQueueDepth < 0 {
		return fmt.Errorf("scheduler: max_queue_depth must be >= 0")
	}
	return nil
}
