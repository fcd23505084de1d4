package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config configures job execution and retention.
type Config struct {
	// Store is "memory" or "redis".
	Store string `mapstructure:"store"`
	// ScratchDir holds one working directory per running job.
	ScratchDir string `mapstructure:"scratch_dir"`
	// FetchTimeout bounds the whole fetch stage including retries.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// NormalizeTimeout bounds the normalize stage.
	NormalizeTimeout time.Duration `mapstructure:"normalize_timeout"`
	// TranscribeTimeout bounds one inference attempt.
	TranscribeTimeout time.Duration `mapstructure:"transcribe_timeout"`
	// InferenceAttempts bounds inference runs when the engine reports
	// exhausted resources.
	InferenceAttempts int `mapstructure:"inference_attempts"`
	// InferenceBackoff is the wait before the first inference retry; it
	// doubles on every retry.
	InferenceBackoff time.Duration `mapstructure:"inference_backoff"`
	// Retention is how long finished jobs are kept.
	Retention time.Duration `mapstructure:"retention"`
	// SweepInterval is how often expired jobs are deleted.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// ListLimit caps List results.
	ListLimit int `mapstructure:"list_limit"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Store == "" {
		c.Store = StoreMemory
	}
	if c.ScratchDir == "" {
		c.ScratchDir = filepath.Join(os.TempDir(), "mediascribe")
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 15 * time.Minute
	}
	if c.NormalizeTimeout == 0 {
		c.NormalizeTimeout = 10 * time.Minute
	}
	if c.TranscribeTimeout == 0 {
		c.TranscribeTimeout = time.Hour
	}
	if c.InferenceAttempts == 0 {
		c.InferenceAttempts = 3
	}
	if c.InferenceBackoff == 0 {
		c.InferenceBackoff = 5 * time.Second
	}
	if c.Retention == 0 {
		c.Retention = 24 * time.Hour
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 10 * time.Minute
	}
	if c.ListLimit == 0 {
		c.ListLimit = 100
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("jobs: unsupported store %q", c.Store)
	}
	if c.FetchTimeout < 0 || c.NormalizeTimeout < 0 || c.TranscribeTimeout < 0 {
		return fmt.Errorf("jobs: stage timeouts must be positive")
	}
	if c.InferenceAttempts < 1 {
		return fmt.Errorf("jobs: inference_attempts must be >= 1")
	}
	if c.Retention < 0 || c.SweepInterval < 0 {
		return fmt.Errorf("jobs: retention and sweep_interval must be positive")
	}
	return nil
}
