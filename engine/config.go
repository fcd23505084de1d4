package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/kbukum/mediascribe/transcription"
)

// Config configures the Adapter and selects the backend.
type Config struct {
	// Backend is the registered engine name ("whisper" or "whispercpp").
	Backend string `mapstructure:"backend"`
	// DefaultModel is used when a job does not name one.
	DefaultModel string `mapstructure:"default_model"`
	// Models are the model names jobs may request.
	Models []string `mapstructure:"models"`

	// MaxWindow caps the audio sent in one engine call. Zero defers to the
	// engine's own limit; no limit means one call for the whole file.
	MaxWindow time.Duration `mapstructure:"max_window"`
	// Overlap is shared between consecutive windows so words on a boundary
	// are heard whole by at least one window.
	Overlap time.Duration `mapstructure:"overlap"`

	Whisper    map[string]any `mapstructure:"whisper"`
	WhisperCPP map[string]any `mapstructure:"whispercpp"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "whisper"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "base"
	}
	if len(c.Models) == 0 {
		c.Models = slices.Clone(transcription.Models)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxWindow < 0 || c.Overlap < 0 {
		return fmt.Errorf("engine: max_window and overlap must not be negative")
	}
	if c.MaxWindow > 0 && c.Overlap*2 >= c.MaxWindow {
		return fmt.Errorf("engine: overlap %s must be less than half of max_window %s", c.Overlap, c.MaxWindow)
	}
	if !slices.Contains(c.Models, c.DefaultModel) {
		return fmt.Errorf("engine: default_model %q is not in models %v", c.DefaultModel, c.Models)
	}
	return nil
}

// BackendConfig returns the settings map for the selected backend.
func (c *Config) BackendConfig() map[string]any {
	switch c.Backend {
	case "whispercpp":
		return c.WhisperCPP
	default:
		return c.Whisper
	}
}
