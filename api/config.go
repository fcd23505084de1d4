package api

import "time"

const (
	defaultListLimit     = 50
	maxListLimit         = 500
	defaultMaxUploadSize = 100 << 20
	defaultKeepAlive     = 15 * time.Second
)

// Config configures the handlers.
type Config struct {
	// Models are the names shown by /v1/models.
	Models       []string
	DefaultModel string
	// MaxUploadSize caps a single uploaded file in bytes.
	MaxUploadSize int64
	// KeepAlive is the comment interval on event streams.
	KeepAlive time.Duration
	// ListLimit is the page size when ?limit is absent.
	ListLimit int
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = defaultMaxUploadSize
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if c.ListLimit <= 0 || c.ListLimit > maxListLimit {
		c.ListLimit = defaultListLimit
	}
}
