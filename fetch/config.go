package fetch

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config configures the Fetcher.
type Config struct {
	// Timeout is the wall-clock budget for a whole Fetch when the caller
	// passes no deadline.
	Timeout time.Duration `mapstructure:"timeout"`
	// AttemptTimeout bounds one download attempt. An attempt that runs past it
	// fails with FETCH_TIMEOUT and is retried while the deadline allows.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	MaxBytes       int64         `mapstructure:"max_bytes"`

	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`

	// BlockedHosts are refused with FETCH_FORBIDDEN. Entries match the host
	// and its subdomains.
	BlockedHosts []string `mapstructure:"blocked_hosts"`
	// AllowedHosts, when non-empty, is the only set of URL hosts accepted.
	AllowedHosts []string `mapstructure:"allowed_hosts"`

	// YTDLPHosts are video page hosts downloaded through yt-dlp.
	YTDLPHosts  []string `mapstructure:"ytdlp_hosts"`
	YTDLPBinary string   `mapstructure:"ytdlp_binary"`

	UserAgent string `mapstructure:"user_agent"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Minute
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Minute
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 500 << 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.YTDLPHosts == nil {
		c.YTDLPHosts = []string{"youtube.com", "youtu.be", "vimeo.com"}
	}
	if c.YTDLPBinary == "" {
		c.YTDLPBinary = "yt-dlp"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.AttemptTimeout > c.Timeout {
		return fmt.Errorf("fetch: attempt_timeout %s exceeds timeout %s", c.AttemptTimeout, c.Timeout)
	}
	if c.MaxAttempts > 10 {
		return fmt.Errorf("fetch: max_attempts must be at most 10")
	}
	return nil
}

// hostMatches reports whether host equals an entry or is a subdomain of it.
func hostMatches(host string, list []string) bool {
	return slices.ContainsFunc(list, func(entry string) bool {
		entry = strings.ToLower(strings.TrimPrefix(entry, "."))
		return host == entry || strings.HasSuffix(host, "."+entry)
	})
}
