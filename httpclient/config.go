package httpclient

import (
	"fmt"
	"time"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultUserAgent       = "mediascribe/1.0"
	defaultMaxIdlePerHost  = 8
	defaultResponseTimeout = 30 * time.Second
)

// Config configures an outbound HTTP client.
type Config struct {
	// Timeout bounds a whole request including the body. Zero disables it;
	// streaming downloads rely on context deadlines instead.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// ResponseHeaderTimeout bounds the wait for response headers.
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout" mapstructure:"response_header_timeout"`

	UserAgent           string            `yaml:"user_agent" mapstructure:"user_agent"`
	Headers             map[string]string `yaml:"headers" mapstructure:"headers"`
	MaxIdleConnsPerHost int               `yaml:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	InsecureSkipVerify  bool              `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`

	// Auth is applied to every request. Nil sends no credentials.
	Auth Auth `yaml:"-" mapstructure:"-"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = defaultMaxIdlePerHost
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = defaultResponseTimeout
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("httpclient: timeout must not be negative")
	}
	return nil
}
