package server

import (
	"fmt"
	"time"

	"github.com/kbukum/mediascribe/server/middleware"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
	// MaxBodySize caps every request body, e.g. "128MB".
	MaxBodySize string `mapstructure:"max_body_size"`

	CORS      middleware.CORSConfig      `mapstructure:"cors"`
	Auth      middleware.AuthConfig      `mapstructure:"auth"`
	RateLimit middleware.RateLimitConfig `mapstructure:"rate_limit"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "60s"
	}
	// Uploads of large media files need a generous write window.
	if c.WriteTimeout == "" {
		c.WriteTimeout = "5m"
	}
	if c.IdleTimeout == "" {
		c.IdleTimeout = "120s"
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "128MB"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Request-Id"}
	}
	c.Auth.ApplyDefaults()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got: %d)", c.Port)
	}
	for name, v := range map[string]string{
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
		"idle_timeout":  c.IdleTimeout,
	} {
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("server.%s must be a non-negative duration (got: %q)", name, v)
		}
	}
	if _, err := middleware.ParseSize(c.MaxBodySize); err != nil {
		return fmt.Errorf("server.max_body_size: %w", err)
	}
	return c.Auth.Validate()
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
