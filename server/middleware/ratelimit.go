package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/resilience"
)

// RateLimitConfig configures per-client rate limiting.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// RequestsPerSecond is the sustained rate per key.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	// Burst is the bucket size per key.
	Burst int `mapstructure:"burst"`
	// KeyFunc extracts the key. Defaults to the API key, else the client IP.
	KeyFunc func(*gin.Context) string `mapstructure:"-"`
}

// RateLimit rejects requests over budget with 429 and a Retry-After header.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientKey
	}
	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Rate:    cfg.RequestsPerSecond,
		Burst:   cfg.Burst,
		IdleTTL: 10 * time.Minute,
	})

	return func(c *gin.Context) {
		if isHealthEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}
		ok, wait := rl.Allow(cfg.KeyFunc(c))
		if !ok {
			err := errors.RateLimited(wait)
			c.Header("Retry-After", strconv.Itoa(int(err.RetryAfter().Seconds())))
			abort(c, err)
			return
		}
		c.Next()
	}
}

// ClientKey keys on the X-API-Key header, falling back to the client IP.
func ClientKey(c *gin.Context) string {
	if k := c.GetHeader(HeaderAPIKey); k != "" {
		return "key:" + k
	}
	return "ip:" + c.ClientIP()
}
