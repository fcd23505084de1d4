package endpoint

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/mediascribe/version"
)

var startTime = time.Now()

// Info returns a handler reporting the service version, build and uptime.
// The configured version wins over the one stamped into the binary.
func Info(serviceName, configured string) gin.HandlerFunc {
	build := version.Get()
	if configured != "" {
		build.Version = configured
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":    serviceName,
			"version":    build.Version,
			"revision":   build.Commit,
			"dirty":      build.Dirty,
			"build_time": build.BuildTime,
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(startTime).Round(time.Second).String(),
		})
	}
}
