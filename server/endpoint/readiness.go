package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/mediascribe/component"
)

// Readiness answers 503 while any component is unhealthy. Degraded
// components, such as a scheduler at its queue limit, keep the service ready.
func Readiness(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ready", http.StatusOK
		var failing []string
		if checker != nil {
			for _, h := range checker(c.Request.Context()) {
				if h.Status == component.StatusUnhealthy {
					failing = append(failing, h.Name)
				}
			}
		}
		if len(failing) > 0 {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "service": serviceName, "failing": failing})
	}
}
