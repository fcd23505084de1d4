package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/mediascribe/observability"
)

// Telemetry wraps each request in a span and records request metrics by
// route template. Health probes are skipped.
func Telemetry(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		m = observability.NoopMetrics()
	}
	return func(c *gin.Context) {
		if isHealthEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := observability.StartSpan(c.Request.Context(), observability.SpanHTTPRequest,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String(observability.AttrRequestID, c.GetString(ContextKeyRequestID)),
			))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		span.SetAttributes(attribute.Int(observability.AttrStatus, status))
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
		}
		m.RecordRequest(ctx, c.Request.Method, route, status, time.Since(start))
	}
}
