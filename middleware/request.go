package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LaithMimi/blendarchatbot2/metrics"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID reuses an incoming X-Request-ID or mints one, stores it in the
// request context and echoes it back
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = logger.GenerateRequestID()
		}

		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog logs every request through the service logger
func AccessLog() gin.HandlerFunc {
	log := logger.GetLogger("http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		}
		if id, ok := GetIdentity(c); ok {
			fields["user_id"] = id.UID
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.WarnWithFieldsCtx(c.Request.Context(), "Request failed", fields)
		case c.Request.URL.Path == "/health":
			log.DebugWithFieldsCtx(c.Request.Context(), "Request completed", fields)
		default:
			log.InfoWithFieldsCtx(c.Request.Context(), "Request completed", fields)
		}
	}
}

// Metrics records request counts and latency by route template
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Recovery turns a panic into a 500 JSON response and logs the stack
func Recovery(m *metrics.Metrics) gin.HandlerFunc {
	log := logger.GetLogger("recovery")

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.ErrorWithFieldsCtx(c.Request.Context(), "Panic recovered", map[string]interface{}{
					"path":  c.Request.URL.Path,
					"panic": r,
					"stack": string(debug.Stack()),
				}, nil)
				m.Error("http")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "An internal server error occurred"})
			}
		}()
		c.Next()
	}
}
