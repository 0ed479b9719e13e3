package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cloudvault-backend/internal/shared/telemetry"
)

// Context keys handlers may set to enrich the request log line.
const (
	FileIDKey  = "fileId"
	EventIDKey = "eventId"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"bytes":       c.Writer.Size(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"user_id":     UserIDFromContext(c),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if p, ok := PrincipalFromContext(c); ok {
			fields["scheme"] = string(p.Scheme)
		}
		if v := c.GetString(FileIDKey); v != "" {
			fields["file_id"] = v
		}
		if v := c.GetString(EventIDKey); v != "" {
			fields["event_id"] = v
		}
		telemetry.Info("request.complete", fields)
	}
}
