package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/ucsmail/audit"
)

const TraceIDKey = "trace_id"
const TraceIDHeader = "X-Trace-ID"

func newTraceID() string { return uuid.NewString() }

// TraceID injects a UUID trace ID into every request and response header.
// The ID is also put on the request context so audit rows written while
// serving the request carry it.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = newTraceID()
		}
		c.Set(TraceIDKey, traceID)
		ctx := audit.WithTraceID(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(audit.WithClientIP(ctx, c.ClientIP()))
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the Gin context.
func GetTraceID(c *gin.Context) string {
	if v, exists := c.Get(TraceIDKey); exists {
		return v.(string)
	}
	return ""
}
