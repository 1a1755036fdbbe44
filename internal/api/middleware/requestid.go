package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/xordi/modguard/internal/shared/id"
)

// RequestIDKey is the context key carrying the request id.
const RequestIDKey = "request_id"

// RequestID assigns each request a ULID and echoes it in the response so
// API responses can be matched against audit log lines.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = string(id.NewRequestID())
		}
		c.Set(RequestIDKey, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}
