package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Altmerian/jackpot/logging"
)

const (
	// TraceIDKey is the gin context key holding the trace id.
	TraceIDKey = "trace_id"
	// TraceIDHeader is the header a caller may set to supply its own trace id.
	TraceIDHeader = logging.TraceIDHeader

	maxTraceIDLength = 128
)

// TraceID assigns every request a trace id, taken from the X-Trace-ID header
// when present and well formed. The id is echoed in the response, stored on
// the gin context and on the request context, so it reaches error bodies
// and the Kafka headers of published bets.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if !validTraceID(traceID) {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Request = c.Request.WithContext(logging.ContextWithTraceID(c.Request.Context(), traceID))

		c.Next()
	}
}

// GetTraceID returns the trace id of the request, or "".
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// validTraceID accepts short printable ASCII ids without spaces.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
