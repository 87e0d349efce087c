package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/types"
)

// Timeout bounds the request context. Handlers pass it down to the store,
// so a unit of work still waiting for a jackpot lock at the deadline is
// abandoned without effect. A handler that gives up without writing gets a
// 503. Streaming routes must be registered outside this middleware.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if c.Writer.Written() || !stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, types.ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Error: types.NewErrorDetail(time.Now().Format(time.RFC3339), c.Request.URL.Path, GetTraceID(c),
				errors.ErrServiceUnavailable, "request timed out"),
		})
	}
}
