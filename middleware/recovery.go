package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/types"
)

// Recovery turns a panic in a handler into a 500 response. A jackpot unit of
// work interrupted by a panic has already been rolled back by its store.
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			traceID := GetTraceID(c)
			log := logging.FromContext(c.Request.Context(), logging.WithTraceID(logger, traceID))
			log.Error().
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("Panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{
				StatusCode: http.StatusInternalServerError,
				Error: types.NewErrorDetail(time.Now().Format(time.RFC3339), c.Request.URL.Path, traceID,
					errors.ErrInternalServerError, "Internal server error"),
			})
		}()

		c.Next()
	}
}
