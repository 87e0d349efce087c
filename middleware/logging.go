package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Altmerian/jackpot/auth"
	"github.com/Altmerian/jackpot/logging"
)

// LoggingConfig holds logging middleware configuration
type LoggingConfig struct {
	// SkipPaths are not logged, e.g. health checks.
	SkipPaths []string
	// SlowThreshold raises completed requests slower than it to warn.
	SlowThreshold time.Duration
}

// Logging logs request completion. The request logger carries the trace id,
// is attached to the request context and can be fetched with zerolog.Ctx.
func Logging(logger zerolog.Logger) gin.HandlerFunc {
	return LoggingWithConfig(logger, LoggingConfig{
		SkipPaths:     []string{"/health", "/api/health"},
		SlowThreshold: time.Second,
	})
}

// LoggingWithConfig creates a logging middleware with custom configuration
func LoggingWithConfig(logger zerolog.Logger, config LoggingConfig) gin.HandlerFunc {
	skipPaths := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, skip := skipPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		start := time.Now()
		reqLogger := logging.WithTraceID(logger, GetTraceID(c)).With().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Logger()
		c.Request = c.Request.WithContext(reqLogger.WithContext(c.Request.Context()))

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = reqLogger.Error()
		case status >= 400:
			event = reqLogger.Warn()
		case config.SlowThreshold > 0 && duration > config.SlowThreshold:
			event = reqLogger.Warn().Bool("slow", true)
		default:
			event = reqLogger.Info()
		}

		if jackpotID := c.Param("id"); jackpotID != "" {
			event = event.Str("jackpot_id", jackpotID)
		}
		if userID := c.GetString(auth.UserIDKey); userID != "" {
			event = event.Str("user_id", userID)
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			event = event.Strs("errors", errs.Errors())
		}

		event.
			Int("status", status).
			Dur("duration", duration).
			Int("response_size", c.Writer.Size()).
			Msg("Request completed")
	}
}
