package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/estimator/internal/apperr"
)

// RequestRecorder receives one observation per HTTP request.
// *metrics.Metrics implements it.
type RequestRecorder interface {
	ObserveHTTPRequest(method, route, status string)
}

// Logging returns a middleware that logs every request.
// It logs the method, route, status, user ID, duration, and any error codes/messages.
// rec may be nil.
func Logging(rec RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start).Milliseconds()
		userID := GetUserID(c) // empty if pre-auth

		if rec != nil {
			rec.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(status))
		}

		if err := c.Errors.Last(); err != nil {
			attrs := []any{
				"method", c.Request.Method,
				"route", route,
				"status", status,
				"code", apperr.CodeOf(err.Err),
				"error", err.Err,
				"user_id", userID,
				"duration_ms", duration,
			}
			if status >= 500 {
				slog.Error("HTTP error", attrs...)
			} else {
				slog.Warn("HTTP error", attrs...)
			}
			return
		}

		slog.Info("HTTP ok",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"user_id", userID,
			"duration_ms", duration,
		)
	}
}
