package middleware

import (
	"time"

	"catalogsync/internal/logger"

	"github.com/gin-gonic/gin"
)

// Logger writes one line per request. Server errors are logged at error
// level so they show up without debug logging.
func Logger(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		line := "%s %s %d %s %s"
		args := []interface{}{c.Request.Method, path, status, time.Since(start), c.ClientIP()}
		switch {
		case status >= 500:
			logger.Error(line, args...)
		case path == "/healthz" || path == "/metrics":
			logger.Debug(line, args...)
		default:
			logger.Info(line, args...)
		}
	}
}
