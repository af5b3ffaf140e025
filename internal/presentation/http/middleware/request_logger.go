package middleware

import (
	"time"

	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs each request on the http channel.
func RequestLogger(logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := logger.HTTP().With(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		)
		switch {
		case status >= 500:
			log.Error("Request failed", "errors", c.Errors.String())
		case status >= 400:
			log.Warn("Request rejected")
		default:
			log.Debug("Request served")
		}
	}
}
