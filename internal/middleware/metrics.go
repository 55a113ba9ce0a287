package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-board/enroll-api/internal/service"
)

// Metrics records request counts and latency per route. The route template
// is used rather than the raw path so IDs do not explode the label space.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
