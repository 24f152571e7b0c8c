package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/service"
)

// Metrics records one HTTP observation per request, labeled by the route
// template so path parameters don't explode cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
