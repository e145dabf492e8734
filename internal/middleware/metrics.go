package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Okan-wqm/avinor-sub001/internal/service"
)

// Metrics records one HTTP observation per request, keyed by the matched
// route template so path parameters do not explode label cardinality.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	if metrics == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
