package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/observability"
)

const (
	GroupLearner  = "learner"
	GroupForecast = "forecast"
	GroupOps      = "ops"
	GroupUnknown  = "unknown"
)

// RouteGroup buckets a gin route template for API metrics. Unmatched
// requests have an empty template and land in GroupUnknown.
func RouteGroup(route string) string {
	switch {
	case route == "":
		return GroupUnknown
	case strings.HasPrefix(route, "/api/learners/"):
		return GroupLearner
	case strings.HasPrefix(route, "/api/forecast/"):
		return GroupForecast
	default:
		return GroupOps
	}
}

// Metrics records API request counts and latency. Prometheus scrapes of
// /metrics are not counted.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		m.ObserveAPI(RouteGroup(route), c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
