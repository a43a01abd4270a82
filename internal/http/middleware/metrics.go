package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sinag-platform/vantage-backend/internal/observability"
)

// Metrics records latency per matched route. Event streams and the
// healthcheck are skipped.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || !instrumented(c.FullPath()) {
			c.Next()
			return
		}
		m.ApiInflightInc()
		start := time.Now()
		c.Next()
		m.ApiInflightDec()
		m.ObserveAPI(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func instrumented(route string) bool {
	switch {
	case route == "", route == "/healthcheck":
		return false
	case strings.HasSuffix(route, "/stream"):
		return false
	}
	return true
}
