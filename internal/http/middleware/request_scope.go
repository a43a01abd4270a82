package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/sinag-platform/vantage-backend/internal/platform/ctxutil"
)

const (
	HeaderTraceID   = "X-Trace-Id"
	HeaderRequestID = "X-Request-Id"
	HeaderClientID  = "X-Client-Id"
)

// RequestScope stamps every request with trace, request and client ids.
// An active otel span wins over a caller-supplied trace id.
func RequestScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := &ctxutil.RequestScope{
			RequestID: strings.TrimSpace(c.GetHeader(HeaderRequestID)),
			ClientID:  strings.TrimSpace(c.GetHeader(HeaderClientID)),
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			scope.TraceID = sc.TraceID().String()
		} else {
			scope.TraceID = strings.TrimSpace(c.GetHeader(HeaderTraceID))
		}
		if scope.RequestID == "" {
			scope.RequestID = uuid.NewString()
		}
		if scope.TraceID == "" {
			scope.TraceID = scope.RequestID
		}

		c.Request = c.Request.WithContext(ctxutil.WithScope(c.Request.Context(), scope))
		h := c.Writer.Header()
		h.Set(HeaderTraceID, scope.TraceID)
		h.Set(HeaderRequestID, scope.RequestID)
		c.Next()
	}
}
