package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sinag-platform/vantage-backend/internal/platform/ctxutil"
)

func TestRequestScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestScope())
	var seen *ctxutil.RequestScope
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.Scope(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	req.Header.Set(HeaderClientID, "tab-9")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil || seen.RequestID != "req-1" || seen.ClientID != "tab-9" || seen.TraceID != "req-1" {
		t.Fatalf("scope: %+v", seen)
	}
	if rec.Header().Get(HeaderTraceID) != "req-1" {
		t.Fatalf("response headers: %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderTraceID, "abc")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if seen.TraceID != "abc" || seen.RequestID == "" || rec.Header().Get(HeaderRequestID) != seen.RequestID {
		t.Fatalf("caller trace id: %+v %v", seen, rec.Header())
	}
}
