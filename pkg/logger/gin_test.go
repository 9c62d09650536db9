package logger

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddleware_PropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware(slog.Default()))

	var fromCtx *slog.Logger
	r.GET("/x", func(c *gin.Context) {
		fromCtx = From(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "rid-1")
	r.ServeHTTP(w, req)

	if got := w.Header().Get(headerRequestID); got != "rid-1" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	if fromCtx == nil {
		t.Fatalf("expected logger in request context")
	}
}

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware(slog.Default()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected generated request id")
	}
}
