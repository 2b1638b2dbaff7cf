package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddlewareStoresRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	e := echo.New()
	e.Use(Middleware(base))
	e.GET("/ping", func(c echo.Context) error {
		FromEcho(c).Info("inside handler")
		FromContext(c.Request().Context()).Info("inside request context")
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	entries := logs.FilterField(zap.String("request_id", "req-123")).All()
	assert.Len(t, entries, 3)
	assert.Equal(t, "HTTP request completed", entries[2].Message)
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	SetLogger(zap.NewNop())
	assert.NotNil(t, FromContext(context.Background()))
}

func TestMiddlewareLogsRenderedErrorStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	e := echo.New()
	e.Use(Middleware(zap.New(core)))
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	entries := logs.FilterMessage("HTTP request rejected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusNotFound), entries[0].ContextMap()["status"])
	assert.Equal(t, "/missing", entries[0].ContextMap()["route"])
}
