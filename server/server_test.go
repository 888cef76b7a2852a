package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tutorsense/ai/observability/logging"
)

func TestRequestLoggerToContext(t *testing.T) {
	e := echo.New()
	e.Use(middleware.RequestID())
	e.Use(requestLoggerToContext)

	var got *slog.Logger
	e.GET("/ping", func(c echo.Context) error {
		got = logging.FromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.NotSame(t, slog.Default(), got, "handler sees the request-scoped logger")
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}
