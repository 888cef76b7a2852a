// Package server hosts the HTTP surface: the v1 tutoring API, health and
// Prometheus metrics endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/tutorsense/ai/batch"
	"github.com/hrygo/tutorsense/ai/metrics"
	"github.com/hrygo/tutorsense/ai/observability/logging"
	"github.com/hrygo/tutorsense/ai/session"
	"github.com/hrygo/tutorsense/internal/profile"
	apiv1 "github.com/hrygo/tutorsense/server/router/api/v1"
	"github.com/hrygo/tutorsense/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	apiV1      *apiv1.APIV1Service
}

// requestLoggerToContext scopes a logger to the request and attaches it to the
// request context, so handlers and anything below them log with the request id.
func requestLoggerToContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		logger := slog.Default().With(slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
		ctx := logging.ToContext(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(_ context.Context, p *profile.Profile, st *store.Store, sessions *session.Orchestrator, batcher *batch.Scheduler, exporter *metrics.PrometheusExporter) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLoggerToContext)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"request_id", v.RequestID,
			)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}

	apiV1 := apiv1.NewAPIV1Service(p, st, sessions, batcher)
	apiV1.RegisterRoutes(e)

	return &Server{
		Profile:    p,
		Store:      st,
		echoServer: e,
		apiV1:      apiV1,
	}, nil
}

// Start serves until the context is canceled or Start fails.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echoServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down http server", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	if err := s.echoServer.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Echo exposes the underlying router, used by tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}
