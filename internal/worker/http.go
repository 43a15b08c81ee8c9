package worker

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Polling bool   `json:"polling"`
	User    string `json:"user,omitempty"`
}

// HTTPServer exposes health and metrics endpoints.
type HTTPServer struct {
	echo   *echo.Echo
	worker *Server
	logger *zap.Logger
}

// NewHTTPServer creates the health/metrics server for w.
func NewHTTPServer(w *Server, metrics *Metrics, logger *zap.Logger) *HTTPServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &HTTPServer{
		echo:   e,
		worker: w,
		logger: logger.Named("http"),
	}

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	return s
}

// Handler returns the underlying http.Handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Polling: s.worker.Polling(),
		User:    s.worker.session.Identity().Short(),
	})
}

// Start listens on addr. It returns http.ErrServerClosed after Shutdown.
func (s *HTTPServer) Start(addr string) error {
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
