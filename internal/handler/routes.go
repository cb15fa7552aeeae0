package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edge-gateway-go/internal/config"
	"edge-gateway-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// OPTIONS requests under /api never reach the proxy handler; the CORS
// middleware answers them before routing matters.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(
			promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		))
	}

	e.Any("/api/*", proxy.Handle)
}
