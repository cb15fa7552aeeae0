package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-gateway-go/internal/model"
	"edge-gateway-go/internal/service"
)

// unstableDetail is the synthesized-503 body message. Spanish to match the
// origin API, which reports errors as {"detail": "..."} in Spanish.
const unstableDetail = "Pasarela temporalmente inestable, intente de nuevo en unos segundos"

// ProxyHandler forwards API requests to the origin through the retrying service.
type ProxyHandler struct {
	service *service.GatewayService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.GatewayService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the origin and streams the response back.
// The CORS header set is applied by middleware at response-commit time, so
// it overwrites any colliding origin headers copied here.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Path:     c.Param("*"),
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		Body:     req.Body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the origin body directly to the client. If io.Copy fails
	// mid-stream (e.g. client disconnect, network error), the HTTP status
	// code has already been sent, so the client receives a truncated
	// response with the original status. This is an inherent trade-off of
	// streaming proxies — we log the error for observability.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrOriginUnstable) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"detail": unstableDetail,
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"detail": "cliente desconectado",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"detail": "error al reenviar la solicitud",
	})
}
