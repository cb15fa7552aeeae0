package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-gateway-go/internal/metrics"
)

// Fixed CORS policy for the gateway. The origin API sits behind this hop, so
// the gateway owns the browser-facing CORS contract.
const (
	corsAllowMethods = "GET,POST,PUT,PATCH,DELETE,OPTIONS"
	corsAllowHeaders = "authorization,content-type"
	corsMaxAge       = "600"
)

// CORS returns a middleware that attaches the CORS header set to every
// response and answers preflight requests directly.
//
// OPTIONS short-circuits to 204 without touching the origin or the retry
// budget. For all other methods the headers are applied via a Response
// Before-hook, i.e. at commit time, after the proxy handler has copied the
// origin's headers — colliding keys are overwritten by the gateway's set.
// The metrics parameter is optional; pass nil to skip preflight counting.
func CORS(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" {
				origin = "*"
			}

			res := c.Response()

			if c.Request().Method == http.MethodOptions {
				applyCORS(res.Header(), origin)
				if m != nil {
					m.PreflightsTotal.Inc()
				}
				return c.NoContent(http.StatusNoContent)
			}

			res.Before(func() {
				applyCORS(res.Header(), origin)
			})

			return next(c)
		}
	}
}

// applyCORS sets the five-header CORS set, overwriting existing values.
func applyCORS(h http.Header, origin string) {
	h.Set(echo.HeaderAccessControlAllowOrigin, origin)
	h.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)
	h.Set(echo.HeaderAccessControlAllowHeaders, corsAllowHeaders)
	h.Set(echo.HeaderAccessControlMaxAge, corsMaxAge)
	h.Set(echo.HeaderVary, "Origin")
}
