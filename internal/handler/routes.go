package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Exact
// routes win over the catch-all, so the reserved paths are never proxied.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler, landing *LandingHandler) {
	e.GET("/", landing.Home)
	e.HEAD("/", landing.Home)
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.Any("/*", proxy.Handle)
}
