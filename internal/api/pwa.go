package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// registerPWARoutes registers routes for PWA support files. The manifest
// and service worker must be served from root paths so the worker scope
// covers the entire application.
func (c *Controller) registerPWARoutes() {
	if c.cache == nil {
		return
	}

	c.Echo.GET("/manifest.json", func(ctx echo.Context) error {
		return c.handlePWAFile(ctx)
	})

	// The service worker script gets Service-Worker-Allowed so browsers
	// accept the root scope regardless of where the script lives.
	c.Echo.GET("/sw.js", func(ctx echo.Context) error {
		ctx.Response().Header().Set("Service-Worker-Allowed", "/")
		return c.handlePWAFile(ctx)
	})
}

// handlePWAFile serves a PWA support file through the asset gateway. PWA
// files have fixed (non-hashed) names, so the browser must revalidate
// them instead of caching indefinitely.
func (c *Controller) handlePWAFile(ctx echo.Context) error {
	ctx.Response().Header().Set("Cache-Control", "no-cache")
	return c.ServeAsset(ctx)
}

// healthHandler is a plain liveness probe outside the gateway.
func healthHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
