package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/offlinecache"
)

// registerGatewayRoutes mounts the offline asset gateway as the GET
// catch-all. API routes are registered explicitly and win over it; the
// gateway only ever sees frontend asset and navigation requests.
func (c *Controller) registerGatewayRoutes() {
	if c.cache == nil {
		return
	}
	c.Echo.GET("/*", c.ServeAsset)
	c.Echo.GET("/", c.ServeAsset)
}

// ServeAsset resolves a frontend request through the versioned asset
// cache: cache-first for manifest assets, network-first for the rest,
// with the offline page as navigation fallback.
func (c *Controller) ServeAsset(ctx echo.Context) error {
	resp, err := c.cache.Handle(ctx.Request().Context(), ctx.Request())
	if err != nil {
		if errors.Is(err, offlinecache.ErrPassThrough) {
			// Not intercepted and no API route matched.
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return c.respondError(ctx, err)
	}
	return writeCacheResponse(ctx, resp)
}

// writeCacheResponse copies a gateway response onto the wire.
func writeCacheResponse(ctx echo.Context, resp *offlinecache.Response) error {
	header := ctx.Response().Header()
	for key, values := range resp.Header {
		if key == echo.HeaderContentType {
			continue
		}
		for _, value := range values {
			header.Add(key, value)
		}
	}
	contentType := resp.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return ctx.Blob(resp.Status, contentType, resp.Body)
}
